// Package triage is the business boundary for Rapid's emergency-call triage
// pipeline. It defines the canonical model (closed enums with tolerant
// normalization), the keyword lexicon and rule classifier, severity routing,
// the response synthesizer, the Engine that composes them, the Classifier
// backend interface, and the Store persistence interface.
package triage
