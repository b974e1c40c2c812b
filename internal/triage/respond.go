package triage

// safetyResponse is the static guidance bundle for one emergency kind.
type safetyResponse struct {
	Urgent          string
	Routine         string
	Actions         []string
	Precautions     []string
	DangerQuestion  string
	EscalatedSpoken string
}

const escalatedDefault = "Help is on the way! Priority increased to critical. Stay on the line and we will end the call when help arrives."

var safetyResponses = map[Kind]safetyResponse{
	KindFire: {
		Urgent:  "Help is coming! Fire department is being dispatched now. Evacuate immediately and do not use elevators. Stay low to avoid smoke inhalation and feel doors before opening. Use stairs only for evacuation and help others evacuate if safe to do so.",
		Routine: "The fire department has been notified. Evacuate the area as a precaution and do not use elevators. Stay clear of any smoke and wait for responders outside.",
		Actions: []string{
			"Evacuate the area immediately",
			"Do not use elevators",
			"Close doors behind you",
			"Move to designated assembly point",
		},
		Precautions: []string{
			"Stay low to avoid smoke inhalation",
			"Feel doors before opening - hot means fire is near",
			"Use stairs only for evacuation",
			"Meet at designated assembly point",
		},
		DangerQuestion:  "Is the fire spreading or are people trapped?",
		EscalatedSpoken: escalatedDefault,
	},
	KindMedical: {
		Urgent:  "Help is coming! Ambulance is being dispatched now. Check if person is breathing and stay on the line. Keep person comfortable and apply direct pressure to bleeding. Monitor consciousness and have medical history ready.",
		Routine: "An ambulance has been notified. Keep the person comfortable and monitor their condition. Have any medical history ready for the responders.",
		Actions: []string{
			"Check breathing and pulse",
			"Keep person comfortable",
			"Clear airway if needed",
			"Apply direct pressure to bleeding",
		},
		Precautions: []string{
			"Do not move person unless in danger",
			"Keep person warm",
			"Monitor consciousness",
			"Have medical history ready",
		},
		DangerQuestion:  "Is the person unconscious or not breathing?",
		EscalatedSpoken: escalatedDefault,
	},
	KindPolice: {
		Urgent:  "Help is coming! Police are being dispatched now. Move to safe location and lock doors immediately. Stay away from windows and silence your phone. Do not confront suspect and have escape route planned. Follow dispatcher instructions.",
		Routine: "The police have been notified. Stay somewhere safe, keep your phone with you and do not approach anyone involved. An officer will follow up with you.",
		Actions: []string{
			"Move to safe location immediately",
			"Lock doors and windows",
			"Stay away from windows",
			"Silence your phone",
		},
		Precautions: []string{
			"Do not confront suspect",
			"Have escape route planned",
			"Stay quiet and hidden",
			"Follow dispatcher instructions",
		},
		DangerQuestion:  "Is the suspect still present or armed?",
		EscalatedSpoken: escalatedDefault,
	},
	KindAccident: {
		Urgent:  "Help is coming! Emergency services are being dispatched now. Move to safe location away from traffic and turn on hazard lights. Check for injuries and do not move injured persons unless there is immediate danger. Follow dispatcher instructions.",
		Routine: "Emergency services have been notified. Move away from traffic, turn on your hazard lights and exchange information with the other drivers. Document the scene when it is safe.",
		Actions: []string{
			"Move to safe location away from traffic",
			"Turn on hazard lights immediately",
			"Check for injuries and provide first aid",
			"Call emergency services if serious injuries",
			"Take photos of scene if safe to do so",
		},
		Precautions: []string{
			"Stay away from moving traffic and warn other drivers",
			"Set up warning triangles or flares behind your vehicle",
			"Do not move injured persons unless there is immediate danger",
			"Apply direct pressure to bleeding wounds",
			"Keep injured persons warm with blankets or clothing",
		},
		DangerQuestion:  "Are there serious injuries or people trapped?",
		EscalatedSpoken: "Help is on the way! Priority increased to critical. Multiple services responding. Stay on the line and follow instructions.",
	},
	KindMentalHealth: {
		Urgent:  "Help is coming! Crisis response team is being dispatched now. Stay on the line with us. Move to safe, calm location and remove any potentially harmful items if safe to do so. Breathe slowly and steadily.",
		Routine: "A crisis response team has been notified. You are not alone. Move to a safe, calm place, breathe slowly, and stay on the line with us if you can.",
		Actions: []string{
			"Stay on the line",
			"Move to safe, calm location",
			"Remove any potentially harmful items if safe to do so",
			"Breathe slowly and steadily",
		},
		Precautions: []string{
			"Keep company with trusted person if possible",
			"Remove access to harmful items",
			"Stay in a safe environment",
			"Follow crisis counselor guidance",
		},
		DangerQuestion:  "Is there immediate risk of harm?",
		EscalatedSpoken: escalatedDefault,
	},
	KindOther: {
		Urgent:  "Help is coming! Emergency services are being dispatched now. Stay calm and follow instructions. Keep your mobile phone nearby and have emergency numbers ready. Know your location and stay aware of surroundings.",
		Routine: "Emergency services have been notified. Stay calm, keep your phone nearby, and be ready to describe your location if responders contact you.",
		Actions: []string{
			"Stay calm",
			"Follow dispatcher instructions",
			"Keep phone available",
			"Provide clear information",
		},
		Precautions: []string{
			"Stay aware of surroundings",
			"Have emergency numbers ready",
			"Keep first aid kit accessible",
			"Know your location",
		},
		DangerQuestion:  "Is the situation life-threatening?",
		EscalatedSpoken: escalatedDefault,
	},
}

// Guidance is the synthesized safety response for one classified call.
type Guidance struct {
	Spoken          string
	Actions         []string
	Precautions     []string
	DangerQuestion  string
	EscalatedSpoken string
}

// Respond selects the safety guidance for a kind at a severity. Critical and
// high calls get the urgent script (it opens with dispatch confirmation);
// moderate and low calls get the calmer variant. Pure function.
func Respond(kind Kind, sev Severity) Guidance {
	r, ok := safetyResponses[kind]
	if !ok {
		r = safetyResponses[KindOther]
	}
	spoken := r.Routine
	if sev == SeverityCritical || sev == SeverityHigh {
		spoken = r.Urgent
	}
	return Guidance{
		Spoken:          spoken,
		Actions:         r.Actions,
		Precautions:     r.Precautions,
		DangerQuestion:  r.DangerQuestion,
		EscalatedSpoken: r.EscalatedSpoken,
	}
}
