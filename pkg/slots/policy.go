package slots

import "fmt"

// Policy maps slot state to canned follow-up questions and closing lines.
// When templated text is disabled every method returns "", which callers
// treat as "defer phrasing to the oracle".
type Policy struct {
	templates bool
}

func NewPolicy(templatesEnabled bool) *Policy {
	return &Policy{templates: templatesEnabled}
}

// FollowupFor returns the short question for the first missing slot.
func (p *Policy) FollowupFor(missing []Name) string {
	if !p.templates {
		return ""
	}
	if len(missing) == 0 {
		return "Thanks. Anything else you want to add?"
	}
	switch missing[0] {
	case DriverStatus:
		return "Got it. What's your current status?"
	case CurrentLocation:
		return "Thanks. Where are you right now?"
	case ETA:
		return "Noted. What's your ETA?"
	case EmergencyType:
		return "Understood. What type of emergency is it?"
	case EmergencyLocation:
		return "Where exactly is the emergency?"
	}
	return "Okay, could you share a bit more?"
}

// RephraseFor returns the first-retry variant of the question for a slot the
// driver did not answer. Second and later retries use GenericNudge.
func (p *Policy) RephraseFor(n Name) string {
	if !p.templates {
		return ""
	}
	switch n {
	case DriverStatus:
		return "Thanks. Could you share your current status now?"
	case CurrentLocation:
		return "And where are you at the moment?"
	case ETA:
		return "When do you expect to arrive?"
	case EmergencyType:
		return "What kind of emergency is it?"
	case EmergencyLocation:
		return "Where exactly is the emergency happening?"
	}
	return ""
}

// GenericNudge is the second-and-later retry prompt.
func (p *Policy) GenericNudge() string {
	if !p.templates {
		return ""
	}
	return "If it's easier, just tell me one thing: your status, location, or ETA."
}

// PoliteClose builds the closing line. With the three core slots filled it
// reads all three back; with both emergency fields filled it confirms the
// escalation; otherwise a generic thanks.
func (p *Policy) PoliteClose(s Set) string {
	if !p.templates {
		return ""
	}
	if s.CoreFilled() {
		return fmt.Sprintf("Thanks for the update — status %s, location %s, ETA %s. Drive safe.",
			s.DriverStatus, s.CurrentLocation, s.ETA)
	}
	if s.EmergencyFilled() {
		return fmt.Sprintf("I have the emergency noted: %s at %s. A dispatcher will call you immediately.",
			s.EmergencyType, s.EmergencyLocation)
	}
	return "Thanks for the details. We'll follow up if needed."
}

// ConfirmQuestion reads the three core values back for a yes/no check.
func (p *Policy) ConfirmQuestion(s Set) string {
	if !p.templates {
		return ""
	}
	return fmt.Sprintf("Just to confirm, status %s, location %s, ETA %s. Is that correct?",
		s.DriverStatus, s.CurrentLocation, s.ETA)
}
