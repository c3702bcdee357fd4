// Package slots implements the slot-filling model for dispatch check-in
// calls: the per-call slot set, heuristic extraction from driver utterances,
// and the missing-slot questioning policy.
package slots

// Name identifies one required slot.
type Name string

const (
	DriverStatus      Name = "driver_status"
	CurrentLocation   Name = "current_location"
	ETA               Name = "eta"
	EmergencyType     Name = "emergency_type"
	EmergencyLocation Name = "emergency_location"
)

// CanonicalOrder is the fixed order slots are asked in.
var CanonicalOrder = []Name{DriverStatus, CurrentLocation, ETA, EmergencyType, EmergencyLocation}

// Set holds the slot values collected during one call. An empty string means
// the slot is unfilled.
type Set struct {
	DriverStatus      string `json:"driver_status,omitempty"`
	CurrentLocation   string `json:"current_location,omitempty"`
	ETA               string `json:"eta,omitempty"`
	EmergencyType     string `json:"emergency_type,omitempty"`
	EmergencyLocation string `json:"emergency_location,omitempty"`
}

// Get returns the value for the named slot, empty when unfilled or unknown.
func (s Set) Get(n Name) string {
	switch n {
	case DriverStatus:
		return s.DriverStatus
	case CurrentLocation:
		return s.CurrentLocation
	case ETA:
		return s.ETA
	case EmergencyType:
		return s.EmergencyType
	case EmergencyLocation:
		return s.EmergencyLocation
	}
	return ""
}

func (s *Set) put(n Name, v string) {
	switch n {
	case DriverStatus:
		s.DriverStatus = v
	case CurrentLocation:
		s.CurrentLocation = v
	case ETA:
		s.ETA = v
	case EmergencyType:
		s.EmergencyType = v
	case EmergencyLocation:
		s.EmergencyLocation = v
	}
}

// Merge applies updates onto s. Only non-empty update values are applied, so
// a filled slot is never cleared by a later extraction (monotonic fill).
// Reports whether anything changed.
func (s *Set) Merge(updates Set) bool {
	changed := false
	for _, n := range CanonicalOrder {
		v := updates.Get(n)
		if v != "" && v != s.Get(n) {
			s.put(n, v)
			changed = true
		}
	}
	return changed
}

// ResetCore clears the three core slots. Used when the driver rejects the
// read-back confirmation; emergency fields are kept.
func (s *Set) ResetCore() {
	s.DriverStatus = ""
	s.CurrentLocation = ""
	s.ETA = ""
}

// Missing returns the unfilled slots in canonical order.
func (s Set) Missing() []Name {
	var out []Name
	for _, n := range CanonicalOrder {
		if s.Get(n) == "" {
			out = append(out, n)
		}
	}
	return out
}

// CoreFilled reports whether status, location and ETA are all present.
func (s Set) CoreFilled() bool {
	return s.DriverStatus != "" && s.CurrentLocation != "" && s.ETA != ""
}

// EmergencyFilled reports whether both emergency fields are present.
func (s Set) EmergencyFilled() bool {
	return s.EmergencyType != "" && s.EmergencyLocation != ""
}
