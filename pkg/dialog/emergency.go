package dialog

import "strings"

// emergencyKeywords trigger the emergency protocol regardless of extraction
// confidence. Checked before any slot logic on every driver turn.
var emergencyKeywords = []string{
	"blowout",
	"accident",
	"crash",
	"hit",
	"medical",
	"chest pain",
	"ambulance",
	"bleeding",
	"i need help",
	"pulling over",
	"smoke",
}

// DetectEmergency reports whether the utterance contains an emergency cue.
func DetectEmergency(text string) bool {
	t := strings.ToLower(text)
	for _, k := range emergencyKeywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}
