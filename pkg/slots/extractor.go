package slots

import (
	"regexp"
	"strings"
)

// statusKeywords are matched as substrings, first match wins.
var statusKeywords = []string{"driving", "delayed", "arrived", "dispatched", "stopped", "waiting"}

// emergencyContext marks an utterance as emergency-flavored for the
// extractor. The dialogue-level emergency trigger list is broader and lives
// in the dialog package.
var emergencyContext = []string{"emergency", "accident", "crash", "injury", "medical", "breakdown", "fire"}

var emergencyTypes = []string{"accident", "breakdown", "medical", "fire", "other"}

var (
	locationRe = regexp.MustCompile(`(?i)\b(?:my\s+location\s+is|location\s+is|currently\s+in|in|at|near|around|by|on)\s+([A-Za-z][\w\-\s,]{2,})\b`)
	fillerRe   = regexp.MustCompile(`(?i)\b(?:right\s+now|currently|for\s+now)\b\.?$`)

	etaDigitRe = regexp.MustCompile(`(?i)\b\d{1,2}\s?(?:am|pm)\b|\b\d{1,2}:\d{2}\b`)
	etaWordRe  = regexp.MustCompile(`(?i)\b(?:one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s?(?:am|pm)\b`)
	etaRelRe   = regexp.MustCompile(`(?i)\bin\s+\d+\s+(?:hours?|hrs?|minutes?|mins?)\b`)
	etaDayRe   = regexp.MustCompile(`(?i)\b(?:today|tonight|tomorrow)\b`)
)

// spellingFixes corrects frequent phonetic transcriptions of city names.
var spellingFixes = []struct {
	variant string
	city    string
}{
	{"moutan", "Multan"},
	{"mudan", "Multan"},
	{"muzan", "Multan"},
	{"muntan", "Multan"},
	{"muntaan", "Multan"},
	{"lahar", "Lahore"},
}

// Extractor derives slot updates from a single driver utterance using
// keyword and regex heuristics. It is a pure function of the text; when
// disabled it always returns an empty set so the oracle does all extraction.
type Extractor struct {
	enabled bool
}

func NewExtractor(enabled bool) *Extractor {
	return &Extractor{enabled: enabled}
}

// Extract returns the slots the heuristics are confident about. Fields it
// says nothing about stay empty; rules are independent of one another.
func (e *Extractor) Extract(text string) Set {
	var out Set
	if !e.enabled || text == "" {
		return out
	}
	lower := strings.ToLower(text)

	for _, kw := range statusKeywords {
		if strings.Contains(lower, kw) {
			out.DriverStatus = capitalize(kw)
			break
		}
	}

	emergency := containsAny(lower, emergencyContext)
	if emergency {
		for _, t := range emergencyTypes {
			if strings.Contains(lower, t) {
				out.EmergencyType = capitalize(t)
				break
			}
		}
	}

	if m := locationRe.FindStringSubmatch(text); m != nil {
		loc := normalizeLocation(m[1])
		out.CurrentLocation = loc
		if emergency {
			out.EmergencyLocation = loc
		}
	}

	// First matching ETA shape wins; the value is echoed as matched, not
	// normalized to a clock format.
	if m := etaDigitRe.FindString(lower); m != "" {
		out.ETA = m
	} else if w := etaWordRe.FindString(lower); w != "" {
		if d := etaDayRe.FindString(lower); d != "" {
			out.ETA = d + " " + w
		} else {
			out.ETA = w
		}
	} else if r := etaRelRe.FindString(lower); r != "" {
		out.ETA = r
	}

	return out
}

func normalizeLocation(raw string) string {
	loc := strings.TrimRight(strings.TrimSpace(raw), ".")
	for _, f := range spellingFixes {
		if strings.Contains(strings.ToLower(loc), f.variant) {
			loc = f.city
			break
		}
	}
	loc = fillerRe.ReplaceAllString(loc, "")
	return strings.TrimRight(strings.TrimSpace(loc), " ,.")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
