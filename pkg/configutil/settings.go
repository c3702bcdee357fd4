// Package configutil decodes the free-form settings maps that telephony
// providers are configured with. Keys are matched loosely: account_sid,
// AccountSID, and account-sid all address the same field.
package configutil

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Schema names the keys a provider's settings map may carry.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidateSettings checks a settings map against its schema before decoding,
// reporting every missing required key and unknown key at once.
func ValidateSettings(input map[string]any, schema Schema) error {
	known := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for _, k := range append(append([]string(nil), schema.Required...), schema.Optional...) {
		known[looseKey(k)] = struct{}{}
	}

	present := make(map[string]bool, len(input))
	var unknown []string
	for k, v := range input {
		lk := looseKey(k)
		if _, ok := known[lk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
			continue
		}
		present[lk] = !blank(v)
	}

	var missing []string
	for _, k := range schema.Required {
		if !present[looseKey(k)] {
			missing = append(missing, k)
		}
	}

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return fmt.Errorf("settings %s", strings.Join(parts, "; "))
}

// DecodeSettings fills a typed struct from a validated settings map. String
// values decode into ints and bools where the target field asks for them,
// since YAML and env expansion both produce strings.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return looseKey(mapKey) == looseKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func looseKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	return strings.ReplaceAll(k, "-", "")
}
