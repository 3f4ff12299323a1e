package stages

import "fmt"

// requireStrings fails validation if any of fields is missing or empty in
// parsed, the minimal schema check every LLM-backed stage in this package
// applies before trusting a response (§4.4.1, "validate against schema").
func requireStrings(parsed map[string]interface{}, fields ...string) error {
	for _, f := range fields {
		v, ok := parsed[f]
		if !ok {
			return fmt.Errorf("missing required field %q", f)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return fmt.Errorf("field %q must be a non-empty string", f)
		}
	}
	return nil
}

// requireArray fails validation if field is missing or not a non-empty
// JSON array.
func requireArray(parsed map[string]interface{}, field string) error {
	v, ok := parsed[field]
	if !ok {
		return fmt.Errorf("missing required field %q", field)
	}
	arr, ok := v.([]interface{})
	if !ok || len(arr) == 0 {
		return fmt.Errorf("field %q must be a non-empty array", field)
	}
	return nil
}
