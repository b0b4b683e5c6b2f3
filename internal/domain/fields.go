package domain

import "fmt"

// ValidateCustomFields checks that every value in a custom-field map is one
// of the permitted kinds: string, number, boolean, nil, or a nested
// map/slice of the same. This keeps serialization of tickets total; a map
// that passes always round-trips through JSON.
func ValidateCustomFields(fields map[string]any) error {
	for key, v := range fields {
		if err := validateFieldValue(v); err != nil {
			return fmt.Errorf("custom field %q: %w", key, err)
		}
	}
	return nil
}

func validateFieldValue(v any) error {
	switch val := v.(type) {
	case nil, string, bool,
		int, int32, int64, float32, float64:
		return nil
	case map[string]any:
		for k, nested := range val {
			if err := validateFieldValue(nested); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		return nil
	case []any:
		for i, nested := range val {
			if err := validateFieldValue(nested); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}
