package output

import (
	"encoding/json"
)

// FormatJSONValue renders any listing as indented JSON.
func FormatJSONValue(value any) (string, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
