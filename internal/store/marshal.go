package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalStrings converts a string list to JSON TEXT for storage.
// A nil list is stored as "[]".
func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(list); err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalStrings parses JSON TEXT written by marshalStrings.
// An empty list comes back as nil.
func unmarshalStrings(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return list, nil
}
