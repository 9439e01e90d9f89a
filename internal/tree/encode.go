package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serializes doc in the compact form Locate expects: no whitespace
// between tokens and no HTML escaping, so ids containing <, > or & are
// written verbatim.
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding tree: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a serialized tree document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	return &doc, nil
}
