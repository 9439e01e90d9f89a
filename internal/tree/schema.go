package tree

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of Document, used as the structured
// output contract when asking a model for a tree.
func Schema() (json.RawMessage, error) {
	return ReflectSchema(&Document{})
}

// ReflectSchema reflects a JSON schema for v.
func ReflectSchema(v any) (json.RawMessage, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshalling schema: %w", err)
	}
	return data, nil
}
