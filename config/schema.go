package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/wippyai/clr-host/errors"
)

// Schema returns the JSON Schema of a host profile.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Profile{})
	schema.Title = "clrhost profile"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidConfig, err, "marshal profile schema")
	}
	return data, nil
}
