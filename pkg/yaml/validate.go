package yaml

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks decoded documents against a JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles schemaData, registered under url.
func NewValidator(url string, schemaData []byte) (*Validator, error) {
	schema, err := jsonschema.UnmarshalJSON(bytesReader(schemaData))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()

	err = compiler.AddResource(url, schema)
	if err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	jss, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: jss}, nil
}

func MustNewValidator(url string, schemaData []byte) *Validator {
	v, err := NewValidator(url, schemaData)
	if err != nil {
		panic(err)
	}

	return v
}

// Validate checks data, which must be the generic form of a document (maps,
// slices and scalars). A failure is returned as an [*Error] pointing at the
// most specific failing location.
func (v *Validator) Validate(data any) error {
	data, err := normalize(data)
	if err != nil {
		return err
	}

	err = v.schema.Validate(data)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("schema validation: %w", err)
	}

	return &Error{
		Err:  verr,
		Path: pathFromLocation(deepestLocation(verr)),
	}
}

// ValidateBytes decodes data as YAML and validates the result.
func (v *Validator) ValidateBytes(data []byte) error {
	var doc any

	err := Unmarshal(data, &doc)
	if err != nil {
		return err
	}

	return NewErrorWrapper(WithSource(data)).Wrap(v.Validate(doc))
}

// normalize round-trips data through JSON so that numbers and map keys use
// the types the schema library expects.
func normalize(data any) (any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document for validation: %w", err)
	}

	out, err := jsonschema.UnmarshalJSON(bytesReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode document for validation: %w", err)
	}

	return out, nil
}

func deepestLocation(err *jsonschema.ValidationError) []string {
	deepest := err.InstanceLocation
	for _, cause := range err.Causes {
		if loc := deepestLocation(cause); len(loc) > len(deepest) {
			deepest = loc
		}
	}

	return deepest
}

func pathFromLocation(location []string) *yaml.Path {
	p := NewPathBuilder().Root()
	for _, part := range location {
		if idx, err := strconv.ParseUint(part, 10, 0); err == nil {
			p = p.Index(uint(idx))
			continue
		}

		p = p.Child(part)
	}

	return p.Build()
}
