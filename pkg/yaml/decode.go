package yaml

import (
	"bytes"
	"errors"
	"io"

	"github.com/goccy/go-yaml"
)

// Decoder reads YAML (or JSON) documents. Struct fields are matched by
// their json tags.
type Decoder struct {
	d *yaml.Decoder
}

// DecodeOpt configures a [Decoder].
type DecodeOpt = yaml.DecodeOption

// Strict rejects fields that do not exist in the target struct.
func Strict() DecodeOpt {
	return yaml.DisallowUnknownField()
}

func NewDecoder(r io.Reader, opts ...DecodeOpt) *Decoder {
	return &Decoder{
		d: yaml.NewDecoder(r, append([]DecodeOpt{yaml.AllowDuplicateMapKey()}, opts...)...),
	}
}

// Decode reads the next document into v. Syntax and type errors are returned
// as [*Error] values carrying the offending token.
func (d *Decoder) Decode(v any) error {
	err := d.d.Decode(v)
	if err == nil {
		return nil
	}

	var yamlErr yaml.Error
	if errors.As(err, &yamlErr) {
		return &Error{
			Err:   errors.New(yamlErr.GetMessage()),
			Token: yamlErr.GetToken(),
		}
	}

	//nolint:wrapcheck // Return the original error if it's not a [yaml.Error].
	return err
}

// Unmarshal decodes data into v, attaching data to any [*Error].
func Unmarshal(data []byte, v any, opts ...DecodeOpt) error {
	err := NewDecoder(bytes.NewReader(data), opts...).Decode(v)

	return NewErrorWrapper(WithSource(data)).Wrap(err)
}
