// Package v1beta1 contains the v1beta1 API types shared by rulepool
// configuration documents.
package v1beta1

import "github.com/invopop/jsonschema"

// APIVersion is the current API version of rulepool documents.
const APIVersion = "rulepool.jacobcolvin.com/v1beta1"

// ValidAPIVersions contains all accepted API versions.
var ValidAPIVersions = []string{APIVersion}

// TypeMeta carries the apiVersion and kind of a document.
type TypeMeta struct {
	// APIVersion specifies the API version for this document.
	APIVersion string `json:"apiVersion" jsonschema:"title=API Version"`
	// Kind defines the type of document.
	Kind string `json:"kind" jsonschema:"title=Kind"`
}

func (tm TypeMeta) GetAPIVersion() string {
	return tm.APIVersion
}

func (tm TypeMeta) GetKind() string {
	return tm.Kind
}

// Defaulter is implemented by documents that fill unset fields after decoding.
type Defaulter interface {
	EnsureDefaults()
}

// Object is a versioned document.
type Object interface {
	Defaulter
	GetAPIVersion() string
	GetKind() string
}

// ExtendSchemaWithEnums constrains the apiVersion and kind properties of jss
// to the given values. It panics if either property is missing.
func ExtendSchemaWithEnums(jss *jsonschema.Schema, apiVersions, kinds []string) {
	constrain := func(prop, title string, values []string) {
		s, ok := jss.Properties.Get(prop)
		if !ok {
			panic(prop + " property not found in schema")
		}

		for _, v := range values {
			s.OneOf = append(s.OneOf, &jsonschema.Schema{
				Type:  "string",
				Const: v,
				Title: title,
			})
		}

		_, _ = jss.Properties.Set(prop, s)
	}

	constrain("apiVersion", "API Version", apiVersions)
	constrain("kind", "Kind", kinds)
}
