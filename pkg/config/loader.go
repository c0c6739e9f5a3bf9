package config

import (
	"bytes"

	"github.com/macropower/rulepool/api"
	"github.com/macropower/rulepool/api/v1beta1"
	"github.com/macropower/rulepool/pkg/yaml"
)

// Validator validates decoded configuration data against a schema.
type Validator interface {
	Validate(data any) error
}

// LoaderOpt configures a [Loader].
type LoaderOpt func(*loaderOptions)

type loaderOptions struct {
	validator Validator
	file      string
	color     bool
}

// WithValidator replaces the default validator. A nil validator disables
// schema validation.
func WithValidator(v Validator) LoaderOpt {
	return func(o *loaderOptions) {
		o.validator = v
	}
}

// WithFile names the source file in error messages.
func WithFile(name string) LoaderOpt {
	return func(o *loaderOptions) {
		o.file = name
	}
}

// WithColor highlights annotated source in error messages.
func WithColor(color bool) LoaderOpt {
	return func(o *loaderOptions) {
		o.color = color
	}
}

// Loader decodes and validates a YAML or JSON document into T. Decode and
// schema errors are returned as [*yaml.Error] values annotated with the
// offending source.
type Loader[T v1beta1.Defaulter] struct {
	validator Validator
	newFunc   func() T
	yamlError *yaml.ErrorWrapper
	data      []byte
}

// NewLoaderFromBytes creates a [Loader] from data. newFunc constructs the
// zero document that data is decoded into.
func NewLoaderFromBytes[T v1beta1.Defaulter](
	data []byte,
	newFunc func() T,
	defaultValidator Validator,
	opts ...LoaderOpt,
) *Loader[T] {
	options := &loaderOptions{
		validator: defaultValidator,
	}
	for _, opt := range opts {
		opt(options)
	}

	errOpts := []yaml.ErrorOpt{
		yaml.WithSource(data),
		yaml.WithColor(options.color),
	}
	if options.file != "" {
		errOpts = append(errOpts, yaml.WithFile(options.file))
	}

	return &Loader[T]{
		data:      data,
		newFunc:   newFunc,
		validator: options.validator,
		yamlError: yaml.NewErrorWrapper(errOpts...),
	}
}

// NewLoaderFromFile creates a [Loader] from the file at path.
func NewLoaderFromFile[T v1beta1.Defaulter](
	path string,
	newFunc func() T,
	defaultValidator Validator,
	opts ...LoaderOpt,
) (*Loader[T], error) {
	data, err := api.ReadFile(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already carries the path.
	}

	opts = append([]LoaderOpt{WithFile(path)}, opts...)

	return NewLoaderFromBytes(data, newFunc, defaultValidator, opts...), nil
}

// Validate checks the document against the schema.
func (l *Loader[T]) Validate() error {
	var doc any

	err := yaml.NewDecoder(bytes.NewReader(l.data)).Decode(&doc)
	if err != nil {
		return l.yamlError.Wrap(err)
	}

	if l.validator != nil {
		err = l.validator.Validate(doc)
		if err != nil {
			return l.yamlError.Wrap(err)
		}
	}

	return nil
}

// Load decodes the document and applies defaults.
//
//nolint:ireturn // Generic type parameter return is intentional.
func (l *Loader[T]) Load() (T, error) {
	cfg := l.newFunc()

	err := yaml.NewDecoder(bytes.NewReader(l.data)).Decode(cfg)
	if err != nil {
		var zero T
		return zero, l.yamlError.Wrap(err)
	}

	cfg.EnsureDefaults()

	return cfg, nil
}

// Data returns the raw document.
func (l *Loader[T]) Data() []byte {
	return l.data
}
