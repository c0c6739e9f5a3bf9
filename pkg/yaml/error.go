package yaml

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/printer"
	"github.com/goccy/go-yaml/token"
)

// NewPathBuilder returns a builder for YAML paths.
func NewPathBuilder() *yaml.PathBuilder {
	return &yaml.PathBuilder{}
}

// ErrorWrapper applies a fixed set of [ErrorOpt]s to every [Error] it wraps.
type ErrorWrapper struct {
	Opts []ErrorOpt
}

func NewErrorWrapper(opts ...ErrorOpt) *ErrorWrapper {
	return &ErrorWrapper{Opts: opts}
}

// Wrap applies the wrapper's options, then opts, to err if it is an
// [Error]. Other errors are returned unmodified.
func (ew *ErrorWrapper) Wrap(err error, opts ...ErrorOpt) error {
	if err == nil {
		return nil
	}

	var yamlErr *Error
	if !errors.As(err, &yamlErr) {
		return err
	}

	for _, opt := range append(ew.Opts, opts...) {
		opt(yamlErr)
	}

	return yamlErr
}

// Error is a decode or validation error located in a YAML document, either
// by [*token.Token] or by [*yaml.Path].
type Error struct {
	Err    error
	Path   *yaml.Path
	Token  *token.Token
	File   string
	Source []byte
	Color  bool
}

func NewError(err error, opts ...ErrorOpt) *Error {
	e := &Error{Err: err}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

type ErrorOpt func(e *Error)

func WithPath(path *yaml.Path) ErrorOpt {
	return func(e *Error) {
		e.Path = path
	}
}

func WithToken(tk *token.Token) ErrorOpt {
	return func(e *Error) {
		e.Token = tk
	}
}

// WithFile sets the file name shown in front of the error.
func WithFile(name string) ErrorOpt {
	return func(e *Error) {
		e.File = name
	}
}

func WithSource(source []byte) ErrorOpt {
	return func(e *Error) {
		e.Source = source
	}
}

// WithColor enables ANSI colors in the annotated source.
func WithColor(color bool) ErrorOpt {
	return func(e *Error) {
		e.Color = color
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return ""
	}

	var prefix string
	if e.File != "" {
		prefix = e.File + ": "
	}

	switch {
	case e.Token != nil:
		line, col := e.Token.Position.Line, e.Token.Position.Column

		var p printer.Printer

		src := p.PrintErrorToken(e.Token, e.Color)

		return fmt.Sprintf("%s[%d:%d] %v\n%s", prefix, line, col, e.Err, src)

	case e.Path != nil && len(e.Source) > 0:
		src, err := e.Path.AnnotateSource(e.Source, e.Color)
		if err != nil {
			slog.Debug("could not annotate source",
				slog.String("path", e.Path.String()),
				slog.Any("error", err),
			)

			return fmt.Sprintf("%serror at %s: %v", prefix, e.Path, e.Err)
		}

		return fmt.Sprintf("%serror at %s: %v\n%s", prefix, e.Path, e.Err, strings.TrimRight(string(src), "\n"))

	case e.Path != nil:
		return fmt.Sprintf("%serror at %s: %v", prefix, e.Path, e.Err)
	}

	return prefix + e.Err.Error()
}
