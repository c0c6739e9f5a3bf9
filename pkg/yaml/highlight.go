package yaml

import (
	"bytes"
	"io"

	"github.com/alecthomas/chroma/v2/quick"
)

// DefaultStyle is the chroma style used by [Highlight].
const DefaultStyle = "monokai"

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// Highlight writes source to w with terminal syntax highlighting. The lexer
// is a chroma lexer name such as "yaml", "json" or "markdown". When color is
// false, source is written unchanged.
func Highlight(w io.Writer, source []byte, lexer string, color bool) error {
	if !color {
		_, err := w.Write(source)

		return err //nolint:wrapcheck // Return the original error.
	}

	return quick.Highlight(w, string(source), lexer, "terminal256", DefaultStyle) //nolint:wrapcheck // Return the original error.
}
