package mode

import (
	"encoding/json"
)

func roundTrip(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err //nolint:wrapcheck // Wrapped by callers.
	}

	return json.Unmarshal(b, out) //nolint:wrapcheck // Wrapped by callers.
}

func ptr[T any](v T) *T {
	return &v
}
