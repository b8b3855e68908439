package sqlutil

import (
	"encoding/json"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go values and nullable JSONB columns

// ToNullRawMessage marshals v into a JSONB parameter. A nil v becomes SQL NULL.
func ToNullRawMessage(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

// FromNullRawMessage unmarshals a scanned JSONB column into dst. NULL leaves dst untouched.
func FromNullRawMessage(m pqtype.NullRawMessage, dst any) error {
	if !m.Valid || len(m.RawMessage) == 0 {
		return nil
	}
	return json.Unmarshal(m.RawMessage, dst)
}
