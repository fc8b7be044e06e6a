package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"rulegov/pkg/errors"
)

const (
	DirectionNext = "next"
	DirectionPrev = "prev"
)

// Cursor is the ordering key of a page boundary. Callers treat the encoded
// form as opaque; only the server constructs and parses it.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func EncodeCursor(c Cursor) string {
	raw, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(raw)
}

func DecodeCursor(token string) (Cursor, error) {
	var c Cursor

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return c, errors.ErrValidation.WithCause(err).WithDetail("message", "malformed cursor")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, errors.ErrValidation.WithCause(err).WithDetail("message", "malformed cursor")
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return c, errors.ErrValidation.WithDetail("message", "malformed cursor")
	}
	return c, nil
}
