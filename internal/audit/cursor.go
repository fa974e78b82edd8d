package audit

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrBadCursor means the client-supplied cursor could not be decoded.
var ErrBadCursor = errors.New("invalid cursor")

// Cursor is the keyset pagination position: the (created_at, id) pair of the
// last row the client saw. Listing continues strictly below it in
// (created_at DESC, id DESC) order.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        uuid.UUID `json:"id"`
}

// EncodeCursor renders an opaque URL-safe cursor string.
func EncodeCursor(createdAt time.Time, id uuid.UUID) string {
	raw, _ := json.Marshal(Cursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(s string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrBadCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, ErrBadCursor
	}
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		return nil, ErrBadCursor
	}
	return &c, nil
}
