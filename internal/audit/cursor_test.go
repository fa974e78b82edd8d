package audit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	id := uuid.New()
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	c, err := DecodeCursor(EncodeCursor(at, id))
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	assert.True(t, at.Equal(c.CreatedAt))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not base64 ???", "bm90LWpzb24", EncodeCursor(time.Time{}, uuid.Nil)} {
		_, err := DecodeCursor(s)
		assert.ErrorIs(t, err, ErrBadCursor, "cursor %q", s)
	}
}
