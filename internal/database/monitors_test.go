package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Tokens and API keys live in uuid columns. A lookup with a string that
// cannot be a UUID must come back as ErrNotFound, not as an encoding error
// from the driver.
func TestMonitorByTokenMalformed(t *testing.T) {
	db := &DB{}
	for _, token := range []string{"", "garbage", "1234", "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz"} {
		_, err := db.MonitorByToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrNotFound, "token %q", token)
	}
}

func TestOwnerByAPIKeyMalformed(t *testing.T) {
	db := &DB{}
	_, err := db.OwnerByAPIKey(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, ErrNotFound)
}
