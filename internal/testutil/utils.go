package testutil

import (
	"testing"

	"github.com/rs/zerolog"
)

// TestLogger routes log output through t.Log so it only shows for failing tests.
func TestLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
}
