package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{
		Type:    EventLoginFailure,
		Account: "alice",
		SteamID: "76561198000000001",
		Details: map[string]interface{}{
			"attempts": 3,
			"error":    errors.New("boom"),
		},
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit"])
	assert.Equal(t, "login_failure", entry["event_type"])
	assert.Equal(t, "alice", entry["account"])
	assert.Equal(t, "76561198000000001", entry["steam_id"])
	assert.Equal(t, float64(3), entry["attempts"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "audit event", entry["message"])
}

func TestLog_OmitsEmptyIdentity(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{Type: EventProfileSync})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "account")
	assert.NotContains(t, entry, "steam_id")
}
