package kafka_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ad-moderation/internal/adapter/queue/kafka"
)

func TestBuildDeadLetter_ValidJSON(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 10, 30, 15, 987654321, time.UTC)
	raw := []byte(`{"item_id": 42, "event_id": "evt-1"}`)

	out, err := kafka.BuildDeadLetter(raw, "Advertisement not found", now)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, "Advertisement not found", env["error"])
	assert.Equal(t, "2026-08-24T10:30:15Z", env["timestamp"])
	assert.Equal(t, float64(1), env["retry_count"])

	orig, ok := env["original_message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), orig["item_id"])
}

func TestBuildDeadLetter_RawFallback(t *testing.T) {
	t.Parallel()

	out, err := kafka.BuildDeadLetter([]byte("not json at all"), "Invalid message payload", time.Now())
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(out, &env))
	orig, ok := env["original_message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "not json at all", orig["raw_payload"])
	assert.Equal(t, float64(1), env["retry_count"])
}

func TestBuildDeadLetter_InvalidUTF8ReplacedPerByte(t *testing.T) {
	t.Parallel()

	out, err := kafka.BuildDeadLetter([]byte{0xff, 0xfe, 'a'}, "Invalid message payload", time.Now())
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(out, &env))
	orig, ok := env["original_message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "��a", orig["raw_payload"])
}

func TestBuildDeadLetter_NonObjectJSONWrapped(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`[1, 2]`, `"text"`, `42`, `null`} {
		out, err := kafka.BuildDeadLetter([]byte(raw), "Invalid message payload", time.Now())
		require.NoError(t, err)

		var env map[string]any
		require.NoError(t, json.Unmarshal(out, &env))
		orig, ok := env["original_message"].(map[string]any)
		require.True(t, ok, raw)
		assert.Equal(t, raw, orig["raw_payload"], raw)
		assert.Equal(t, float64(1), env["retry_count"], raw)
	}
}

func TestBuildDeadLetter_RetryCountContinues(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"item_id": 42, "retry_count": 3}`)
	out, err := kafka.BuildDeadLetter(raw, "Prediction failed: boom", time.Now())
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, float64(4), env["retry_count"])
}

func TestBuildDeadLetter_BadRetryCountResets(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`{"retry_count": -2}`,
		`{"retry_count": 1.5}`,
		`{"retry_count": "three"}`,
	} {
		out, err := kafka.BuildDeadLetter([]byte(raw), "x", time.Now())
		require.NoError(t, err)

		var env map[string]any
		require.NoError(t, json.Unmarshal(out, &env))
		assert.Equal(t, float64(1), env["retry_count"], raw)
	}
}
