package kafka

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// DeadLetter is the envelope published to the dead-letter topic. The
// original message is embedded decoded when it was a JSON object and as a
// {"raw_payload": ...} object otherwise, so no payload is ever lost to a
// decode failure.
type DeadLetter struct {
	OriginalMessage any    `json:"original_message"`
	Error           string `json:"error"`
	Timestamp       string `json:"timestamp"`
	RetryCount      int    `json:"retry_count"`
}

// BuildDeadLetter constructs the serialized dead-letter envelope for a raw
// message. The retry count continues from the embedded message's own
// retry_count when one is present, so re-driven messages keep their history.
func BuildDeadLetter(raw []byte, errorMessage string, now time.Time) ([]byte, error) {
	text := decodeReplace(raw)

	var parsed any
	err := json.Unmarshal([]byte(text), &parsed)
	obj, isObject := parsed.(map[string]any)

	var original any
	if err != nil || !isObject {
		original = map[string]string{"raw_payload": text}
	} else {
		original = obj
	}

	env := DeadLetter{
		OriginalMessage: original,
		Error:           errorMessage,
		Timestamp:       now.UTC().Truncate(time.Second).Format(time.RFC3339),
		RetryCount:      nextRetryCount(obj),
	}
	return json.Marshal(env)
}

func nextRetryCount(obj map[string]any) int {
	prev, ok := obj["retry_count"].(float64)
	if !ok || prev != float64(int(prev)) || prev < 0 {
		return 1
	}
	return int(prev) + 1
}

// decodeReplace converts raw bytes to a string, substituting every invalid
// byte with U+FFFD individually rather than collapsing runs.
func decodeReplace(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
			i++
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}
