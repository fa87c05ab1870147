package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderTimeShapes(t *testing.T) {
	ref := time.Date(2024, 5, 4, 12, 30, 0, 0, time.UTC)

	cases := map[string]json.RawMessage{
		"rfc3339":        json.RawMessage(`"2024-05-04T12:30:00Z"`),
		"epoch seconds":  json.RawMessage(`1714825800`),
		"epoch millis":   json.RawMessage(`1714825800000`),
		"numeric string": json.RawMessage(`"1714825800"`),
		"seconds pair":   json.RawMessage(`{"seconds":1714825800,"nanos":0}`),
		"nanoseconds":    json.RawMessage(`{"seconds":1714825800,"nanoseconds":0}`),
	}
	for name, raw := range cases {
		got := ParseProviderTime(raw)
		require.NotNil(t, got, name)
		assert.True(t, got.Equal(ref), "%s: got %v", name, got)
	}
}

func TestParseProviderTimeGarbageNeverErrors(t *testing.T) {
	cases := []json.RawMessage{
		nil,
		json.RawMessage(``),
		json.RawMessage(`null`),
		json.RawMessage(`""`),
		json.RawMessage(`"not a date"`),
		json.RawMessage(`-5`),
		json.RawMessage(`0`),
		json.RawMessage(`{}`),
		json.RawMessage(`{"nanos":12}`),
		json.RawMessage(`[1,2,3]`),
	}
	for _, raw := range cases {
		assert.Nil(t, ParseProviderTime(raw), "raw=%s", string(raw))
	}
}
