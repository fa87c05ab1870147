package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// millisThreshold splits epoch seconds from epoch milliseconds. Values this
// large as seconds would be tens of thousands of years out.
const millisThreshold = 1e12

// ParseProviderTime converts the heterogeneous timestamp shapes upstream
// gateways report (RFC3339 strings, epoch seconds or millis as number or
// string, {seconds,nanos} pairs) into a UTC time. Conversion is best-effort:
// anything unparseable yields nil, never an error.
func ParseProviderTime(raw json.RawMessage) *time.Time {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var numeric float64
	if err := json.Unmarshal(raw, &numeric); err == nil {
		return fromEpoch(numeric)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, text); err == nil {
				return utcPtr(t)
			}
		}
		if numeric, err := strconv.ParseFloat(text, 64); err == nil {
			return fromEpoch(numeric)
		}
		return nil
	}

	var pair struct {
		Seconds     *int64 `json:"seconds"`
		Nanos       *int64 `json:"nanos"`
		Nanoseconds *int64 `json:"nanoseconds"`
	}
	if err := json.Unmarshal(raw, &pair); err == nil && pair.Seconds != nil {
		nanos := int64(0)
		if pair.Nanos != nil {
			nanos = *pair.Nanos
		} else if pair.Nanoseconds != nil {
			nanos = *pair.Nanoseconds
		}
		return utcPtr(time.Unix(*pair.Seconds, nanos))
	}

	return nil
}

func fromEpoch(v float64) *time.Time {
	if v <= 0 {
		return nil
	}
	if v >= millisThreshold {
		return utcPtr(time.UnixMilli(int64(v)))
	}
	sec := int64(v)
	nanos := int64((v - float64(sec)) * float64(time.Second))
	return utcPtr(time.Unix(sec, nanos))
}

func utcPtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
