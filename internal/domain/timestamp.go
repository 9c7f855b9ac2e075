package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// Timestamp accepts the shapes stored documents carry for instants: RFC 3339 strings,
// epoch milliseconds, or a {seconds, nanoseconds} pair. Anything unparsable decodes to
// the zero Timestamp, which callers treat as absent.
type Timestamp struct {
	time.Time
}

// At wraps t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Valid reports whether the timestamp carries an instant.
func (t Timestamp) Valid() bool {
	return !t.Time.IsZero()
}

type secondsPair struct {
	Seconds     *float64 `json:"seconds"`
	Nanoseconds float64  `json:"nanoseconds"`
	// admin SDK serialization
	USeconds     *float64 `json:"_seconds"`
	UNanoseconds float64  `json:"_nanoseconds"`
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		t.Time = ParseTime(raw)
	case '{':
		var pair secondsPair
		if err := json.Unmarshal(data, &pair); err != nil {
			return nil
		}
		secs, nanos := pair.Seconds, pair.Nanoseconds
		if secs == nil {
			secs, nanos = pair.USeconds, pair.UNanoseconds
		}
		if secs == nil || math.IsNaN(*secs) || math.IsInf(*secs, 0) {
			return nil
		}
		t.Time = time.Unix(int64(*secs), int64(nanos)).UTC()
	default:
		var millis float64
		if err := json.Unmarshal(data, &millis); err != nil || math.IsNaN(millis) || millis <= 0 {
			return nil
		}
		t.Time = time.UnixMilli(int64(millis)).UTC()
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// ParseTime parses an ISO-8601 instant, returning the zero time when it cannot.
func ParseTime(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
