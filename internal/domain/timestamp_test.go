package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampDecodesSupportedShapes(t *testing.T) {
	want := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	cases := map[string]string{
		"iso":          `"2025-03-14T09:26:53Z"`,
		"iso offset":   `"2025-03-14T10:26:53+01:00"`,
		"epoch millis": `1741944413000`,
		"pair":         `{"seconds":1741944413,"nanoseconds":0}`,
		"admin pair":   `{"_seconds":1741944413,"_nanoseconds":0}`,
	}
	for name, raw := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if !ts.Time.Equal(want) {
			t.Fatalf("%s: expected %v, got %v", name, want, ts.Time)
		}
	}
}

func TestTimestampTreatsGarbageAsAbsent(t *testing.T) {
	for _, raw := range []string{`"yesterday"`, `null`, `{"foo":1}`, `true`, `-5`} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			t.Fatalf("%s: decode must not fail, got %v", raw, err)
		}
		if ts.Valid() {
			t.Fatalf("%s: expected absent timestamp, got %v", raw, ts.Time)
		}
	}
}

func TestTimestampInsideDocumentDoesNotFailDecode(t *testing.T) {
	var rec StoredResult
	doc := `{"id":"r1","identityId":"u1","serverTimestamp":"not-a-date","clientTimestamp":{"seconds":10}}`
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ServerTimestamp.Valid() {
		t.Fatalf("expected server timestamp absent")
	}
	if rec.ClientTimestamp.Unix() != 10 {
		t.Fatalf("expected client timestamp 10s, got %v", rec.ClientTimestamp.Time)
	}
}

func TestTimestampRoundTripsThroughJSON(t *testing.T) {
	in := At(time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC))
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Timestamp
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Time.Equal(in.Time) {
		t.Fatalf("expected %v, got %v", in.Time, out.Time)
	}

	zero, _ := json.Marshal(Timestamp{})
	if string(zero) != "null" {
		t.Fatalf("expected null for zero timestamp, got %s", zero)
	}
}
