package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wanderguide/pkg/logging"
	"wanderguide/pkg/model"
)

func TestFormatLogLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Sorted params, long values dropped",
			input: `time=2026-05-01T06:50:46.074+01:00 level=INFO msg="Contextual update sent" session=walk-1 poi=q42 distance_m="61 " text="Old Town Hall is 61 m to the north-east"`,
			want:  "06:50:46 Contextual update sent (distance_m=61, poi=q42, session=walk-1)",
		},
		{
			name:  "Message only",
			input: `time=2026-05-01T10:00:00Z level=WARN msg="Channel unavailable"`,
			want:  "10:00:00 Channel unavailable",
		},
		{
			name:  "Unstructured line is returned as is",
			input: "panic: something broke",
			want:  "panic: something broke",
		},
		{
			name:  "No msg key",
			input: `level=INFO component=scheduler`,
			want:  `level=INFO component=scheduler`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLogLine(tt.input); got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}

func TestHandleLatestEvent(t *testing.T) {
	ev := &model.Event{
		Type:      model.EventTierEntered,
		SessionID: "s1",
		Title:     "Old Town Hall",
		Summary:   "very_close at 24m",
		Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	logging.LogEvent(ev)

	rec := httptest.NewRecorder()
	handleLatestEvent(rec, httptest.NewRequest(http.MethodGet, "/api/log/event", http.NoBody))

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := "[2026-05-01 10:00:00] [tier_entered] (s1) Old Town Hall - very_close at 24m"
	if body["event"] != want {
		t.Errorf("event = %q, want %q", body["event"], want)
	}
}
