package followup

import (
	"testing"
	"time"
)

func TestParseQuietHours(t *testing.T) {
	q, err := ParseQuietHours("21:00", "08:00", "America/New_York")
	if err != nil {
		t.Fatalf("ParseQuietHours: %v", err)
	}
	if q.StartMinutes != 21*60 || q.EndMinutes != 8*60 {
		t.Fatalf("unexpected minutes: start=%d end=%d", q.StartMinutes, q.EndMinutes)
	}

	if _, err := ParseQuietHours("25:00", "08:00", ""); err == nil {
		t.Fatal("expected error for invalid clock")
	}
	if _, err := ParseQuietHours("21:00", "08:00", "Not/AZone"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}

	disabled, err := ParseQuietHours("", "", "")
	if err != nil {
		t.Fatalf("empty window: %v", err)
	}
	if disabled.Contains(time.Now()) {
		t.Fatal("disabled window must never contain anything")
	}
}

func TestQuietHoursContains(t *testing.T) {
	q, err := ParseQuietHours("21:00", "08:00", "UTC")
	if err != nil {
		t.Fatalf("ParseQuietHours: %v", err)
	}

	cases := []struct {
		hour int
		want bool
	}{
		{23, true},
		{2, true},
		{7, true},
		{8, false},
		{12, false},
		{20, false},
		{21, true},
	}
	for _, tc := range cases {
		at := time.Date(2026, 3, 10, tc.hour, 30, 0, 0, time.UTC)
		if got := q.Contains(at); got != tc.want {
			t.Errorf("Contains(%02d:30) = %v, want %v", tc.hour, got, tc.want)
		}
	}
}

func TestNextAllowedDefersIntoMorning(t *testing.T) {
	q, err := ParseQuietHours("21:00", "08:00", "UTC")
	if err != nil {
		t.Fatalf("ParseQuietHours: %v", err)
	}

	lateNight := time.Date(2026, 3, 10, 23, 15, 0, 0, time.UTC)
	got := q.NextAllowed(lateNight)
	want := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("late night deferred to %v, want %v", got, want)
	}

	earlyMorning := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
	got = q.NextAllowed(earlyMorning)
	want = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("early morning deferred to %v, want %v", got, want)
	}

	daytime := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	if got := q.NextAllowed(daytime); !got.Equal(daytime) {
		t.Fatalf("daytime must pass through unchanged, got %v", got)
	}
}
