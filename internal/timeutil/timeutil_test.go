package timeutil

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWorkingDaysBetween_TwoFullWeeks(t *testing.T) {
	// Mon 2024-01-01 .. Fri 2024-01-12 spans two working weeks.
	got := WorkingDaysBetween(date(2024, 1, 1), date(2024, 1, 12))
	if got != 10 {
		t.Fatalf("expected 10 working days, got %d", got)
	}
}

func TestWorkingDaysBetween_WeekendOnly(t *testing.T) {
	if got := WorkingDaysBetween(date(2024, 1, 6), date(2024, 1, 7)); got != 0 {
		t.Fatalf("expected 0 working days over a weekend, got %d", got)
	}
}

func TestWorkingDaysBetween_EndBeforeStart(t *testing.T) {
	if got := WorkingDaysBetween(date(2024, 1, 12), date(2024, 1, 1)); got != 0 {
		t.Fatalf("expected 0 for inverted range, got %d", got)
	}
}

func TestWorkingDaysElapsed(t *testing.T) {
	start := date(2024, 1, 1) // Monday
	cases := []struct {
		day  time.Time
		want int
	}{
		{date(2024, 1, 1), 0},  // start day itself
		{date(2024, 1, 2), 1},  // Tuesday
		{date(2024, 1, 5), 4},  // Friday
		{date(2024, 1, 6), 5},  // Saturday: flat
		{date(2024, 1, 7), 5},  // Sunday: flat
		{date(2024, 1, 8), 5},  // second Monday
		{date(2024, 1, 12), 9}, // last working day
	}
	for _, c := range cases {
		if got := WorkingDaysElapsed(start, c.day); got != c.want {
			t.Fatalf("elapsed(%s) = %d, want %d", c.day.Format("2006-01-02"), got, c.want)
		}
	}
}

func TestDayFloor_NormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	in := time.Date(2024, 3, 15, 1, 30, 0, 0, loc) // 2024-03-14T22:30Z
	got := DayFloor(in)
	if got != date(2024, 3, 14) {
		t.Fatalf("expected 2024-03-14T00:00Z, got %s", got)
	}
}

func TestDays_InclusiveRange(t *testing.T) {
	out := Days(date(2024, 1, 1), date(2024, 1, 3))
	if len(out) != 3 || out[0] != date(2024, 1, 1) || out[2] != date(2024, 1, 3) {
		t.Fatalf("unexpected days: %v", out)
	}
}

func TestClamp(t *testing.T) {
	min, max := date(2024, 1, 1), date(2024, 1, 12)
	if got := Clamp(date(2024, 1, 20), min, max); got != max {
		t.Fatalf("expected clamp to max, got %s", got)
	}
	if got := Clamp(date(2023, 12, 25), min, max); got != min {
		t.Fatalf("expected clamp to min, got %s", got)
	}
	if got := Clamp(date(2024, 1, 5), min, max); got != date(2024, 1, 5) {
		t.Fatalf("expected passthrough, got %s", got)
	}
}
