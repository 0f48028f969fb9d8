package timeutil

import "time"

// DayFloor truncates t to midnight UTC. All date bucketing in the service
// happens on these floored values so map keys compare equal.
func DayFloor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func IsWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// WorkingDaysBetween counts Mon-Fri calendar days in [start, end] inclusive.
// Returns 0 when end is before start.
func WorkingDaysBetween(start, end time.Time) int {
	start = DayFloor(start)
	end = DayFloor(end)
	if end.Before(start) {
		return 0
	}
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsWorkingDay(d) {
			n++
		}
	}
	return n
}

// WorkingDaysElapsed counts working days in [start, day), i.e. how many
// working days have passed since sprint start. The start day itself is 0.
func WorkingDaysElapsed(start, day time.Time) int {
	start = DayFloor(start)
	day = DayFloor(day)
	if !day.After(start) {
		return 0
	}
	return WorkingDaysBetween(start, day.AddDate(0, 0, -1))
}

// Days returns every calendar day in [start, end] inclusive, floored.
func Days(start, end time.Time) []time.Time {
	start = DayFloor(start)
	end = DayFloor(end)
	if end.Before(start) {
		return nil
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Clamp limits t to [min, max].
func Clamp(t, min, max time.Time) time.Time {
	if t.Before(min) {
		return min
	}
	if t.After(max) {
		return max
	}
	return t
}
