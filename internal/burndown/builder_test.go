package burndown

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/classify"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Mon 2024-03-04 through Fri 2024-03-15: 10 working days, 12 calendar days.
func testSprint() domain.Sprint {
	return domain.Sprint{ID: 7, Name: "Sprint 42", StartDate: day(2024, 3, 4), EndDate: day(2024, 3, 15)}
}

func baseOf(hours ...float64) *domain.Baseline {
	b := &domain.Baseline{SprintID: 7, CapturedAt: day(2024, 3, 4)}
	for i, h := range hours {
		b.Entries = append(b.Entries, domain.BaselineEntry{Key: key(i), OriginalEstimateHours: h})
	}
	return b
}

func key(i int) string { return "PROJ-" + string(rune('1'+i)) }

func TestBuildIdealLine(t *testing.T) {
	in := Input{Sprint: testSprint(), Baseline: baseOf(), TeamSize: 5, WorkingDaysDefault: 10, Now: day(2024, 3, 4)}
	rep := Build(in, zerolog.Nop())

	if rep.MaxCapacityHours != 400 {
		t.Fatalf("maxCapacity = %v, want 400", rep.MaxCapacityHours)
	}
	if len(rep.DataPoints) != 12 {
		t.Fatalf("dataPoints = %d, want 12 calendar days", len(rep.DataPoints))
	}
	if got := rep.DataPoints[0].IdealRemainingHours; got != 400 {
		t.Fatalf("ideal[0] = %v, want full capacity", got)
	}
	// Sat, Sun and the following Mon all sit at 5 elapsed working days.
	for _, i := range []int{5, 6, 7} {
		if got := rep.DataPoints[i].IdealRemainingHours; got != 200 {
			t.Fatalf("ideal[%d] = %v, want 200 (weekend plateau)", i, got)
		}
	}
	for i := 1; i < len(rep.DataPoints); i++ {
		if rep.DataPoints[i].IdealRemainingHours > rep.DataPoints[i-1].IdealRemainingHours {
			t.Fatalf("ideal line increased at index %d", i)
		}
	}
}

func TestBuildForwardAccumulation(t *testing.T) {
	wed := day(2024, 3, 6)
	thu := day(2024, 3, 7)
	in := Input{
		Sprint:   testSprint(),
		Baseline: baseOf(60, 40),
		Changes: []domain.ScopeChangeEvent{
			{Key: "PROJ-9", Type: domain.ScopeAdded, Date: &wed, EstimateHours: 8},
			{Key: "PROJ-2", Type: domain.ScopeRemoved, Date: &thu, EstimateHours: 5},
		},
		LoggedByDay:        map[time.Time]float64{day(2024, 3, 5): 10},
		TeamSize:           5,
		WorkingDaysDefault: 10,
		Now:                day(2024, 3, 8),
	}
	rep := Build(in, zerolog.Nop())

	want := []float64{100, 90, 98, 93, 93}
	for i, w := range want {
		got := rep.DataPoints[i].ActualRemainingHours
		if got == nil || *got != w {
			t.Fatalf("actual[%d] = %v, want %v", i, got, w)
		}
	}
	if got := rep.DataPoints[4].CumulativeLoggedHours; got == nil || *got != 10 {
		t.Fatalf("cumLogged[4] = %v, want 10", got)
	}
	if rep.DataPoints[2].ScopeAddedHours != 8 || rep.DataPoints[3].ScopeRemovedHours != 5 {
		t.Fatalf("scope bars misplaced: %+v", rep.DataPoints[2:4])
	}
	if rep.ScopeAddedTotal != 8 || rep.ScopeRemovedTotal != 5 {
		t.Fatalf("totals = %v/%v, want 8/5", rep.ScopeAddedTotal, rep.ScopeRemovedTotal)
	}
	// Anchored on the baseline, not the current set.
	if rep.TotalOriginalEstimateHours != 100 {
		t.Fatalf("totalOriginal = %v, want baseline total 100", rep.TotalOriginalEstimateHours)
	}
}

func TestBuildTotalOriginalFallsBackToCurrentWhenBaselineEmpty(t *testing.T) {
	in := Input{
		Sprint:   testSprint(),
		Baseline: baseOf(),
		Effective: []classify.Effective{
			{Item: domain.WorkItem{Key: "PROJ-1"}, OriginalHours: 30, RemainingHours: 30},
		},
		TeamSize:           5,
		WorkingDaysDefault: 10,
		Now:                day(2024, 3, 4),
	}
	rep := Build(in, zerolog.Nop())
	if rep.TotalOriginalEstimateHours != 30 {
		t.Fatalf("totalOriginal = %v, want current fallback 30", rep.TotalOriginalEstimateHours)
	}
	if got := rep.DataPoints[0].ActualRemainingHours; got == nil || *got != 30 {
		t.Fatalf("day0 = %v, want 30", got)
	}
}

func TestBuildFutureDaysAreNil(t *testing.T) {
	in := Input{Sprint: testSprint(), Baseline: baseOf(40), TeamSize: 5, WorkingDaysDefault: 10, Now: day(2024, 3, 8)}
	rep := Build(in, zerolog.Nop())

	for i := 5; i < len(rep.DataPoints); i++ {
		p := rep.DataPoints[i]
		if p.ActualRemainingHours != nil || p.CumulativeLoggedHours != nil {
			t.Fatalf("point %d (%s) should be nil past today: %+v", i, p.Date, p)
		}
	}
}

func TestBuildScopeConservation(t *testing.T) {
	wed := day(2024, 3, 6)
	fri := day(2024, 3, 8)
	logged := map[time.Time]float64{
		day(2024, 3, 5): 6,
		day(2024, 3, 6): 4,
		day(2024, 3, 7): 7.5,
	}
	in := Input{
		Sprint:   testSprint(),
		Baseline: baseOf(50, 30, 20),
		Changes: []domain.ScopeChangeEvent{
			{Key: "PROJ-8", Type: domain.ScopeAdded, Date: &wed, EstimateHours: 12},
			{Key: "PROJ-3", Type: domain.ScopeRemoved, Date: &fri, EstimateHours: 20},
		},
		LoggedByDay:        logged,
		TeamSize:           5,
		WorkingDaysDefault: 10,
		Now:                day(2024, 3, 8),
	}
	rep := Build(in, zerolog.Nop())

	var sum float64
	for _, h := range logged {
		sum += h
	}
	final := rep.DataPoints[4].ActualRemainingHours
	if final == nil {
		t.Fatalf("expected a value for today")
	}
	want := 100 - sum + 12 - 20
	if math.Abs(*final-want) > 0.1 {
		t.Fatalf("final remaining = %v, want %v within 0.1h", *final, want)
	}
}

func TestBuildIdempotent(t *testing.T) {
	in := Input{
		Sprint:             testSprint(),
		Baseline:           baseOf(60, 40),
		LoggedByDay:        map[time.Time]float64{day(2024, 3, 5): 8},
		TeamSize:           5,
		WorkingDaysDefault: 10,
		Now:                day(2024, 3, 7),
	}
	a := Build(in, zerolog.Nop())
	b := Build(in, zerolog.Nop())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same input produced different reports")
	}
}

func TestBuildZeroWorkingDaysFallsBack(t *testing.T) {
	s := domain.Sprint{ID: 7, Name: "Weekend", StartDate: day(2024, 3, 9), EndDate: day(2024, 3, 10)}
	in := Input{Sprint: s, Baseline: baseOf(), TeamSize: 2, WorkingDaysDefault: 10, Now: day(2024, 3, 9)}
	rep := Build(in, zerolog.Nop())
	if rep.WorkingDays != 10 {
		t.Fatalf("workingDays = %d, want default 10", rep.WorkingDays)
	}
	if rep.MaxCapacityHours != 160 {
		t.Fatalf("maxCapacity = %v, want 160", rep.MaxCapacityHours)
	}
}
