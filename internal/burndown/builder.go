package burndown

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/baseline"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/classify"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/timeutil"
)

const hoursPerDay = 8

// Input carries everything the chart needs. LoggedByDay keys must be
// DayFloor'd; days absent from the map count as zero.
type Input struct {
	Sprint             domain.Sprint
	Effective          []classify.Effective
	Baseline           *domain.Baseline
	Changes            []domain.ScopeChangeEvent
	LoggedByDay        map[time.Time]float64
	TeamSize           int
	WorkingDaysDefault int
	Now                time.Time
	Partial            bool
}

// Build reconstructs the burndown series for every calendar day of the
// sprint. The actual line starts from the baseline total and is carried
// forward day by day, so each day's value reflects all scope changes and
// logged work up to that day rather than a point-in-time snapshot. Days
// after the computation date carry nil actuals so charts stop at today.
func Build(in Input, log zerolog.Logger) domain.BurndownReport {
	start := timeutil.DayFloor(in.Sprint.StartDate)
	end := timeutil.DayFloor(in.Sprint.EndDate)
	today := timeutil.DayFloor(in.Now)

	workingDays := timeutil.WorkingDaysBetween(start, end)
	if workingDays == 0 {
		log.Warn().Int64("sprint_id", in.Sprint.ID).Int("fallback", in.WorkingDaysDefault).Msg("sprint dates span no working days, using default")
		workingDays = in.WorkingDaysDefault
	}
	if workingDays < 1 {
		workingDays = 1
	}
	teamSize := in.TeamSize
	if teamSize < 1 {
		teamSize = 1
	}
	maxCapacity := float64(workingDays) * hoursPerDay * float64(teamSize)

	origTotal, remTotal, loggedTotal := classify.Totals(in.Effective)

	// Day zero starts from the baseline snapshot. A sprint observed for the
	// first time has none yet, so the current set stands in.
	baseTotal := origTotal
	if in.Baseline != nil && len(in.Baseline.Entries) > 0 {
		baseTotal, _, _ = classify.Totals(classify.Aggregate(baseline.Items(in.Baseline)))
	}

	addedByDay := map[time.Time]float64{}
	removedByDay := map[time.Time]float64{}
	var addedTotal, removedTotal float64
	for _, ev := range in.Changes {
		switch ev.Type {
		case domain.ScopeAdded:
			addedTotal += ev.EstimateHours
			if ev.Date != nil {
				addedByDay[*ev.Date] += ev.EstimateHours
			}
		case domain.ScopeRemoved:
			removedTotal += ev.EstimateHours
			if ev.Date != nil {
				removedByDay[*ev.Date] += ev.EstimateHours
			}
		}
	}

	days := timeutil.Days(start, end)
	points := make([]domain.BurndownDataPoint, 0, len(days))
	remaining := baseTotal
	cumLogged := 0.0
	for i, d := range days {
		n := timeutil.WorkingDaysElapsed(start, d)
		ideal := maxCapacity - float64(n)*maxCapacity/float64(workingDays)
		if ideal < 0 {
			ideal = 0
		}

		p := domain.BurndownDataPoint{
			Date:                d.Format("2006-01-02"),
			IdealRemainingHours: ideal,
			ScopeAddedHours:     addedByDay[d],
			ScopeRemovedHours:   removedByDay[d],
		}
		if !d.After(today) {
			if i > 0 {
				remaining = remaining - in.LoggedByDay[d] + addedByDay[d] - removedByDay[d]
			}
			cumLogged += in.LoggedByDay[d]
			actual := remaining
			logged := cumLogged
			p.ActualRemainingHours = &actual
			p.CumulativeLoggedHours = &logged
		}
		points = append(points, p)
	}

	return domain.BurndownReport{
		DataPoints:                 points,
		SprintName:                 in.Sprint.Name,
		MaxCapacityHours:           maxCapacity,
		TotalOriginalEstimateHours: baseTotal,
		CurrentRemainingHours:      remTotal,
		TotalSpentHours:            loggedTotal,
		ScopeAddedTotal:            addedTotal,
		ScopeRemovedTotal:          removedTotal,
		WorkingDays:                workingDays,
		TeamSize:                   teamSize,
		Assignees:                  assignees(in.Effective),
		Partial:                    in.Partial,
	}
}

func assignees(effs []classify.Effective) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range effs {
		a := e.Item.Assignee
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
