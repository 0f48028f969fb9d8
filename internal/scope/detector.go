package scope

import (
	"sort"
	"strings"
	"time"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/baseline"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/classify"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/timeutil"
)

// History carries changelog-derived sprint membership timestamps, keyed by
// item key. Nil or missing entries degrade to the fallback attribution; the
// detector never fails because history is unavailable.
type History struct {
	EnteredSprint map[string]time.Time
	LeftSprint    map[string]time.Time
}

type Result struct {
	Added           []domain.ScopeChangeEvent
	Removed         []domain.ScopeChangeEvent
	PriorityChanged []domain.ScopeChangeEvent
}

// Detect diffs the current item set against the baseline. Each call is
// independent; flapping items are reported per call with no memoization
// beyond the baseline itself.
//
// Date attribution:
//   - ADDED: changelog entered-sprint timestamp, else creation date when it
//     falls after sprint start, else unattributed (nil date).
//   - REMOVED: changelog left-sprint timestamp, else today clamped to the
//     sprint end.
func Detect(current []domain.WorkItem, base *domain.Baseline, hist *History, sprint domain.Sprint, now time.Time) Result {
	if base == nil { base = &domain.Baseline{} }
	inBase := map[string]domain.BaselineEntry{}
	for _, e := range base.Entries {
		inBase[e.Key] = e
	}
	inCurrent := map[string]domain.WorkItem{}
	for _, it := range current {
		inCurrent[it.Key] = it
	}

	var addedItems []domain.WorkItem
	for _, it := range current {
		if _, ok := inBase[it.Key]; !ok { addedItems = append(addedItems, it) }
	}
	addedEst := effectiveHours(addedItems)

	var removedEntries []domain.BaselineEntry
	for _, e := range base.Entries {
		if _, ok := inCurrent[e.Key]; !ok { removedEntries = append(removedEntries, e) }
	}
	removedEst := effectiveHours(baseline.Items(&domain.Baseline{Entries: removedEntries}))

	var res Result
	sprintStart := timeutil.DayFloor(sprint.StartDate)

	for _, it := range current {
		e, ok := inBase[it.Key]
		if !ok {
			ev := domain.ScopeChangeEvent{
				Key:           it.Key,
				Type:          domain.ScopeAdded,
				EstimateHours: addedEst[it.Key],
			}
			if d, ok := histDate(hist, it.Key, true); ok {
				ev.Date = &d
			} else if it.CreatedAt != nil && !it.CreatedAt.Before(sprintStart) {
				d := timeutil.DayFloor(*it.CreatedAt)
				ev.Date = &d
			}
			res.Added = append(res.Added, ev)
			continue
		}
		if e.Priority != it.Priority {
			res.PriorityChanged = append(res.PriorityChanged, domain.ScopeChangeEvent{
				Key:           it.Key,
				Type:          domain.ScopePriorityChanged,
				EstimateHours: it.OriginalEstimateHours,
				OldPriority:   e.Priority,
				NewPriority:   it.Priority,
			})
		}
	}

	for _, e := range removedEntries {
		ev := domain.ScopeChangeEvent{
			Key:           e.Key,
			Type:          domain.ScopeRemoved,
			EstimateHours: removedEst[e.Key],
		}
		if d, ok := histDate(hist, e.Key, false); ok {
			ev.Date = &d
		} else {
			d := timeutil.Clamp(timeutil.DayFloor(now), sprintStart, timeutil.DayFloor(sprint.EndDate))
			ev.Date = &d
		}
		res.Removed = append(res.Removed, ev)
	}

	sortEvents(res.Added)
	sortEvents(res.Removed)
	sortEvents(res.PriorityChanged)
	return res
}

// effectiveHours maps each key in the subset to its share of the subset's
// effective original total. Parent estimate fields are pre-aggregated by the
// tracker over all children, so when a family joins or leaves together the
// parent event carries the subtask sum and the absorbed subtasks carry zero;
// counting raw fields would double the family. A subtask whose parent is
// outside the subset keeps its raw hours, since it shifts the parent's
// aggregate on its own.
func effectiveHours(items []domain.WorkItem) map[string]float64 {
	in := map[string]bool{}
	for _, it := range items {
		in[it.Key] = true
	}
	out := map[string]float64{}
	for _, e := range classify.Aggregate(items) {
		out[e.Item.Key] = e.OriginalHours
	}
	for _, it := range items {
		if _, ok := out[it.Key]; ok {
			continue
		}
		if in[it.ParentKey] {
			out[it.Key] = 0
		} else {
			out[it.Key] = it.OriginalEstimateHours
		}
	}
	return out
}

func histDate(hist *History, key string, entered bool) (time.Time, bool) {
	if hist == nil {
		return time.Time{}, false
	}
	m := hist.LeftSprint
	if entered {
		m = hist.EnteredSprint
	}
	t, ok := m[key]
	if !ok {
		return time.Time{}, false
	}
	return timeutil.DayFloor(t), true
}

func sortEvents(evs []domain.ScopeChangeEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		di, dj := evs[i].Date, evs[j].Date
		switch {
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		}
		return evs[i].Key < evs[j].Key
	})
}

// BuildHistory scans per-item changelogs for sprint membership transitions.
// An event whose To value names the sprint marks entry; one whose From names
// it while To does not marks exit. Later events win.
func BuildHistory(logs map[string][]domain.ChangeEvent, sprint domain.Sprint) *History {
	h := &History{EnteredSprint: map[string]time.Time{}, LeftSprint: map[string]time.Time{}}
	for key, evs := range logs {
		for _, e := range evs {
			if e.Field != "Sprint" {
				continue
			}
			to := mentionsSprint(e.To, sprint)
			from := mentionsSprint(e.From, sprint)
			switch {
			case to && !from:
				h.EnteredSprint[key] = e.At
				delete(h.LeftSprint, key)
			case from && !to:
				h.LeftSprint[key] = e.At
			}
		}
	}
	return h
}

func mentionsSprint(v string, sprint domain.Sprint) bool {
	if v == "" || sprint.Name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(v), strings.ToLower(sprint.Name))
}
