package classify

import (
	"strings"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
)

// Effective is one countable unit (a plain task, or a parent task) with its
// estimate triple after subtask reconciliation. A parent whose subtasks are
// all filtered out of the working set is returned with SkippedInTotal=true
// and zeroed values: its own aggregate fields cannot be trusted under
// filtering, so it is surfaced for UI transparency but never counted.
type Effective struct {
	Item           domain.WorkItem
	OriginalHours  float64
	RemainingHours float64
	LoggedHours    float64
	FromSubtasks   bool
	SkippedInTotal bool
}

// Predicates make parent/subtask detection pluggable so the aggregation rule
// does not depend on any one tracker's naming convention.
type Predicates struct {
	IsSubtask   func(domain.WorkItem) bool
	HasSubtasks func(item domain.WorkItem, all []domain.WorkItem) bool
}

// DefaultPredicates trusts the explicit subtask/parent linkage first and
// falls back to an issue-type-name heuristic.
func DefaultPredicates() Predicates {
	return Predicates{
		IsSubtask: func(it domain.WorkItem) bool {
			if it.IsSubtask {
				return true
			}
			t := strings.ToLower(it.Type)
			return strings.Contains(t, "sub-task") || strings.Contains(t, "subtask")
		},
		HasSubtasks: func(it domain.WorkItem, all []domain.WorkItem) bool {
			if it.HasSubtasks {
				return true
			}
			for _, o := range all {
				if o.ParentKey == it.Key {
					return true
				}
			}
			return false
		},
	}
}

// Aggregate applies the effective-value rules to a working set (already
// filtered by assignee where requested):
//
//  1. subtask items are never counted individually,
//  2. a parent with at least one subtask present sums only those present
//     subtasks (the tracker pre-aggregates parent fields across ALL children,
//     which double-counts under a filter),
//  3. a parent whose subtasks are entirely absent is excluded from totals,
//  4. plain items pass through unchanged.
func Aggregate(items []domain.WorkItem) []Effective {
	return AggregateWith(DefaultPredicates(), items)
}

func AggregateWith(p Predicates, items []domain.WorkItem) []Effective {
	subsByParent := map[string][]domain.WorkItem{}
	for _, it := range items {
		if p.IsSubtask(it) && it.ParentKey != "" {
			subsByParent[it.ParentKey] = append(subsByParent[it.ParentKey], it)
		}
	}

	out := make([]Effective, 0, len(items))
	for _, it := range items {
		if p.IsSubtask(it) {
			continue
		}
		subs := subsByParent[it.Key]
		switch {
		case len(subs) > 0:
			eff := Effective{Item: it, FromSubtasks: true}
			for _, s := range subs {
				eff.OriginalHours += s.OriginalEstimateHours
				eff.RemainingHours += s.RemainingEstimateHours
				eff.LoggedHours += s.LoggedHours
			}
			out = append(out, eff)
		case p.HasSubtasks(it, items):
			out = append(out, Effective{Item: it, SkippedInTotal: true})
		default:
			out = append(out, Effective{
				Item:           it,
				OriginalHours:  it.OriginalEstimateHours,
				RemainingHours: it.RemainingEstimateHours,
				LoggedHours:    it.LoggedHours,
			})
		}
	}
	return out
}

// Totals sums the countable units, skipping flagged parents.
func Totals(effs []Effective) (original, remaining, logged float64) {
	for _, e := range effs {
		if e.SkippedInTotal {
			continue
		}
		original += e.OriginalHours
		remaining += e.RemainingHours
		logged += e.LoggedHours
	}
	return original, remaining, logged
}
