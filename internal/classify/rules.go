package classify

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
)

// healthEpsilon absorbs rounding noise when comparing estimate sums.
const healthEpsilon = 0.1

var terminalWords = []string{"done", "closed", "resolved", "complete"}

// IsTerminalStatus matches the status name case-insensitively against the
// done/closed/resolved/complete family.
func IsTerminalStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	for _, w := range terminalWords {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Health classifies one item by comparing its original estimate against
// spent+remaining. Zero-estimate items are NORMAL.
func Health(original, spent, remaining float64) domain.HealthBucket {
	if original == 0 {
		return domain.HealthNormal
	}
	diff := original - (spent + remaining)
	if math.Abs(diff) <= healthEpsilon {
		return domain.HealthNormal
	}
	if diff < 0 {
		return domain.HealthUnderestimated
	}
	return domain.HealthGood
}

// AtRisk evaluates both triggers; when both fire, the deadline reason wins.
func AtRisk(it domain.WorkItem, now time.Time) (domain.RiskReason, bool) {
	if IsTerminalStatus(it.Status) {
		return "", false
	}
	deadline := it.DueDate != nil && !it.DueDate.After(now)
	timeBox := it.RemainingEstimateHours == 0 && it.OriginalEstimateHours > 0
	switch {
	case deadline:
		return domain.RiskDeadlineExceeded, true
	case timeBox:
		return domain.RiskTimeBoxExceeded, true
	}
	return "", false
}

var priorityRank = map[string]int{
	"blocker":  6,
	"highest":  5,
	"critical": 4,
	"high":     3,
	"medium":   2,
	"low":      1,
	"lowest":   0,
}

func PriorityRank(name string) int {
	return priorityRank[strings.ToLower(strings.TrimSpace(name))]
}

// SortAtRisk orders by due date ascending (no due date last), then priority
// descending.
func SortAtRisk(items []domain.AtRiskItem) {
	sort.SliceStable(items, func(i, j int) bool {
		di, dj := items[i].DueDate, items[j].DueDate
		switch {
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		}
		return PriorityRank(items[i].Priority) > PriorityRank(items[j].Priority)
	})
}
