package domain

import "time"

// WorkItem is one unit of work inside a sprint, normalized from the tracker's
// raw issue fields. Estimate fields are hours, never negative.
type WorkItem struct {
	Key         string
	Summary     string
	Type        string
	Status      string
	Priority    string
	Assignee    string
	DueDate     *time.Time
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
	IsSubtask   bool
	ParentKey   string
	HasSubtasks bool
	FixVersions []string

	OriginalEstimateHours  float64
	RemainingEstimateHours float64
	LoggedHours            float64
}

type Sprint struct {
	ID        int64
	Name      string
	State     string
	StartDate time.Time
	EndDate   time.Time
}

type Board struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Baseline is the immutable start-of-sprint snapshot used as the reference
// point for scope-change detection. Stored as JSON in the key-value store.
type Baseline struct {
	SprintID   int64           `json:"sprintId"`
	CapturedAt time.Time       `json:"capturedAt"`
	Entries    []BaselineEntry `json:"entries"`
}

type BaselineEntry struct {
	Key                   string  `json:"key"`
	OriginalEstimateHours float64 `json:"originalEstimateHours"`
	Priority              string  `json:"priority"`
	Assignee              string  `json:"assignee"`
	IsSubtask             bool    `json:"isSubtask"`
	ParentKey             string  `json:"parentKey,omitempty"`
	Status                string  `json:"status"`
}

type ScopeChangeType string

const (
	ScopeAdded           ScopeChangeType = "ADDED"
	ScopeRemoved         ScopeChangeType = "REMOVED"
	ScopePriorityChanged ScopeChangeType = "PRIORITY_CHANGED"
)

// ScopeChangeEvent is derived per request, never stored. Date is nil when no
// attribution could be made; such events count in totals but are excluded
// from the per-day chart series.
type ScopeChangeEvent struct {
	Key           string          `json:"key"`
	Type          ScopeChangeType `json:"type"`
	Date          *time.Time      `json:"date,omitempty"`
	EstimateHours float64         `json:"estimateHours"`
	OldPriority   string          `json:"oldPriority,omitempty"`
	NewPriority   string          `json:"newPriority,omitempty"`
}

// BurndownDataPoint is one calendar day of the sprint. Actual and logged are
// nil for days after the computation date.
type BurndownDataPoint struct {
	Date                  string   `json:"date"`
	IdealRemainingHours   float64  `json:"idealRemainingHours"`
	ActualRemainingHours  *float64 `json:"actualRemainingHours"`
	CumulativeLoggedHours *float64 `json:"cumulativeLoggedHours"`
	ScopeAddedHours       float64  `json:"scopeAddedHours"`
	ScopeRemovedHours     float64  `json:"scopeRemovedHours"`
}

type BurndownReport struct {
	DataPoints                 []BurndownDataPoint `json:"dataPoints"`
	SprintName                 string              `json:"sprintName"`
	MaxCapacityHours           float64             `json:"maxCapacityHours"`
	TotalOriginalEstimateHours float64             `json:"totalOriginalEstimateHours"`
	CurrentRemainingHours      float64             `json:"currentRemainingHours"`
	TotalSpentHours            float64             `json:"totalSpentHours"`
	ScopeAddedTotal            float64             `json:"scopeAddedTotal"`
	ScopeRemovedTotal          float64             `json:"scopeRemovedTotal"`
	WorkingDays                int                 `json:"workingDays"`
	TeamSize                   int                 `json:"teamSize"`
	Assignees                  []string            `json:"assignees"`
	Partial                    bool                `json:"partial,omitempty"`
}

type HealthBucket string

const (
	HealthUnderestimated HealthBucket = "UNDERESTIMATED"
	HealthNormal         HealthBucket = "NORMAL"
	HealthGood           HealthBucket = "GOOD"
)

type HealthCounts struct {
	Under  int `json:"under"`
	Normal int `json:"normal"`
	Good   int `json:"good"`
	Total  int `json:"total"`
}

type HealthDetail struct {
	Key            string       `json:"key"`
	Summary        string       `json:"summary"`
	Assignee       string       `json:"assignee,omitempty"`
	OriginalHours  float64      `json:"originalHours"`
	SpentHours     float64      `json:"spentHours"`
	RemainingHours float64      `json:"remainingHours"`
	Bucket         HealthBucket `json:"bucket"`
}

type HealthReport struct {
	Counts  HealthCounts   `json:"counts"`
	Details []HealthDetail `json:"details"`
	Partial bool           `json:"partial,omitempty"`
}

type RiskReason string

const (
	RiskTimeBoxExceeded  RiskReason = "TIME_BOX_EXCEEDED"
	RiskDeadlineExceeded RiskReason = "DEADLINE_EXCEEDED"
)

type AtRiskItem struct {
	Key            string     `json:"key"`
	Summary        string     `json:"summary"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	Assignee       string     `json:"assignee,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	OriginalHours  float64    `json:"originalHours"`
	RemainingHours float64    `json:"remainingHours"`
	Reason         RiskReason `json:"reason"`
}

type AtRiskReport struct {
	Items   []AtRiskItem `json:"items"`
	Total   int          `json:"total"`
	Partial bool         `json:"partial,omitempty"`
}

type ScopeTotals struct {
	AddedHours           float64 `json:"addedHours"`
	RemovedHours         float64 `json:"removedHours"`
	AddedCount           int     `json:"addedCount"`
	RemovedCount         int     `json:"removedCount"`
	PriorityChangedCount int     `json:"priorityChangedCount"`
}

type ScopeChangesReport struct {
	Added           []ScopeChangeEvent `json:"added"`
	Removed         []ScopeChangeEvent `json:"removed"`
	PriorityChanged []ScopeChangeEvent `json:"priorityChanged"`
	Totals          ScopeTotals        `json:"totals"`
	Partial         bool               `json:"partial,omitempty"`
}

// VersionRollup groups remaining and logged hours by release identifier.
type VersionRollup struct {
	Version        string  `json:"version"`
	Items          int     `json:"items"`
	RemainingHours float64 `json:"remainingHours"`
	LoggedHours    float64 `json:"loggedHours"`
}

type VersionReport struct {
	Versions []VersionRollup `json:"versions"`
	Partial  bool            `json:"partial,omitempty"`
}

// DashboardConfig is the user-facing configuration kept in the KV store.
type DashboardConfig struct {
	BoardID            int64 `json:"boardId"`
	TeamSize           int   `json:"teamSize"`
	WorkingDaysDefault int   `json:"workingDaysDefault"`
}

// ChangeEvent is one changelog entry on a work item.
type ChangeEvent struct {
	At    time.Time
	Field string
	From  string
	To    string
}

// WorklogEntry is one logged-time record, bucketed later by calendar day.
type WorklogEntry struct {
	Date  time.Time
	Hours float64
}
