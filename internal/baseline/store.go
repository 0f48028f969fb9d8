package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/classify"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/repo"
	"github.com/rs/zerolog"
)

// corruption heuristic thresholds: a stored snapshot is considered stale when
// its entry count dropped below both the relative share of the current active
// set and the absolute floor.
const (
	corruptRatio = 0.3
	corruptFloor = 10
)

// KV is the external key-value collaborator. Get returns repo.ErrNotFound
// when no snapshot is stored.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store layers the snapshot policy (lazy creation, corruption repair,
// explicit reset) on top of the raw KV contract.
type Store struct {
	kv  KV
	log zerolog.Logger
	now func() time.Time
}

func NewStore(kv KV, log zerolog.Logger) *Store {
	return &Store{kv: kv, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the capture timestamp source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store { s.now = now; return s }

func key(sprintID int64) string { return fmt.Sprintf("baseline:sprint:%d", sprintID) }

func (s *Store) Get(ctx context.Context, sprintID int64) (*domain.Baseline, error) {
	raw, err := s.kv.Get(ctx, key(sprintID))
	if err != nil { return nil, err }
	var b domain.Baseline
	if err := json.Unmarshal(raw, &b); err != nil {
		// Unreadable snapshot: treat like corruption, caller recreates.
		s.log.Warn().Err(err).Int64("sprint", sprintID).Msg("baseline unreadable, discarding")
		_ = s.kv.Delete(ctx, key(sprintID))
		return nil, repo.ErrNotFound
	}
	return &b, nil
}

// GetOrCreate returns the stored snapshot, creating one from the current
// item set on first observation. Items already in a terminal status at
// capture time are excluded: they are finished work, not sprint scope.
// The created flag reports whether a write happened.
func (s *Store) GetOrCreate(ctx context.Context, sprintID int64, current []domain.WorkItem) (*domain.Baseline, bool, error) {
	b, err := s.Get(ctx, sprintID)
	if err == nil {
		return b, false, nil
	}
	if err != repo.ErrNotFound {
		return nil, false, err
	}
	b = s.build(sprintID, current)
	if err := s.persist(ctx, b); err != nil { return nil, false, err }
	s.log.Info().Int64("sprint", sprintID).Int("entries", len(b.Entries)).Msg("baseline captured")
	return b, true, nil
}

// Reset unconditionally recreates the snapshot from the current items.
// User-invoked recovery action; the only way to overwrite a healthy baseline.
func (s *Store) Reset(ctx context.Context, sprintID int64, current []domain.WorkItem) (*domain.Baseline, error) {
	b := s.build(sprintID, current)
	if err := s.persist(ctx, b); err != nil { return nil, err }
	s.log.Info().Int64("sprint", sprintID).Int("entries", len(b.Entries)).Msg("baseline reset")
	return b, nil
}

// RepairIfCorrupted applies the staleness heuristic: entry count below 30%
// of the current non-terminal count AND below the absolute floor. On trip it
// deletes and recreates from current items. Self-healing, not an error.
func (s *Store) RepairIfCorrupted(ctx context.Context, b *domain.Baseline, current []domain.WorkItem) (*domain.Baseline, bool, error) {
	active := 0
	for _, it := range current {
		if !classify.IsTerminalStatus(it.Status) { active++ }
	}
	n := len(b.Entries)
	if float64(n) >= corruptRatio*float64(active) || n >= corruptFloor {
		return b, false, nil
	}
	s.log.Warn().Int64("sprint", b.SprintID).Int("entries", n).Int("active", active).Msg("baseline corrupted, regenerating")
	if err := s.kv.Delete(ctx, key(b.SprintID)); err != nil { return nil, false, err }
	nb := s.build(b.SprintID, current)
	if err := s.persist(ctx, nb); err != nil { return nil, false, err }
	return nb, true, nil
}

func (s *Store) build(sprintID int64, current []domain.WorkItem) *domain.Baseline {
	b := &domain.Baseline{SprintID: sprintID, CapturedAt: s.now()}
	for _, it := range current {
		if classify.IsTerminalStatus(it.Status) { continue }
		b.Entries = append(b.Entries, domain.BaselineEntry{
			Key:                   it.Key,
			OriginalEstimateHours: it.OriginalEstimateHours,
			Priority:              it.Priority,
			Assignee:              it.Assignee,
			IsSubtask:             it.IsSubtask,
			ParentKey:             it.ParentKey,
			Status:                it.Status,
		})
	}
	return b
}

func (s *Store) persist(ctx context.Context, b *domain.Baseline) error {
	raw, err := json.Marshal(b)
	if err != nil { return err }
	return s.kv.Set(ctx, key(b.SprintID), raw)
}

// Items converts baseline entries back into minimal work items so the
// effective-value rules can run over the snapshot.
func Items(b *domain.Baseline) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(b.Entries))
	for _, e := range b.Entries {
		out = append(out, domain.WorkItem{
			Key:                   e.Key,
			Priority:              e.Priority,
			Assignee:              e.Assignee,
			IsSubtask:             e.IsSubtask,
			ParentKey:             e.ParentKey,
			Status:                e.Status,
			OriginalEstimateHours: e.OriginalEstimateHours,
		})
	}
	return out
}
