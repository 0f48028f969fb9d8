package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/baseline"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/burndown"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/classify"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/repo"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/scope"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/timeutil"
)

var (
	ErrNoBoard        = errors.New("no board configured")
	ErrNoActiveSprint = errors.New("no active sprint")
)

const dashboardConfigKey = "config:dashboard"

// Jira is the slice of the tracker API the service consumes.
type Jira interface {
	Boards(ctx context.Context) ([]domain.Board, error)
	ActiveSprint(ctx context.Context, boardID int64) (*domain.Sprint, error)
	SprintIssues(ctx context.Context, sprintID int64) ([]domain.WorkItem, bool, error)
	Changelog(ctx context.Context, key string) ([]domain.ChangeEvent, error)
	Worklogs(ctx context.Context, key string) ([]domain.WorklogEntry, error)
}

type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type Notifier interface {
	Enabled() bool
	Broadcast(ctx context.Context, chatIDs []int64, text string)
}

type Narrator interface {
	Enabled() bool
	SprintNarrative(ctx context.Context, payload any) (string, error)
}

// Options narrows a report request. Zero BoardID falls back to the stored
// dashboard config, then to the env default.
type Options struct {
	BoardID  int64
	Assignee string
}

type Service struct {
	jira      Jira
	baselines *baseline.Store
	kv        KV
	tg        Notifier
	llm       Narrator
	cfg       config.Config
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(cfg config.Config, j Jira, b *baseline.Store, kv KV, tg Notifier, llm Narrator, log zerolog.Logger) *Service {
	return &Service{jira: j, baselines: b, kv: kv, tg: tg, llm: llm, cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service { s.now = now; return s }

type sprintData struct {
	sprint  domain.Sprint
	items   []domain.WorkItem
	base    *domain.Baseline
	partial bool
}

// effective aggregates the working set, narrowed to one assignee when asked.
// Filtering happens before aggregation so a parent whose subtasks are
// partially filtered out sums only the subtasks still present.
func (d *sprintData) effective(assignee string) []classify.Effective {
	return classify.Aggregate(filterItems(d.items, assignee))
}

func (s *Service) loadSprint(ctx context.Context, opts Options) (*sprintData, error) {
	boardID, err := s.resolveBoard(ctx, opts)
	if err != nil { return nil, err }
	sp, err := s.jira.ActiveSprint(ctx, boardID)
	if err != nil { return nil, fmt.Errorf("active sprint: %w", err) }
	if sp == nil { return nil, ErrNoActiveSprint }

	items, partial, err := s.jira.SprintIssues(ctx, sp.ID)
	if err != nil { return nil, fmt.Errorf("sprint issues: %w", err) }

	base, created, err := s.baselines.GetOrCreate(ctx, sp.ID, items)
	if err != nil { return nil, fmt.Errorf("baseline: %w", err) }
	if !created && !partial {
		repaired, did, rerr := s.baselines.RepairIfCorrupted(ctx, base, items)
		switch {
		case rerr != nil:
			s.log.Warn().Err(rerr).Int64("sprint_id", sp.ID).Msg("baseline repair failed, keeping stored snapshot")
		case did:
			base = repaired
		}
	}

	return &sprintData{sprint: *sp, items: items, base: base, partial: partial}, nil
}

func (s *Service) resolveBoard(ctx context.Context, opts Options) (int64, error) {
	if opts.BoardID > 0 { return opts.BoardID, nil }
	if dc, err := s.DashboardConfig(ctx); err == nil && dc.BoardID > 0 { return dc.BoardID, nil }
	if s.cfg.BoardID > 0 { return s.cfg.BoardID, nil }
	return 0, ErrNoBoard
}

// history fetches changelogs and worklogs for every item through a bounded
// worker pool. Per-item failures are logged and skipped so reports degrade
// instead of erroring out.
func (s *Service) history(ctx context.Context, sp domain.Sprint, items []domain.WorkItem, withWorklogs bool) (*scope.History, map[time.Time]float64) {
	workerCount := s.cfg.WorkersHistory
	if workerCount <= 0 { workerCount = 6 }

	var mu sync.Mutex
	logs := map[string][]domain.ChangeEvent{}
	logged := map[time.Time]float64{}

	jobs := make(chan domain.WorkItem)
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				evs, err := s.jira.Changelog(ctx, it.Key)
				if err != nil {
					s.log.Warn().Err(err).Str("key", it.Key).Msg("changelog fetch failed, degrading")
				} else {
					mu.Lock()
					logs[it.Key] = evs
					mu.Unlock()
				}
				if !withWorklogs { continue }
				wls, err := s.jira.Worklogs(ctx, it.Key)
				if err != nil {
					s.log.Warn().Err(err).Str("key", it.Key).Msg("worklog fetch failed, degrading")
					continue
				}
				mu.Lock()
				for _, wl := range wls {
					logged[timeutil.DayFloor(wl.Date)] += wl.Hours
				}
				mu.Unlock()
			}
		}()
	}
	for _, it := range items { jobs <- it }
	close(jobs)
	wg.Wait()

	return scope.BuildHistory(logs, sp), logged
}

// Burndown builds the full burndown report for the board's active sprint.
// Under an assignee filter the whole series narrows: baseline, scope diff and
// worklogs all come from that person's share, so the chart and the summary
// fields describe the same working set.
func (s *Service) Burndown(ctx context.Context, opts Options) (domain.BurndownReport, error) {
	d, err := s.loadSprint(ctx, opts)
	if err != nil { return domain.BurndownReport{}, err }
	items := filterItems(d.items, opts.Assignee)
	base := filterBaseline(d.base, opts.Assignee)
	hist, logged := s.history(ctx, d.sprint, items, true)
	res := scope.Detect(items, base, hist, d.sprint, s.now())

	in := burndown.Input{
		Sprint:             d.sprint,
		Effective:          classify.Aggregate(items),
		Baseline:           base,
		Changes:            append(append([]domain.ScopeChangeEvent{}, res.Added...), res.Removed...),
		LoggedByDay:        logged,
		TeamSize:           s.cfg.TeamSize,
		WorkingDaysDefault: s.cfg.WorkingDaysDefault,
		Now:                s.now(),
		Partial:            d.partial,
	}
	return burndown.Build(in, s.log), nil
}

// Health buckets every top-level item by estimate accuracy.
func (s *Service) Health(ctx context.Context, opts Options) (domain.HealthReport, error) {
	d, err := s.loadSprint(ctx, opts)
	if err != nil { return domain.HealthReport{}, err }

	rep := domain.HealthReport{Partial: d.partial}
	for _, e := range d.effective(opts.Assignee) {
		if e.SkippedInTotal { continue }
		bucket := classify.Health(e.OriginalHours, e.LoggedHours, e.RemainingHours)
		rep.Details = append(rep.Details, domain.HealthDetail{
			Key:            e.Item.Key,
			Summary:        e.Item.Summary,
			Assignee:       e.Item.Assignee,
			OriginalHours:  e.OriginalHours,
			SpentHours:     e.LoggedHours,
			RemainingHours: e.RemainingHours,
			Bucket:         bucket,
		})
		switch bucket {
		case domain.HealthUnderestimated:
			rep.Counts.Under++
		case domain.HealthGood:
			rep.Counts.Good++
		default:
			rep.Counts.Normal++
		}
		rep.Counts.Total++
	}
	return rep, nil
}

// AtRisk lists non-terminal items that blew their time box or due date.
func (s *Service) AtRisk(ctx context.Context, opts Options) (domain.AtRiskReport, error) {
	d, err := s.loadSprint(ctx, opts)
	if err != nil { return domain.AtRiskReport{}, err }

	now := s.now()
	rep := domain.AtRiskReport{Partial: d.partial}
	for _, e := range d.effective(opts.Assignee) {
		if e.SkippedInTotal { continue }
		it := e.Item
		it.OriginalEstimateHours = e.OriginalHours
		it.RemainingEstimateHours = e.RemainingHours
		reason, risky := classify.AtRisk(it, now)
		if !risky { continue }
		rep.Items = append(rep.Items, domain.AtRiskItem{
			Key:            it.Key,
			Summary:        it.Summary,
			Status:         it.Status,
			Priority:       it.Priority,
			Assignee:       it.Assignee,
			DueDate:        it.DueDate,
			OriginalHours:  e.OriginalHours,
			RemainingHours: e.RemainingHours,
			Reason:         reason,
		})
	}
	classify.SortAtRisk(rep.Items)
	rep.Total = len(rep.Items)
	return rep, nil
}

// ScopeChanges diffs the live sprint against its baseline.
func (s *Service) ScopeChanges(ctx context.Context, opts Options) (domain.ScopeChangesReport, error) {
	d, err := s.loadSprint(ctx, opts)
	if err != nil { return domain.ScopeChangesReport{}, err }
	hist, _ := s.history(ctx, d.sprint, d.items, false)
	res := scope.Detect(d.items, d.base, hist, d.sprint, s.now())

	rep := domain.ScopeChangesReport{
		Added:           res.Added,
		Removed:         res.Removed,
		PriorityChanged: res.PriorityChanged,
		Partial:         d.partial,
	}
	for _, ev := range res.Added { rep.Totals.AddedHours += ev.EstimateHours }
	for _, ev := range res.Removed { rep.Totals.RemovedHours += ev.EstimateHours }
	rep.Totals.AddedCount = len(res.Added)
	rep.Totals.RemovedCount = len(res.Removed)
	rep.Totals.PriorityChangedCount = len(res.PriorityChanged)
	return rep, nil
}

// Versions rolls remaining and logged hours up by fix version.
func (s *Service) Versions(ctx context.Context, opts Options) (domain.VersionReport, error) {
	d, err := s.loadSprint(ctx, opts)
	if err != nil { return domain.VersionReport{}, err }

	agg := map[string]*domain.VersionRollup{}
	for _, e := range d.effective(opts.Assignee) {
		if e.SkippedInTotal { continue }
		for _, v := range e.Item.FixVersions {
			r := agg[v]
			if r == nil {
				r = &domain.VersionRollup{Version: v}
				agg[v] = r
			}
			r.Items++
			r.RemainingHours += e.RemainingHours
			r.LoggedHours += e.LoggedHours
		}
	}
	rep := domain.VersionReport{Partial: d.partial}
	for _, r := range agg { rep.Versions = append(rep.Versions, *r) }
	sort.Slice(rep.Versions, func(i, j int) bool { return rep.Versions[i].Version < rep.Versions[j].Version })
	return rep, nil
}

func (s *Service) Boards(ctx context.Context) ([]domain.Board, error) {
	return s.jira.Boards(ctx)
}

// ActiveSprintInfo resolves the board and returns its running sprint.
func (s *Service) ActiveSprintInfo(ctx context.Context, opts Options) (domain.Sprint, error) {
	boardID, err := s.resolveBoard(ctx, opts)
	if err != nil { return domain.Sprint{}, err }
	sp, err := s.jira.ActiveSprint(ctx, boardID)
	if err != nil { return domain.Sprint{}, err }
	if sp == nil { return domain.Sprint{}, ErrNoActiveSprint }
	return *sp, nil
}

// ResetBaseline recaptures the snapshot from the live sprint contents.
func (s *Service) ResetBaseline(ctx context.Context, opts Options) (*domain.Baseline, error) {
	boardID, err := s.resolveBoard(ctx, opts)
	if err != nil { return nil, err }
	sp, err := s.jira.ActiveSprint(ctx, boardID)
	if err != nil { return nil, err }
	if sp == nil { return nil, ErrNoActiveSprint }
	items, _, err := s.jira.SprintIssues(ctx, sp.ID)
	if err != nil { return nil, err }
	return s.baselines.Reset(ctx, sp.ID, items)
}

// DashboardConfig loads the stored settings, falling back to env defaults.
func (s *Service) DashboardConfig(ctx context.Context) (domain.DashboardConfig, error) {
	dc := domain.DashboardConfig{
		BoardID:            s.cfg.BoardID,
		TeamSize:           s.cfg.TeamSize,
		WorkingDaysDefault: s.cfg.WorkingDaysDefault,
	}
	b, err := s.kv.Get(ctx, dashboardConfigKey)
	if errors.Is(err, repo.ErrNotFound) { return dc, nil }
	if err != nil { return dc, err }
	if err := json.Unmarshal(b, &dc); err != nil { return dc, err }
	return dc, nil
}

func (s *Service) SetDashboardConfig(ctx context.Context, dc domain.DashboardConfig) error {
	if dc.TeamSize < 1 { return errors.New("teamSize must be at least 1") }
	if dc.WorkingDaysDefault < 1 { return errors.New("workingDaysDefault must be at least 1") }
	b, err := json.Marshal(dc)
	if err != nil { return err }
	return s.kv.Set(ctx, dashboardConfigKey, b)
}

// CaptureBaselines makes sure the active sprint has a snapshot. Run daily so
// sprints that start between dashboard visits still get a day-one baseline.
func (s *Service) CaptureBaselines(ctx context.Context) (int, error) {
	boardID, err := s.resolveBoard(ctx, Options{})
	if err != nil { return 0, err }
	sp, err := s.jira.ActiveSprint(ctx, boardID)
	if err != nil { return 0, err }
	if sp == nil { return 0, nil }
	items, partial, err := s.jira.SprintIssues(ctx, sp.ID)
	if err != nil { return 0, err }
	if partial {
		s.log.Warn().Int64("sprint_id", sp.ID).Msg("partial issue set, skipping baseline capture")
		return 0, nil
	}
	if _, created, err := s.baselines.GetOrCreate(ctx, sp.ID, items); err != nil {
		return 0, err
	} else if created {
		s.log.Info().Int64("sprint_id", sp.ID).Msg("baseline captured")
	}
	return 1, nil
}

// Digest assembles the sprint status summary, optionally narrated, and sends
// it to the configured chats. The rendered text is returned either way.
func (s *Service) Digest(ctx context.Context) (string, error) {
	bd, err := s.Burndown(ctx, Options{})
	if err != nil { return "", err }
	hl, err := s.Health(ctx, Options{})
	if err != nil { return "", err }
	ar, err := s.AtRisk(ctx, Options{})
	if err != nil { return "", err }
	sc, err := s.ScopeChanges(ctx, Options{})
	if err != nil { return "", err }

	text := renderDigest(bd, hl, ar, sc)
	if s.llm != nil && s.llm.Enabled() {
		payload := map[string]any{"burndown": bd, "health": hl.Counts, "atRisk": ar.Items, "scope": sc.Totals}
		if narrative, err := s.llm.SprintNarrative(ctx, payload); err != nil {
			s.log.Warn().Err(err).Msg("narrative generation failed, sending plain digest")
		} else if strings.TrimSpace(narrative) != "" {
			text = text + "\n\n" + strings.TrimSpace(narrative)
		}
	}
	if s.tg != nil && s.tg.Enabled() && len(s.cfg.TelegramChatIDs) > 0 {
		s.tg.Broadcast(ctx, s.cfg.TelegramChatIDs, text)
	}
	return text, nil
}

func renderDigest(bd domain.BurndownReport, hl domain.HealthReport, ar domain.AtRiskReport, sc domain.ScopeChangesReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s status\n", bd.SprintName)
	fmt.Fprintf(&b, "Remaining %.1fh of %.1fh estimated, %.1fh logged\n", bd.CurrentRemainingHours, bd.TotalOriginalEstimateHours, bd.TotalSpentHours)
	fmt.Fprintf(&b, "Scope: +%.1fh / -%.1fh\n", bd.ScopeAddedTotal, bd.ScopeRemovedTotal)
	fmt.Fprintf(&b, "Health: %d underestimated, %d normal, %d good of %d\n", hl.Counts.Under, hl.Counts.Normal, hl.Counts.Good, hl.Counts.Total)
	if ar.Total > 0 {
		fmt.Fprintf(&b, "At risk (%d):", ar.Total)
		for i, it := range ar.Items {
			if i == 5 { fmt.Fprintf(&b, " and %d more", ar.Total-5); break }
			fmt.Fprintf(&b, " %s", it.Key)
		}
		b.WriteString("\n")
	}
	if sc.Totals.PriorityChangedCount > 0 {
		fmt.Fprintf(&b, "Priority changes: %d\n", sc.Totals.PriorityChangedCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func filterBaseline(b *domain.Baseline, assignee string) *domain.Baseline {
	if b == nil || strings.TrimSpace(assignee) == "" { return b }
	keep := map[string]bool{}
	for _, e := range b.Entries {
		if strings.EqualFold(e.Assignee, assignee) { keep[e.Key] = true }
	}
	for _, e := range b.Entries {
		if keep[e.Key] && e.ParentKey != "" { keep[e.ParentKey] = true }
	}
	out := &domain.Baseline{SprintID: b.SprintID, CapturedAt: b.CapturedAt}
	for _, e := range b.Entries {
		if keep[e.Key] { out.Entries = append(out.Entries, e) }
	}
	return out
}

func filterItems(items []domain.WorkItem, assignee string) []domain.WorkItem {
	if strings.TrimSpace(assignee) == "" { return items }
	keep := map[string]bool{}
	for _, it := range items {
		if strings.EqualFold(it.Assignee, assignee) { keep[it.Key] = true }
	}
	// parents of kept subtasks stay so their hours can roll up
	for _, it := range items {
		if keep[it.Key] && it.ParentKey != "" { keep[it.ParentKey] = true }
	}
	out := make([]domain.WorkItem, 0, len(items))
	for _, it := range items {
		if keep[it.Key] { out = append(out, it) }
	}
	return out
}
