package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/repo"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/services"
	"github.com/rs/zerolog"
)

type stubService struct {
	burndown   domain.BurndownReport
	err        error
	lastOpts   services.Options
	config     domain.DashboardConfig
	configSets []domain.DashboardConfig
}

func (s *stubService) Burndown(_ context.Context, o services.Options) (domain.BurndownReport, error) {
	s.lastOpts = o
	return s.burndown, s.err
}
func (s *stubService) Health(context.Context, services.Options) (domain.HealthReport, error) {
	return domain.HealthReport{}, s.err
}
func (s *stubService) AtRisk(context.Context, services.Options) (domain.AtRiskReport, error) {
	return domain.AtRiskReport{}, s.err
}
func (s *stubService) ScopeChanges(context.Context, services.Options) (domain.ScopeChangesReport, error) {
	return domain.ScopeChangesReport{}, s.err
}
func (s *stubService) Versions(context.Context, services.Options) (domain.VersionReport, error) {
	return domain.VersionReport{}, s.err
}
func (s *stubService) Boards(context.Context) ([]domain.Board, error) {
	return []domain.Board{{ID: 1, Name: "Web", Type: "scrum"}}, s.err
}
func (s *stubService) ActiveSprintInfo(context.Context, services.Options) (domain.Sprint, error) {
	return domain.Sprint{ID: 9, Name: "Sprint 42"}, s.err
}
func (s *stubService) ResetBaseline(context.Context, services.Options) (*domain.Baseline, error) {
	return &domain.Baseline{SprintID: 9}, s.err
}
func (s *stubService) DashboardConfig(context.Context) (domain.DashboardConfig, error) {
	return s.config, s.err
}
func (s *stubService) SetDashboardConfig(_ context.Context, dc domain.DashboardConfig) error {
	s.configSets = append(s.configSets, dc)
	return s.err
}
func (s *stubService) Digest(context.Context) (string, error) { return "", s.err }

type stubRuns struct{ lr *repo.LastRun }

func (s *stubRuns) GetLastRun(context.Context) (*repo.LastRun, error) {
	if s.lr == nil { return nil, repo.ErrNotFound }
	return s.lr, nil
}

func newTestRouter(svc *stubService) *httptest.Server {
	cfg := config.Config{AppEnv: "test"}
	return httptest.NewServer(NewRouter(cfg, zerolog.Nop(), svc, &stubRuns{}))
}

func TestBurndownEndpointEnvelope(t *testing.T) {
	svc := &stubService{burndown: domain.BurndownReport{SprintName: "Sprint 42", MaxCapacityHours: 400}}
	ts := newTestRouter(svc)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/burndown?boardId=3&assignee=Dana")
	if err != nil { t.Fatal(err) }
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		OK   bool                  `json:"ok"`
		Data domain.BurndownReport `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil { t.Fatal(err) }
	if !out.OK || out.Data.SprintName != "Sprint 42" {
		t.Fatalf("envelope = %+v", out)
	}
	if svc.lastOpts.BoardID != 3 || svc.lastOpts.Assignee != "Dana" {
		t.Fatalf("opts = %+v", svc.lastOpts)
	}
}

func TestNoActiveSprintMapsTo404(t *testing.T) {
	svc := &stubService{err: services.ErrNoActiveSprint}
	ts := newTestRouter(svc)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil { t.Fatal(err) }
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestBoardSprintRejectsBadID(t *testing.T) {
	ts := newTestRouter(&stubService{})
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/boards/zero/sprint")
	if err != nil { t.Fatal(err) }
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPutConfig(t *testing.T) {
	svc := &stubService{}
	ts := newTestRouter(svc)
	defer ts.Close()

	req, _ := httpNewRequest("PUT", ts.URL+"/api/config", `{"boardId":7,"teamSize":4,"workingDaysDefault":10}`)
	resp, err := ts.Client().Do(req)
	if err != nil { t.Fatal(err) }
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(svc.configSets) != 1 || svc.configSets[0].BoardID != 7 {
		t.Fatalf("sets = %+v", svc.configSets)
	}
}

func httpNewRequest(method, url, body string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequest(method, url, strings.NewReader(body))
	if err != nil { return nil, err }
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func TestLastRunNotFound(t *testing.T) {
	ts := newTestRouter(&stubService{})
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/admin/last-run")
	if err != nil { t.Fatal(err) }
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
