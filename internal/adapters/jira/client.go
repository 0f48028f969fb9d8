package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
)

const pageSize = 50

type Client struct {
	baseURL string
	token   string
	user    string
	pass    string
	http    *http.Client
	log     zerolog.Logger
	apiVer  string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.JiraBaseURL,
		token:   cfg.JiraPAT,
		user:    cfg.JiraUsername,
		pass:    cfg.JiraPassword,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		log:     log,
		apiVer:  cfg.JiraAPIVersion,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasPrefix(path, "/") { path = "/" + path }
	u := base + path
	if len(q) > 0 { u = u + "?" + q.Encode() }
	return u
}

func (c *Client) doJSON(ctx context.Context, method, u string, body any) (map[string]any, error) {
	if c.baseURL == "" { return nil, errors.New("jira: empty baseURL") }
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil { return nil, err }
		payload = b
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		var r io.Reader
		if payload != nil { r = strings.NewReader(string(payload)) }
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil { return nil, err }
		if payload != nil { req.Header.Set("Content-Type", "application/json") }
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		} else if c.user != "" && c.pass != "" {
			req.SetBasicAuth(c.user, c.pass)
		}
		resp, err := c.http.Do(req)
		if err != nil { lastErr = err } else {
			b, rerr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if rerr != nil { return nil, rerr }
			if resp.StatusCode >= 300 {
				// retry on 429/5xx
				if resp.StatusCode == 429 || resp.StatusCode >= 500 {
					lastErr = fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
				} else {
					return nil, fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
				}
			} else {
				var out map[string]any
				if err := json.Unmarshal(b, &out); err != nil { return nil, err }
				return out, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	return nil, lastErr
}

// Boards lists all Jira Software boards, following pagination.
func (c *Client) Boards(ctx context.Context) ([]domain.Board, error) {
	var out []domain.Board
	start := 0
	for {
		q := url.Values{}
		if start > 0 { q.Set("startAt", fmt.Sprint(start)) }
		q.Set("maxResults", fmt.Sprint(pageSize))
		page, err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/agile/1.0/board", q), nil)
		if err != nil { return nil, err }
		vals, _ := page["values"].([]any)
		for _, v := range vals {
			m, _ := v.(map[string]any)
			if m == nil { continue }
			out = append(out, domain.Board{ID: int64(num(m["id"])), Name: str(m["name"]), Type: str(m["type"])})
		}
		if boolVal(page["isLast"]) || len(vals) == 0 { break }
		start += len(vals)
	}
	return out, nil
}

// ActiveSprint returns the board's active sprint, or nil when the board has
// none running.
func (c *Client) ActiveSprint(ctx context.Context, boardID int64) (*domain.Sprint, error) {
	if boardID <= 0 { return nil, errors.New("jira: invalid board id") }
	q := url.Values{}
	q.Set("state", "active")
	path := "/rest/agile/1.0/board/" + strconv.FormatInt(boardID, 10) + "/sprint"
	page, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), nil)
	if err != nil { return nil, err }
	vals, _ := page["values"].([]any)
	for _, v := range vals {
		m, _ := v.(map[string]any)
		if m == nil { continue }
		s := domain.Sprint{
			ID:    int64(num(m["id"])),
			Name:  str(m["name"]),
			State: str(m["state"]),
		}
		if t, ok := parseTimeUTC(str(m["startDate"])); ok { s.StartDate = t }
		if t, ok := parseTimeUTC(str(m["endDate"])); ok { s.EndDate = t }
		return &s, nil
	}
	return nil, nil
}

// SprintIssues fetches every issue in the sprint. When a later page fails
// after at least one succeeded, the issues gathered so far are returned with
// partial set so callers can degrade instead of erroring out.
func (c *Client) SprintIssues(ctx context.Context, sprintID int64) ([]domain.WorkItem, bool, error) {
	if sprintID <= 0 { return nil, false, errors.New("jira: invalid sprint id") }
	var out []domain.WorkItem
	start := 0
	for {
		q := url.Values{}
		if start > 0 { q.Set("startAt", fmt.Sprint(start)) }
		q.Set("maxResults", fmt.Sprint(pageSize))
		q.Set("fields", issueFields)
		path := "/rest/agile/1.0/sprint/" + strconv.FormatInt(sprintID, 10) + "/issue"
		page, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), nil)
		if err != nil {
			if len(out) > 0 {
				c.log.Warn().Err(err).Int64("sprint_id", sprintID).Int("fetched", len(out)).Msg("sprint issue page failed, returning partial set")
				return out, true, nil
			}
			return nil, false, err
		}
		issues, _ := page["issues"].([]any)
		for _, v := range issues {
			m, _ := v.(map[string]any)
			if m == nil { continue }
			out = append(out, parseIssue(m))
		}
		total := int(num(page["total"]))
		start += len(issues)
		if len(issues) == 0 || (total > 0 && start >= total) { break }
	}
	return out, false, nil
}

const issueFields = "summary,issuetype,status,priority,assignee,duedate,created,updated,parent,subtasks,fixVersions,timeoriginalestimate,timeestimate,timespent"

// Changelog returns the issue's change history oldest first.
func (c *Client) Changelog(ctx context.Context, key string) ([]domain.ChangeEvent, error) {
	if key == "" { return nil, errors.New("jira: empty issue key") }
	var out []domain.ChangeEvent
	start := 0
	for {
		q := url.Values{}
		if start > 0 { q.Set("startAt", fmt.Sprint(start)) }
		q.Set("maxResults", fmt.Sprint(pageSize))
		path := "/rest/api/" + c.restVer() + "/issue/" + url.PathEscape(key) + "/changelog"
		page, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), nil)
		if err != nil { return nil, err }
		vals, _ := page["values"].([]any)
		if vals == nil { vals, _ = page["histories"].([]any) }
		for _, v := range vals {
			h, _ := v.(map[string]any)
			if h == nil { continue }
			at, ok := parseTimeUTC(str(h["created"]))
			if !ok { continue }
			items, _ := h["items"].([]any)
			for _, it := range items {
				im, _ := it.(map[string]any)
				if im == nil { continue }
				out = append(out, domain.ChangeEvent{
					At:    at,
					Field: str(im["field"]),
					From:  str(im["fromString"]),
					To:    str(im["toString"]),
				})
			}
		}
		total := int(num(page["total"]))
		start += len(vals)
		if len(vals) == 0 || (total > 0 && start >= total) { break }
	}
	return out, nil
}

// Worklogs returns the issue's time records.
func (c *Client) Worklogs(ctx context.Context, key string) ([]domain.WorklogEntry, error) {
	if key == "" { return nil, errors.New("jira: empty issue key") }
	var out []domain.WorklogEntry
	start := 0
	for {
		q := url.Values{}
		if start > 0 { q.Set("startAt", fmt.Sprint(start)) }
		q.Set("maxResults", fmt.Sprint(pageSize))
		path := "/rest/api/" + c.restVer() + "/issue/" + url.PathEscape(key) + "/worklog"
		page, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), nil)
		if err != nil { return nil, err }
		logs, _ := page["worklogs"].([]any)
		for _, v := range logs {
			m, _ := v.(map[string]any)
			if m == nil { continue }
			started, ok := parseTimeUTC(str(m["started"]))
			if !ok { continue }
			out = append(out, domain.WorklogEntry{Date: started, Hours: num(m["timeSpentSeconds"]) / 3600})
		}
		total := int(num(page["total"]))
		start += len(logs)
		if len(logs) == 0 || (total > 0 && start >= total) { break }
	}
	return out, nil
}

func (c *Client) restVer() string {
	if c.apiVer == "2" { return "2" }
	return "3"
}

func parseIssue(m map[string]any) domain.WorkItem {
	f, _ := m["fields"].(map[string]any)
	if f == nil { f = map[string]any{} }
	it := domain.WorkItem{Key: str(m["key"]), Summary: str(f["summary"])}
	if t, _ := f["issuetype"].(map[string]any); t != nil {
		it.Type = str(t["name"])
		it.IsSubtask = boolVal(t["subtask"])
	}
	if s, _ := f["status"].(map[string]any); s != nil { it.Status = str(s["name"]) }
	if p, _ := f["priority"].(map[string]any); p != nil { it.Priority = str(p["name"]) }
	if a, _ := f["assignee"].(map[string]any); a != nil {
		it.Assignee = str(a["displayName"])
		if it.Assignee == "" { it.Assignee = str(a["name"]) }
	}
	if pm, _ := f["parent"].(map[string]any); pm != nil { it.ParentKey = str(pm["key"]) }
	if subs, _ := f["subtasks"].([]any); len(subs) > 0 { it.HasSubtasks = true }
	if vs, _ := f["fixVersions"].([]any); vs != nil {
		for _, v := range vs {
			vm, _ := v.(map[string]any)
			if vm == nil { continue }
			if n := str(vm["name"]); n != "" { it.FixVersions = append(it.FixVersions, n) }
		}
	}
	if t, ok := parseTimeUTC(str(f["duedate"])); ok { it.DueDate = &t }
	if t, ok := parseTimeUTC(str(f["created"])); ok { it.CreatedAt = &t }
	if t, ok := parseTimeUTC(str(f["updated"])); ok { it.UpdatedAt = &t }
	it.OriginalEstimateHours = num(f["timeoriginalestimate"]) / 3600
	it.RemainingEstimateHours = num(f["timeestimate"]) / 3600
	it.LoggedHours = num(f["timespent"]) / 3600
	return it
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func boolVal(v any) bool {
	b, _ := v.(bool)
	return b
}

func parseTimeUTC(s string) (time.Time, bool) {
	if s == "" { return time.Time{}, false }
	for _, layout := range []string{
		"2006-01-02T15:04:05.000-0700",
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil { return t.UTC(), true }
	}
	return time.Time{}, false
}
