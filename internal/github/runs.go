package github

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/redinc23/hathor-red/internal/types"
)

const (
	// maxLogArchiveBytes caps the downloaded log zip.
	maxLogArchiveBytes = 20 << 20
	// maxLogTextBytes caps the extracted log text handed to callers.
	maxLogTextBytes = 512 << 10
)

type runPayload struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	HeadBranch   string    `json:"head_branch"`
	HeadSHA      string    `json:"head_sha"`
	Event        string    `json:"event"`
	Conclusion   string    `json:"conclusion"`
	HTMLURL      string    `json:"html_url"`
	LogsURL      string    `json:"logs_url"`
	RunStartedAt time.Time `json:"run_started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// toWorkflowRun projects the API payload onto the domain type. A null
// conclusion (run still queued when the webhook raced the API) maps to
// neutral.
func (p *runPayload) toWorkflowRun(owner, repo string) *types.WorkflowRun {
	conclusion := types.Conclusion(p.Conclusion)
	if p.Conclusion == "" {
		conclusion = types.ConclusionNeutral
	}
	return &types.WorkflowRun{
		ID:           types.RunID{Owner: owner, Repo: repo, ID: p.ID},
		Name:         p.Name,
		HeadBranch:   p.HeadBranch,
		HeadSHA:      p.HeadSHA,
		Conclusion:   conclusion,
		Event:        p.Event,
		HTMLURL:      p.HTMLURL,
		LogsURL:      p.LogsURL,
		RunStartedAt: p.RunStartedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// GetWorkflowRun fetches one run and validates the projection.
func (c *Client) GetWorkflowRun(ctx context.Context, id types.RunID) (*types.WorkflowRun, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	var payload runPayload
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d", id.Owner, id.Repo, id.ID)
	if err := c.apiRequest(ctx, "GET", id.Owner, id.Repo, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", id, err)
	}

	run := payload.toWorkflowRun(id.Owner, id.Repo)
	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return run, nil
}

// ListRecentRuns returns up to limit runs for a branch, most recent
// first. Entries the API reports incompletely are skipped.
func (c *Client) ListRecentRuns(ctx context.Context, owner, repo, branch string, limit int) ([]types.WorkflowRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := url.Values{}
	query.Set("branch", branch)
	query.Set("per_page", fmt.Sprint(limit))

	var payload struct {
		WorkflowRuns []runPayload `json:"workflow_runs"`
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/runs?%s", owner, repo, query.Encode())
	if err := c.apiRequest(ctx, "GET", owner, repo, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("listing runs for %s/%s: %w", owner, repo, err)
	}

	runs := make([]types.WorkflowRun, 0, len(payload.WorkflowRuns))
	for _, entry := range payload.WorkflowRuns {
		run := entry.toWorkflowRun(owner, repo)
		if run.Validate() != nil {
			continue
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// ListCheckRuns returns the check runs recorded for a commit.
func (c *Client) ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]CheckRun, error) {
	var payload struct {
		CheckRuns []struct {
			Name        string    `json:"name"`
			Status      string    `json:"status"`
			Conclusion  string    `json:"conclusion"`
			CompletedAt time.Time `json:"completed_at"`
		} `json:"check_runs"`
	}
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs?per_page=100", owner, repo, sha)
	if err := c.apiRequest(ctx, "GET", owner, repo, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("listing check runs for %s: %w", sha, err)
	}

	checks := make([]CheckRun, 0, len(payload.CheckRuns))
	for _, entry := range payload.CheckRuns {
		checks = append(checks, CheckRun{
			Name:        entry.Name,
			Status:      entry.Status,
			Conclusion:  types.Conclusion(entry.Conclusion),
			CompletedAt: entry.CompletedAt,
		})
	}
	return checks, nil
}

// GetRunLogs downloads the run's log archive and concatenates its text
// entries, bounded by maxLogTextBytes.
func (c *Client) GetRunLogs(ctx context.Context, id types.RunID) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/logs", id.Owner, id.Repo, id.ID)
	archive, err := c.rawRequest(ctx, id.Owner, id.Repo, path, maxLogArchiveBytes)
	if err != nil {
		return "", fmt.Errorf("downloading logs for %s: %w", id, err)
	}
	return extractLogText(archive)
}

// extractLogText pulls the .txt entries out of a log zip and joins them.
func extractLogText(archive []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", fmt.Errorf("opening log archive: %w", err)
	}

	var text strings.Builder
	for _, entry := range reader.File {
		if !strings.HasSuffix(entry.Name, ".txt") {
			continue
		}
		if text.Len() >= maxLogTextBytes {
			break
		}

		file, err := entry.Open()
		if err != nil {
			continue
		}
		remaining := int64(maxLogTextBytes - text.Len())
		data, err := io.ReadAll(io.LimitReader(file, remaining))
		file.Close()
		if err != nil {
			continue
		}
		text.Write(data)
		text.WriteByte('\n')
	}
	return text.String(), nil
}
