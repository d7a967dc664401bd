package github

import (
	"context"
	"fmt"
	"net/url"

	"github.com/redinc23/hathor-red/internal/types"
)

type issueResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// FindExistingIssue searches open issues whose title contains token and
// returns the first match, or 0 when none exists. The search index is
// the source of truth for deduplication on webhook retry, not the state
// store link.
func (c *Client) FindExistingIssue(ctx context.Context, owner, repo, token string) (int, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("repo:%s/%s is:issue is:open in:title %s", owner, repo, token))

	var result struct {
		TotalCount int `json:"total_count"`
		Items      []struct {
			Number int `json:"number"`
		} `json:"items"`
	}
	if err := c.apiRequest(ctx, "GET", owner, repo, "/search/issues?"+query.Encode(), nil, &result); err != nil {
		return 0, fmt.Errorf("searching issues in %s/%s: %w", owner, repo, err)
	}

	if len(result.Items) == 0 {
		return 0, nil
	}
	return result.Items[0].Number, nil
}

// CreateOrUpdateIssue refreshes the open issue carrying the same
// fingerprint token when one exists, otherwise creates a new one.
func (c *Client) CreateOrUpdateIssue(ctx context.Context, owner, repo string, issue *types.TriageIssue) (*IssueRef, error) {
	if err := issue.Validate(); err != nil {
		return nil, err
	}

	existing, err := c.FindExistingIssue(ctx, owner, repo, issue.TitleToken())
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"title":  issue.Title,
		"body":   issue.Body,
		"labels": issue.Labels,
	}

	var resp issueResponse
	if existing > 0 {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, existing)
		if err := c.apiRequest(ctx, "PATCH", owner, repo, path, body, &resp); err != nil {
			return nil, fmt.Errorf("updating issue #%d: %w", existing, err)
		}
		return &IssueRef{Number: resp.Number, HTMLURL: resp.HTMLURL, Created: false}, nil
	}

	path := fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
	if err := c.apiRequest(ctx, "POST", owner, repo, path, body, &resp); err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	return &IssueRef{Number: resp.Number, HTMLURL: resp.HTMLURL, Created: true}, nil
}

// CreateIssue opens a new issue with labels and assignees.
func (c *Client) CreateIssue(ctx context.Context, owner, repo string, spec IssueSpec) (*IssueRef, error) {
	if spec.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	body := map[string]interface{}{
		"title": spec.Title,
		"body":  spec.Body,
	}
	if len(spec.Labels) > 0 {
		body["labels"] = spec.Labels
	}
	if len(spec.Assignees) > 0 {
		body["assignees"] = spec.Assignees
	}

	var resp issueResponse
	path := fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
	if err := c.apiRequest(ctx, "POST", owner, repo, path, body, &resp); err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	return &IssueRef{Number: resp.Number, HTMLURL: resp.HTMLURL, Created: true}, nil
}

// CreatePull opens a pull request from spec.Head onto spec.Base.
func (c *Client) CreatePull(ctx context.Context, owner, repo string, spec PullSpec) (*PullRef, error) {
	if spec.Head == "" || spec.Base == "" {
		return nil, fmt.Errorf("head and base branches are required")
	}

	body := map[string]interface{}{
		"title": spec.Title,
		"body":  spec.Body,
		"head":  spec.Head,
		"base":  spec.Base,
	}

	var resp issueResponse
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := c.apiRequest(ctx, "POST", owner, repo, path, body, &resp); err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}
	return &PullRef{Number: resp.Number, HTMLURL: resp.HTMLURL}, nil
}

// ListPullFiles returns the files touched by a pull request.
func (c *Client) ListPullFiles(ctx context.Context, owner, repo string, number int) ([]PullFile, error) {
	var payload []struct {
		Filename  string `json:"filename"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=100", owner, repo, number)
	if err := c.apiRequest(ctx, "GET", owner, repo, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("listing files for pull #%d: %w", number, err)
	}

	files := make([]PullFile, 0, len(payload))
	for _, entry := range payload {
		files = append(files, PullFile{
			Path:      entry.Filename,
			Additions: entry.Additions,
			Deletions: entry.Deletions,
		})
	}
	return files, nil
}
