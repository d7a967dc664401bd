package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/redinc23/hathor-red/internal/types"
)

// codeExtensions marks the file types the knowledge silo scan inspects.
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".rb": true,
	".java": true, ".rs": true, ".c": true, ".h": true, ".cpp": true,
	".cs": true,
}

// GetFileContent returns the decoded content of path at ref, or
// ErrFileNotFound when the path does not exist there.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	query := url.Values{}
	if ref != "" {
		query.Set("ref", ref)
	}
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path)
	if encoded := query.Encode(); encoded != "" {
		apiPath += "?" + encoded
	}

	var payload struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.apiRequest(ctx, "GET", owner, repo, apiPath, nil, &payload); err != nil {
		if isNotFound(err) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("fetching %s: %w", path, err)
	}

	if payload.Encoding != "base64" {
		return payload.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return string(decoded), nil
}

// CommitFile commits one file change onto commit.Branch, creating the
// branch from commit.Base first when it does not exist. Re-running with
// the same branch name is tolerated so an intervention can retry.
func (c *Client) CommitFile(ctx context.Context, owner, repo string, commit FileCommit) error {
	if commit.Branch == "" || commit.Path == "" {
		return fmt.Errorf("branch and path are required")
	}

	if err := c.ensureBranch(ctx, owner, repo, commit.Branch, commit.Base); err != nil {
		return err
	}

	body := map[string]interface{}{
		"message": commit.Message,
		"content": base64.StdEncoding.EncodeToString([]byte(commit.Content)),
		"branch":  commit.Branch,
	}
	if sha := c.fileSHA(ctx, owner, repo, commit.Path, commit.Branch); sha != "" {
		body["sha"] = sha
	}

	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, commit.Path)
	if err := c.apiRequest(ctx, "PUT", owner, repo, apiPath, body, nil); err != nil {
		return fmt.Errorf("committing %s to %s: %w", commit.Path, commit.Branch, err)
	}
	return nil
}

// ensureBranch points a new branch at the tip of base. An already
// existing branch is left alone.
func (c *Client) ensureBranch(ctx context.Context, owner, repo, branch, base string) error {
	if base == "" {
		base = "main"
	}

	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	refPath := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", owner, repo, base)
	if err := c.apiRequest(ctx, "GET", owner, repo, refPath, nil, &ref); err != nil {
		return fmt.Errorf("resolving branch %s: %w", base, err)
	}

	body := map[string]interface{}{
		"ref": "refs/heads/" + branch,
		"sha": ref.Object.SHA,
	}
	createPath := fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo)
	err := c.apiRequest(ctx, "POST", owner, repo, createPath, body, nil)
	if err != nil && !isUnprocessable(err) {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

// fileSHA returns the blob SHA of path on branch, or "" when the file
// does not exist there yet.
func (c *Client) fileSHA(ctx context.Context, owner, repo, path, branch string) string {
	var payload struct {
		SHA string `json:"sha"`
	}
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, path, url.QueryEscape(branch))
	if err := c.apiRequest(ctx, "GET", owner, repo, apiPath, nil, &payload); err != nil {
		return ""
	}
	return payload.SHA
}

// ListCodeFiles walks the git tree at ref and returns up to limit source
// file paths.
func (c *Client) ListCodeFiles(ctx context.Context, owner, repo, ref string, limit int) ([]string, error) {
	if ref == "" {
		ref = "main"
	}
	if limit <= 0 {
		limit = 50
	}

	var payload struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, url.QueryEscape(ref))
	if err := c.apiRequest(ctx, "GET", owner, repo, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("walking tree at %s: %w", ref, err)
	}

	var files []string
	for _, entry := range payload.Tree {
		if entry.Type != "blob" || !codeExtensions[filepath.Ext(entry.Path)] {
			continue
		}
		files = append(files, entry.Path)
		if len(files) >= limit {
			break
		}
	}
	return files, nil
}

// ListFileCommits returns up to limit commits touching path, most recent
// first. Author is the GitHub login when known, the git author name
// otherwise.
func (c *Client) ListFileCommits(ctx context.Context, owner, repo, path string, limit int) ([]types.CommitInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := url.Values{}
	query.Set("path", path)
	query.Set("per_page", fmt.Sprint(limit))

	var payload []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Author struct {
				Name string    `json:"name"`
				Date time.Time `json:"date"`
			} `json:"author"`
		} `json:"commit"`
		Author *struct {
			Login string `json:"login"`
		} `json:"author"`
	}
	apiPath := fmt.Sprintf("/repos/%s/%s/commits?%s", owner, repo, query.Encode())
	if err := c.apiRequest(ctx, "GET", owner, repo, apiPath, nil, &payload); err != nil {
		return nil, fmt.Errorf("listing commits for %s: %w", path, err)
	}

	commits := make([]types.CommitInfo, 0, len(payload))
	for _, entry := range payload {
		author := entry.Commit.Author.Name
		if entry.Author != nil && entry.Author.Login != "" {
			author = entry.Author.Login
		}
		commits = append(commits, types.CommitInfo{
			SHA:         entry.SHA,
			Author:      author,
			CommittedAt: entry.Commit.Author.Date,
		})
	}
	return commits, nil
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var payload struct {
		Name          string `json:"name"`
		DefaultBranch string `json:"default_branch"`
		Owner         struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	if err := c.apiRequest(ctx, "GET", owner, repo, fmt.Sprintf("/repos/%s/%s", owner, repo), nil, &payload); err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, repo, err)
	}

	result := &Repository{
		Owner:         payload.Owner.Login,
		Name:          payload.Name,
		DefaultBranch: payload.DefaultBranch,
	}
	if result.Owner == "" {
		result.Owner = owner
	}
	if result.DefaultBranch == "" {
		result.DefaultBranch = "main"
	}
	return result, nil
}
