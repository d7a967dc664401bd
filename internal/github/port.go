// Package github talks to the GitHub REST API on behalf of the triage
// pipeline and the guardian angel. The Port interface is the seam the
// orchestration layers depend on; Client is the production adapter and
// Fake the in-memory test double.
package github

import (
	"context"
	"errors"
	"time"

	"github.com/redinc23/hathor-red/internal/types"
)

// ErrFileNotFound is returned by GetFileContent when the path does not
// exist at the requested ref.
var ErrFileNotFound = errors.New("file not found")

// IssueRef identifies an issue after a create or update call.
type IssueRef struct {
	Number  int
	HTMLURL string

	// Created is false when an existing issue was updated instead.
	Created bool
}

// IssueSpec describes a new issue.
type IssueSpec struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
}

// PullRef identifies a created pull request.
type PullRef struct {
	Number  int
	HTMLURL string
}

// PullSpec describes a new pull request. Head must already exist.
type PullSpec struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// FileCommit is one file change committed to Branch, creating the branch
// from Base when it does not exist yet.
type FileCommit struct {
	Branch  string
	Base    string
	Path    string
	Content string
	Message string
}

// CheckRun is the completed status of one named check on a commit.
type CheckRun struct {
	Name        string
	Status      string
	Conclusion  types.Conclusion
	CompletedAt time.Time
}

// PullFile is one file touched by a pull request.
type PullFile struct {
	Path      string
	Additions int
	Deletions int
}

// Repository is the metadata projection the guardian needs.
type Repository struct {
	Owner         string
	Name          string
	DefaultBranch string
}

// Port is the GitHub surface the triage pipeline and the angel depend
// on. Implementations must be safe for concurrent use.
type Port interface {
	// GetWorkflowRun fetches the full snapshot of one workflow run.
	GetWorkflowRun(ctx context.Context, id types.RunID) (*types.WorkflowRun, error)

	// ListRecentRuns returns up to limit completed runs for a branch,
	// most recent first. Runs the API reports with missing fields are
	// skipped, not errors.
	ListRecentRuns(ctx context.Context, owner, repo, branch string, limit int) ([]types.WorkflowRun, error)

	// FindExistingIssue searches open issues whose title contains token
	// and returns the first match, or 0 when none exists.
	FindExistingIssue(ctx context.Context, owner, repo, token string) (int, error)

	// CreateOrUpdateIssue updates the open issue carrying the same
	// fingerprint token if one exists, otherwise creates a new one.
	CreateOrUpdateIssue(ctx context.Context, owner, repo string, issue *types.TriageIssue) (*IssueRef, error)

	// CreateIssue opens a new issue with labels and assignees.
	CreateIssue(ctx context.Context, owner, repo string, spec IssueSpec) (*IssueRef, error)

	// CreatePull opens a pull request from spec.Head onto spec.Base.
	CreatePull(ctx context.Context, owner, repo string, spec PullSpec) (*PullRef, error)

	// CommitFile commits one file change onto commit.Branch, creating
	// the branch from commit.Base first when needed.
	CommitFile(ctx context.Context, owner, repo string, commit FileCommit) error

	// GetFileContent returns the decoded content of path at ref, or
	// ErrFileNotFound.
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)

	// ListCheckRuns returns the check runs recorded for a commit.
	ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]CheckRun, error)

	// ListCodeFiles returns up to limit source file paths at ref.
	ListCodeFiles(ctx context.Context, owner, repo, ref string, limit int) ([]string, error)

	// ListFileCommits returns up to limit commits touching path, most
	// recent first.
	ListFileCommits(ctx context.Context, owner, repo, path string, limit int) ([]types.CommitInfo, error)

	// GetRepository fetches repository metadata, notably the default
	// branch.
	GetRepository(ctx context.Context, owner, repo string) (*Repository, error)

	// GetRunLogs downloads and concatenates the text logs of a run.
	GetRunLogs(ctx context.Context, id types.RunID) (string, error)

	// ListPullFiles returns the files touched by a pull request.
	ListPullFiles(ctx context.Context, owner, repo string, number int) ([]PullFile, error)
}
