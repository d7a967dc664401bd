package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/redinc23/hathor-red/internal/types"
)

// FakeIssue is one issue held by the Fake, including how often it was
// updated after creation.
type FakeIssue struct {
	Number    int
	Title     string
	Body      string
	Labels    []string
	Assignees []string
	State     string
	Updates   int
}

// FakePull is one pull request held by the Fake.
type FakePull struct {
	Number int
	Title  string
	Body   string
	Head   string
	Base   string
}

// Fake is the in-memory Port double. Seed the exported fields before the
// test, inspect them afterwards. Setting Err makes every call fail.
type Fake struct {
	mu sync.Mutex

	Runs        map[string]*types.WorkflowRun
	BranchRuns  map[string][]types.WorkflowRun
	Issues      []*FakeIssue
	Pulls       []*FakePull
	Files       map[string]string
	CheckRuns   map[string][]CheckRun
	CodeFiles   []string
	FileCommits map[string][]types.CommitInfo
	Commits     []FileCommit
	PullFiles   map[int][]PullFile
	Logs        map[string]string
	Repo        *Repository

	Err error

	nextIssue int
	nextPull  int
}

var _ Port = (*Fake)(nil)

// NewFake returns an empty double ready for seeding.
func NewFake() *Fake {
	return &Fake{
		Runs:        make(map[string]*types.WorkflowRun),
		BranchRuns:  make(map[string][]types.WorkflowRun),
		Files:       make(map[string]string),
		CheckRuns:   make(map[string][]CheckRun),
		FileCommits: make(map[string][]types.CommitInfo),
		PullFiles:   make(map[int][]PullFile),
		Logs:        make(map[string]string),
	}
}

func (f *Fake) GetWorkflowRun(ctx context.Context, id types.RunID) (*types.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	run, ok := f.Runs[id.String()]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Path: id.String(), Message: "run not found"}
	}
	copied := *run
	return &copied, nil
}

func (f *Fake) ListRecentRuns(ctx context.Context, owner, repo, branch string, limit int) ([]types.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	runs := f.BranchRuns[branch]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return append([]types.WorkflowRun(nil), runs...), nil
}

func (f *Fake) FindExistingIssue(ctx context.Context, owner, repo, token string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	return f.findOpenIssue(token), nil
}

func (f *Fake) findOpenIssue(token string) int {
	for _, issue := range f.Issues {
		if issue.State == "open" && strings.Contains(issue.Title, token) {
			return issue.Number
		}
	}
	return 0
}

func (f *Fake) CreateOrUpdateIssue(ctx context.Context, owner, repo string, issue *types.TriageIssue) (*IssueRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if err := issue.Validate(); err != nil {
		return nil, err
	}

	if number := f.findOpenIssue(issue.TitleToken()); number > 0 {
		for _, existing := range f.Issues {
			if existing.Number == number {
				existing.Title = issue.Title
				existing.Body = issue.Body
				existing.Labels = append([]string(nil), issue.Labels...)
				existing.Updates++
				break
			}
		}
		return &IssueRef{Number: number, HTMLURL: f.issueURL(owner, repo, number), Created: false}, nil
	}

	f.nextIssue++
	f.Issues = append(f.Issues, &FakeIssue{
		Number: f.nextIssue,
		Title:  issue.Title,
		Body:   issue.Body,
		Labels: append([]string(nil), issue.Labels...),
		State:  "open",
	})
	return &IssueRef{Number: f.nextIssue, HTMLURL: f.issueURL(owner, repo, f.nextIssue), Created: true}, nil
}

func (f *Fake) CreateIssue(ctx context.Context, owner, repo string, spec IssueSpec) (*IssueRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}

	f.nextIssue++
	f.Issues = append(f.Issues, &FakeIssue{
		Number:    f.nextIssue,
		Title:     spec.Title,
		Body:      spec.Body,
		Labels:    append([]string(nil), spec.Labels...),
		Assignees: append([]string(nil), spec.Assignees...),
		State:     "open",
	})
	return &IssueRef{Number: f.nextIssue, HTMLURL: f.issueURL(owner, repo, f.nextIssue), Created: true}, nil
}

func (f *Fake) CreatePull(ctx context.Context, owner, repo string, spec PullSpec) (*PullRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}

	f.nextPull++
	f.Pulls = append(f.Pulls, &FakePull{
		Number: f.nextPull,
		Title:  spec.Title,
		Body:   spec.Body,
		Head:   spec.Head,
		Base:   spec.Base,
	})
	url := fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, f.nextPull)
	return &PullRef{Number: f.nextPull, HTMLURL: url}, nil
}

func (f *Fake) CommitFile(ctx context.Context, owner, repo string, commit FileCommit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Commits = append(f.Commits, commit)
	return nil
}

func (f *Fake) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	content, ok := f.Files[path]
	if !ok {
		return "", ErrFileNotFound
	}
	return content, nil
}

func (f *Fake) ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]CheckRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]CheckRun(nil), f.CheckRuns[sha]...), nil
}

func (f *Fake) ListCodeFiles(ctx context.Context, owner, repo, ref string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	files := f.CodeFiles
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return append([]string(nil), files...), nil
}

func (f *Fake) ListFileCommits(ctx context.Context, owner, repo, path string, limit int) ([]types.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	commits := f.FileCommits[path]
	if limit > 0 && len(commits) > limit {
		commits = commits[:limit]
	}
	return append([]types.CommitInfo(nil), commits...), nil
}

func (f *Fake) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Repo != nil {
		copied := *f.Repo
		return &copied, nil
	}
	return &Repository{Owner: owner, Name: repo, DefaultBranch: "main"}, nil
}

func (f *Fake) GetRunLogs(ctx context.Context, id types.RunID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	return f.Logs[id.String()], nil
}

func (f *Fake) ListPullFiles(ctx context.Context, owner, repo string, number int) ([]PullFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]PullFile(nil), f.PullFiles[number]...), nil
}

// OpenIssue returns the recorded issue with the given number, or nil.
func (f *Fake) OpenIssue(number int) *FakeIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, issue := range f.Issues {
		if issue.Number == number {
			return issue
		}
	}
	return nil
}

func (f *Fake) issueURL(owner, repo string, number int) string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", owner, repo, number)
}
