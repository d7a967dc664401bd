package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redinc23/hathor-red/internal/config"
	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/remedy"
	"github.com/redinc23/hathor-red/internal/state"
	"github.com/redinc23/hathor-red/internal/types"
)

// defaultOperationTTL bounds how long a processed operation or fingerprint
// link stays visible. Matches the state store's 30-day ledger retention.
const defaultOperationTTL = 30 * 24 * time.Hour

// Result summarizes one pass through the reactive pipeline.
type Result struct {
	Outcome         types.TriageOutcome
	FingerprintHash string
	IssueNumber     int
	Remediation     *types.RemediationResult
}

// LessonTeacher distills an organizational lesson from a triaged failure.
// The angel satisfies this; the pipeline treats teaching as best effort.
type LessonTeacher interface {
	TeachFromFailure(ctx context.Context, run *types.WorkflowRun, logs string) (*types.Lesson, error)
}

// Service orchestrates triage for completed workflow runs: claim the
// delivery, fetch the run, file or update the fingerprint-keyed issue,
// optionally attempt remediation, and finalize the operation ledger.
type Service struct {
	github   github.Port
	store    state.Store
	registry *remedy.Registry
	bus      events.Publisher
	teacher  LessonTeacher
	guardian config.GuardianConfig
	opTTL    time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewService wires the pipeline. The remediation registry may be nil only
// when autofix is disabled; missing ports fail construction.
func NewService(gh github.Port, store state.Store, registry *remedy.Registry, bus events.Publisher, guardian config.GuardianConfig, opTTL time.Duration, logger *slog.Logger) (*Service, error) {
	if gh == nil {
		return nil, fmt.Errorf("github port is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if guardian.AutofixEnabled && registry == nil {
		return nil, fmt.Errorf("autofix is enabled but no remediation registry was provided")
	}
	if opTTL <= 0 {
		opTTL = defaultOperationTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		github:   gh,
		store:    store,
		registry: registry,
		bus:      bus,
		guardian: guardian,
		opTTL:    opTTL,
		log:      logger,
		now:      time.Now,
	}, nil
}

// SetTeacher attaches the lesson hook. A nil teacher disables teaching.
func (s *Service) SetTeacher(teacher LessonTeacher) {
	s.teacher = teacher
}

// HandleRunCompleted processes one workflow_run.completed delivery. The
// operation id is claimed atomically before any side effect; a failed
// pipeline releases the claim so GitHub's redelivery retries the full
// sequence. Duplicate deliveries return without network writes.
func (s *Service) HandleRunCompleted(ctx context.Context, id types.RunID) (*Result, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("validating run id: %w", err)
	}

	operationID := id.OperationID()
	claimed, err := s.store.ClaimOperation(ctx, operationID, s.opTTL)
	if err != nil {
		return nil, fmt.Errorf("claiming operation %s: %w", operationID, err)
	}
	if !claimed {
		s.log.Info("delivery already claimed or processed, skipping",
			"operation", operationID)
		s.publishSkip(ctx, id, operationID, types.TriageSkippedDuplicate,
			fmt.Sprintf("delivery for %s already claimed or processed", id))
		return &Result{Outcome: types.TriageSkippedDuplicate}, nil
	}

	result, err := s.triage(ctx, id, operationID)
	if err != nil {
		if relErr := s.store.ReleaseOperation(ctx, operationID); relErr != nil {
			s.log.Error("releasing claim after failed triage",
				"operation", operationID, "error", relErr)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) triage(ctx context.Context, id types.RunID, operationID string) (*Result, error) {
	run, err := s.github.GetWorkflowRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", id, err)
	}

	if !run.IsFailure() {
		if err := s.store.MarkProcessed(ctx, operationID, "success"); err != nil {
			return nil, fmt.Errorf("marking %s processed: %w", operationID, err)
		}
		s.log.Info("run succeeded, no action needed", "run", id.String())
		s.publishSkip(ctx, id, operationID, types.TriageSkippedSuccess,
			fmt.Sprintf("run %s succeeded, no triage needed", id))
		return &Result{Outcome: types.TriageSkippedSuccess}, nil
	}

	hash := run.Fingerprint().Hash()
	issue := RenderIssue(run, hash, s.guardian, s.now())

	ref, err := s.github.CreateOrUpdateIssue(ctx, id.Owner, id.Repo, issue)
	if err != nil {
		return nil, fmt.Errorf("filing issue for %s: %w", id, err)
	}
	s.log.Info("filed triage issue",
		"run", id.String(),
		"fingerprint", hash,
		"issue", ref.Number,
		"created", ref.Created)

	verb := "updated"
	if ref.Created {
		verb = "created"
	}
	s.publishTriage(ctx, id, events.EventTypeIssueFiled,
		fmt.Sprintf("%s issue #%d for failure %s", verb, ref.Number, hash),
		events.TriageData{
			OperationID:     operationID,
			FingerprintHash: hash,
			Outcome:         string(types.TriageIssueFiled),
			IssueNumber:     ref.Number,
		})

	if err := s.store.LinkFingerprint(ctx, id.Owner, id.Repo, hash, ref.Number, s.opTTL); err != nil {
		return nil, fmt.Errorf("linking fingerprint %s: %w", hash, err)
	}

	logs := s.fetchLogs(ctx, run)

	var fix *types.RemediationResult
	if s.guardian.AutofixEnabled {
		fix = s.attemptRemediation(ctx, run, logs, ref.Number)
	}

	if s.teacher != nil {
		if _, err := s.teacher.TeachFromFailure(ctx, run, logs); err != nil {
			s.log.Warn("teaching from failure", "run", id.String(), "error", err)
		}
	}

	summary := fmt.Sprintf("%s issue=%d", types.TriageIssueFiled, ref.Number)
	if fix != nil {
		summary += " remediation=" + fix.Strategy
	}
	if err := s.store.MarkProcessed(ctx, operationID, summary); err != nil {
		return nil, fmt.Errorf("marking %s processed: %w", operationID, err)
	}

	s.publishTriage(ctx, id, events.EventTypeTriageCompleted,
		fmt.Sprintf("triage completed for %s", id),
		events.TriageData{
			OperationID:     operationID,
			FingerprintHash: hash,
			Outcome:         string(types.TriageIssueFiled),
			IssueNumber:     ref.Number,
		})

	return &Result{
		Outcome:         types.TriageIssueFiled,
		FingerprintHash: hash,
		IssueNumber:     ref.Number,
		Remediation:     fix,
	}, nil
}

// fetchLogs downloads the run logs once, shared by remediation and
// teaching. Missing or unreachable logs degrade to empty, never to a
// failed pipeline.
func (s *Service) fetchLogs(ctx context.Context, run *types.WorkflowRun) string {
	if run.LogsURL == "" {
		return ""
	}
	if !s.guardian.AutofixEnabled && s.teacher == nil {
		return ""
	}
	logs, err := s.github.GetRunLogs(ctx, run.ID)
	if err != nil {
		s.log.Warn("fetching run logs", "run", run.ID.String(), "error", err)
		return ""
	}
	return logs
}

// attemptRemediation is advisory: any failure here is logged and swallowed
// so a broken fix path can never leave the operation unprocessable. The
// tracking issue is the pipeline's primary outcome, the fix a bonus.
func (s *Service) attemptRemediation(ctx context.Context, run *types.WorkflowRun, logs string, issueNumber int) *types.RemediationResult {
	if logs == "" {
		return nil
	}

	fix := s.registry.Attempt(ctx, run, logs, s.github)
	if fix == nil {
		return nil
	}

	event, err := events.NewRemediationEvent(run.ID.Owner, run.ID.Repo, events.SeverityInfo,
		fmt.Sprintf("strategy %s proposed a fix at %.2f confidence", fix.Strategy, fix.Confidence),
		events.RemediationData{
			Strategy:   fix.Strategy,
			Confidence: fix.Confidence,
			BranchName: fix.BranchName,
		})
	s.publish(ctx, event, err)

	if len(fix.Patches) > 0 && fix.BranchName != "" {
		if err := s.applyFix(ctx, run, fix, issueNumber); err != nil {
			s.log.Warn("applying remediation",
				"run", run.ID.String(), "strategy", fix.Strategy, "error", err)
		}
	}
	return fix
}

// applyFix publishes a gated fix: commit each patch onto the fix branch,
// then open a pull request against the branch that failed.
func (s *Service) applyFix(ctx context.Context, run *types.WorkflowRun, fix *types.RemediationResult, issueNumber int) error {
	for _, patch := range fix.Patches {
		commit := github.FileCommit{
			Branch:  fix.BranchName,
			Base:    run.HeadBranch,
			Path:    patch.Path,
			Content: patch.Content,
			Message: fix.Description,
		}
		if err := s.github.CommitFile(ctx, run.ID.Owner, run.ID.Repo, commit); err != nil {
			return fmt.Errorf("committing %s to %s: %w", patch.Path, fix.BranchName, err)
		}
	}

	spec := github.PullSpec{
		Title: fix.Description,
		Body: fmt.Sprintf("Automated fix for the `%s` failure tracked in #%d.\n\nStrategy: %s, confidence %.2f.",
			run.Name, issueNumber, fix.Strategy, fix.Confidence),
		Head: fix.BranchName,
		Base: run.HeadBranch,
	}
	pull, err := s.github.CreatePull(ctx, run.ID.Owner, run.ID.Repo, spec)
	if err != nil {
		return fmt.Errorf("opening fix pull request: %w", err)
	}
	s.log.Info("opened remediation pull request",
		"run", run.ID.String(), "strategy", fix.Strategy, "pr", pull.Number)
	return nil
}

func (s *Service) publishSkip(ctx context.Context, id types.RunID, operationID string, outcome types.TriageOutcome, message string) {
	event, err := events.NewTriageEvent(events.EventTypeTriageSkipped,
		id.Owner, id.Repo, events.SeverityInfo, message,
		events.TriageData{OperationID: operationID, Outcome: string(outcome)})
	s.publish(ctx, event, err)
}

func (s *Service) publishTriage(ctx context.Context, id types.RunID, eventType events.EventType, message string, data events.TriageData) {
	event, err := events.NewTriageEvent(eventType, id.Owner, id.Repo,
		events.SeverityInfo, message, data)
	s.publish(ctx, event, err)
}

// publish is best effort. Losing an audit event must not fail a pipeline
// whose GitHub side effects already happened.
func (s *Service) publish(ctx context.Context, event *events.GuardianEvent, err error) {
	if err != nil {
		s.log.Warn("building guardian event", "error", err)
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.log.Warn("publishing guardian event", "type", string(event.Type), "error", err)
	}
}
