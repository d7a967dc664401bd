// Package teach converts failure history into organizational knowledge:
// curricula clustered from a team's recent failures, and retrieval-augmented
// answers grounded in the lessons the angel has indexed.
package teach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
	"github.com/redinc23/hathor-red/internal/vector"
)

const (
	// curriculumQueryLimit bounds how much failure history one curriculum
	// draws on.
	curriculumQueryLimit = 50

	// maxExercisesPerModule caps exercises at the most relevant incidents.
	maxExercisesPerModule = 3

	// hoursPerIncident scales a module's estimated effort with the size of
	// its cluster.
	hoursPerIncident = 0.5

	// confidenceSaturation is the source count at which answer confidence
	// reaches 1.
	confidenceSaturation = 10

	answerMaxTokens    = 1024
	answerExcerptBytes = 500
)

// Engine builds curricula and answers from the vector index. The completer
// is optional: without one, answers carry the counting template instead of
// synthesized text.
type Engine struct {
	vectors   vector.Store
	completer ml.Completer
	log       *slog.Logger
	now       func() time.Time
}

// NewEngine wires a teaching engine over the lesson index.
func NewEngine(vectors vector.Store, completer ml.Completer, logger *slog.Logger) (*Engine, error) {
	if vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		vectors:   vectors,
		completer: completer,
		log:       logger,
		now:       time.Now,
	}, nil
}

// GenerateCurriculum clusters the team's recent failures by root cause and
// emits one learning module per cluster, sized by how often that cause
// recurred. Module order follows the relevance order of the underlying
// query, so the best-matching cluster leads.
func (e *Engine) GenerateCurriculum(ctx context.Context, teamID string) (*types.Curriculum, error) {
	if teamID == "" {
		return nil, fmt.Errorf("team id is required")
	}

	failures, err := e.vectors.Query(ctx, "failures for team:"+teamID, curriculumQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("querying failures for team %s: %w", teamID, err)
	}

	order, clusters := clusterByRootCause(failures)

	modules := make([]types.LearningModule, 0, len(order))
	for _, cause := range order {
		cluster := clusters[cause]
		modules = append(modules, types.LearningModule{
			Title:          "Mastering " + cause,
			Description:    fmt.Sprintf("Based on %d recent incidents", len(cluster)),
			Exercises:      exercises(cluster),
			EstimatedHours: float64(len(cluster)) * hoursPerIncident,
		})
	}

	return &types.Curriculum{
		TeamID:      teamID,
		Modules:     modules,
		GeneratedAt: e.now(),
	}, nil
}

// clusterByRootCause groups documents by their root_cause metadata,
// untagged documents under "unknown". The returned order is first
// appearance.
func clusterByRootCause(docs []vector.Document) ([]string, map[string][]vector.Document) {
	var order []string
	clusters := make(map[string][]vector.Document)
	for _, doc := range docs {
		cause := doc.Metadata["root_cause"]
		if cause == "" {
			cause = "unknown"
		}
		if _, ok := clusters[cause]; !ok {
			order = append(order, cause)
		}
		clusters[cause] = append(clusters[cause], doc)
	}
	return order, clusters
}

func exercises(cluster []vector.Document) []string {
	if len(cluster) > maxExercisesPerModule {
		cluster = cluster[:maxExercisesPerModule]
	}
	out := make([]string, len(cluster))
	for i, doc := range cluster {
		title := doc.Metadata["title"]
		if title == "" {
			title = "unknown failure"
		}
		out[i] = "Reproduce and fix: " + title
	}
	return out
}

// AnswerQuestion retrieves the lessons most relevant to the question and
// answers over them, with confidence proportional to how much history backs
// the answer. An empty repo searches lessons from every repository.
func (e *Engine) AnswerQuestion(ctx context.Context, repo, question string) (*types.Answer, error) {
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	relevant, err := e.vectors.SimilaritySearch(ctx, question, map[string]string{
		"type": "lesson",
		"repo": repo,
	})
	if err != nil {
		return nil, fmt.Errorf("searching lessons: %w", err)
	}

	sources := make([]string, len(relevant))
	for i, doc := range relevant {
		sources[i] = doc.ID
	}

	return &types.Answer{
		Question:   question,
		Text:       e.synthesize(ctx, question, relevant),
		Sources:    sources,
		Confidence: math.Min(float64(len(relevant))/confidenceSaturation, 1.0),
	}, nil
}

// synthesize drafts an answer over the retrieved lessons. Without a
// completer, or when it cannot answer, the counting template stands in;
// retrieval already did the useful work.
func (e *Engine) synthesize(ctx context.Context, question string, sources []vector.Document) string {
	fallback := fmt.Sprintf("Based on %d historical incidents: (synthesis pending)", len(sources))
	if e.completer == nil || len(sources) == 0 {
		return fallback
	}

	text, err := e.completer.Complete(ctx, buildAnswerPrompt(question, sources), answerMaxTokens)
	if errors.Is(err, ml.ErrNoCompleter) {
		return fallback
	}
	if err != nil {
		e.log.Warn("synthesizing answer", "error", err)
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

func buildAnswerPrompt(question string, sources []vector.Document) string {
	var b strings.Builder
	b.WriteString("Answer the developer's question using only the incident lessons below.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	for i, doc := range sources {
		excerpt := doc.Content
		if len(excerpt) > answerExcerptBytes {
			excerpt = excerpt[:answerExcerptBytes]
		}
		fmt.Fprintf(&b, "Lesson %d:\n%s\n\n", i+1, excerpt)
	}
	b.WriteString("Respond with a short, direct answer citing the relevant lessons.")
	return b.String()
}
