package types

import (
	"fmt"
	"strings"
	"time"
)

// RootCause classifies why a failure happened. Category is the stable
// label curricula cluster on ("flaky_test", "dependency", "timeout",
// "unknown"); Description is the human explanation.
type RootCause struct {
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Resource is a link worth reading alongside a lesson.
type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SkillGap pairs a topic the team is weak on with a recommendation.
type SkillGap struct {
	Topic          string `json:"topic"`
	Recommendation string `json:"recommendation"`
}

// HistoricalFailure is a prior incident a lesson cites as precedent.
type HistoricalFailure struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// Lesson is the pedagogical write-up distilled from one triaged failure.
// Lessons are delivered to the team channel and indexed in the vector
// store so curricula and answers improve over time.
type Lesson struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	RootCause       RootCause           `json:"root_cause"`
	PreventionSteps []string            `json:"prevention_steps,omitempty"`
	RelatedReading  []Resource          `json:"related_reading,omitempty"`
	SkillGaps       []SkillGap          `json:"skill_gaps,omitempty"`
	Precedents      []HistoricalFailure `json:"precedents,omitempty"`
	RunURL          string              `json:"run_url,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// ToMarkdown renders the lesson for chat delivery and vector indexing.
// Empty sections are omitted.
func (l *Lesson) ToMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", l.Title)
	fmt.Fprintf(&b, "## Root Cause\n%s\n", l.RootCause.Description)
	if len(l.PreventionSteps) > 0 {
		b.WriteString("\n## Prevention\n")
		for _, step := range l.PreventionSteps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	if len(l.RelatedReading) > 0 {
		b.WriteString("\n## Learning Resources\n")
		for _, r := range l.RelatedReading {
			fmt.Fprintf(&b, "- [%s](%s)\n", r.Title, r.URL)
		}
	}
	if len(l.SkillGaps) > 0 {
		b.WriteString("\n## Skill Gaps Addressed\n")
		for _, g := range l.SkillGaps {
			fmt.Fprintf(&b, "- %s: %s\n", g.Topic, g.Recommendation)
		}
	}
	if len(l.Precedents) > 0 {
		b.WriteString("\n## Historical Context\n")
		for _, p := range l.Precedents {
			fmt.Fprintf(&b, "- %s: %s\n", p.Date, p.Description)
		}
	}
	if l.RunURL != "" {
		fmt.Fprintf(&b, "\n[Failing run](%s)\n", l.RunURL)
	}
	return b.String()
}

// LearningModule groups the failures that share one root cause into a
// teachable unit.
type LearningModule struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Exercises      []string `json:"exercises,omitempty"`
	EstimatedHours float64  `json:"estimated_hours"`
}

// Curriculum is the set of learning modules generated for a team from its
// recent failure history.
type Curriculum struct {
	TeamID      string           `json:"team_id"`
	Modules     []LearningModule `json:"modules"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// TotalHours sums the estimated effort across all modules.
func (c *Curriculum) TotalHours() float64 {
	var total float64
	for _, m := range c.Modules {
		total += m.EstimatedHours
	}
	return total
}

// Answer is a retrieval-augmented response to a developer question.
// Confidence scales with the number of supporting sources, capped at 1.
type Answer struct {
	Question   string   `json:"question"`
	Text       string   `json:"text"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence"`
}
