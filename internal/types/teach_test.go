package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLessonToMarkdown(t *testing.T) {
	lesson := Lesson{
		Title: "Learning from lint failure",
		RootCause: RootCause{
			Description: "The lint workflow failed after a dependency bump.",
			Category:    "dependency",
		},
		PreventionSteps: []string{"Pin transitive versions", "Run lint locally before pushing"},
		RelatedReading:  []Resource{{Title: "Dependency hygiene", URL: "https://example.com/deps"}},
		SkillGaps:       []SkillGap{{Topic: "lockfiles", Recommendation: "Review the lockfile workflow"}},
		Precedents:      []HistoricalFailure{{Date: "2026-03-01", Description: "Same bump broke staging"}},
		RunURL:          "https://github.com/acme/widgets/actions/runs/42",
	}

	md := lesson.ToMarkdown()
	assert.Contains(t, md, "# Learning from lint failure")
	assert.Contains(t, md, "## Root Cause\nThe lint workflow failed")
	assert.Contains(t, md, "- Pin transitive versions")
	assert.Contains(t, md, "- [Dependency hygiene](https://example.com/deps)")
	assert.Contains(t, md, "- lockfiles: Review the lockfile workflow")
	assert.Contains(t, md, "- 2026-03-01: Same bump broke staging")
	assert.Contains(t, md, "[Failing run](https://github.com/acme/widgets/actions/runs/42)")
}

func TestLessonToMarkdownWithoutOptionalParts(t *testing.T) {
	lesson := Lesson{
		Title:     "Timeout",
		RootCause: RootCause{Description: "Run timed out.", Category: "timeout"},
	}
	md := lesson.ToMarkdown()
	assert.NotContains(t, md, "## Prevention")
	assert.NotContains(t, md, "## Learning Resources")
	assert.NotContains(t, md, "Failing run")
}

func TestCurriculumTotalHours(t *testing.T) {
	c := Curriculum{
		Modules: []LearningModule{
			{Title: "Mastering timeout", EstimatedHours: 1.5},
			{Title: "Mastering dependency", EstimatedHours: 0.5},
		},
	}
	assert.InDelta(t, 2.0, c.TotalHours(), 1e-9)

	empty := Curriculum{}
	assert.Zero(t, empty.TotalHours())
}
