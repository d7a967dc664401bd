// Package intervene implements the automated healing actions a checkup
// dispatches for severe health signals. Interventions are an ordered,
// explicitly registered list: for each eligible signal the first
// intervention claiming it runs, and at most one runs per signal per
// checkup.
package intervene

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/notify"
	"github.com/redinc23/hathor-red/internal/types"
)

// Intervention is one automated healing action.
type Intervention interface {
	// Name identifies the intervention in results and the dedup ledger.
	Name() string

	// CanAddress reports whether this intervention handles the signal.
	CanAddress(signal types.HealthSignal) bool

	// Execute performs the action. A result with Success=false reports a
	// precondition failure a later checkup may retry; a Go error means an
	// outbound call failed mid-flight.
	Execute(ctx context.Context, signal types.HealthSignal, health *types.RepositoryHealth, gh github.Port, notifier notify.Notifier) (*types.InterventionResult, error)
}

// Defaults returns the production interventions in registration order.
func Defaults() []Intervention {
	return []Intervention{NewFlakyQuarantine(), NewKnowledgeSharing()}
}

// newResult stamps identity and timing onto a fresh result.
func newResult(intervention string, signal *types.HealthSignal, now time.Time) *types.InterventionResult {
	return &types.InterventionResult{
		ID:           uuid.NewString(),
		Intervention: intervention,
		SignalKey:    signal.Key(),
		ExecutedAt:   now,
	}
}
