package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/state"
	"github.com/redinc23/hathor-red/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClaimOperationLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/1", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/1", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed, "live claim must not be stolen")

	processed, err := store.IsProcessed(ctx, "run:acme/widgets/1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, store.MarkProcessed(ctx, "run:acme/widgets/1", "issue_filed"))

	processed, err = store.IsProcessed(ctx, "run:acme/widgets/1")
	require.NoError(t, err)
	assert.True(t, processed)

	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/1", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed, "processed operation must stay claimed")
}

func TestClaimOperationConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/99", time.Hour)
			assert.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for won := range wins {
		if won {
			total++
		}
	}
	assert.Equal(t, 1, total, "exactly one concurrent delivery must win the claim")
}

func TestClaimTakeoverAfterExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/5", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	// Before expiry the claim holds.
	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/5", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)

	// A lapsed claim is taken over.
	current = current.Add(2 * time.Hour)
	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/5", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Marking processed after takeover works against the fresh claim.
	require.NoError(t, store.MarkProcessed(ctx, "run:acme/widgets/5", "done"))
}

func TestMarkProcessedRequiresClaim(t *testing.T) {
	store := newTestStore(t)
	err := store.MarkProcessed(context.Background(), "run:acme/widgets/404", "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not claimed")
}

func TestReleaseOperationAllowsRetry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/2", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.ReleaseOperation(ctx, "run:acme/widgets/2"))

	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/2", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, store.MarkProcessed(ctx, "run:acme/widgets/2", "done"))
	require.NoError(t, store.ReleaseOperation(ctx, "run:acme/widgets/2"))

	processed, err := store.IsProcessed(ctx, "run:acme/widgets/2")
	require.NoError(t, err)
	assert.True(t, processed, "release must not undo a processed operation")
}

func TestFingerprintLinks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.IssueForFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4")
	assert.ErrorIs(t, err, state.ErrNotFound)

	require.NoError(t, store.LinkFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4", 12, time.Hour))

	number, err := store.IssueForFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4")
	require.NoError(t, err)
	assert.Equal(t, 12, number)

	// Upsert replaces the issue number.
	require.NoError(t, store.LinkFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4", 40, time.Hour))
	number, err = store.IssueForFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4")
	require.NoError(t, err)
	assert.Equal(t, 40, number)

	_, err = store.IssueForFingerprint(ctx, "acme", "gadgets", "084ebbe57a9238c4")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestFingerprintLinkExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	require.NoError(t, store.LinkFingerprint(ctx, "acme", "widgets", "deadbeef00000000", 7, 30*24*time.Hour))

	current = current.Add(31 * 24 * time.Hour)
	_, err := store.IssueForFingerprint(ctx, "acme", "widgets", "deadbeef00000000")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestInterventionLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recent, err := store.HasRecentIntervention(ctx, "acme", "widgets", "flakiness:tests/checkout_test.go", 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, recent)

	require.NoError(t, store.RecordIntervention(ctx, "acme", "widgets", &types.InterventionResult{
		ID:           "iv-1",
		Intervention: "flaky_quarantine",
		SignalKey:    "flakiness:tests/checkout_test.go",
		Success:      true,
		Actions:      []string{"opened PR #7"},
		URL:          "https://github.com/acme/widgets/pull/7",
		ExecutedAt:   time.Now(),
	}))

	recent, err = store.HasRecentIntervention(ctx, "acme", "widgets", "flakiness:tests/checkout_test.go", 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)

	// Failed interventions do not suppress retries.
	require.NoError(t, store.RecordIntervention(ctx, "acme", "widgets", &types.InterventionResult{
		ID:           "iv-2",
		Intervention: "flaky_quarantine",
		SignalKey:    "flakiness:tests/login_test.go",
		Success:      false,
		Error:        "branch already exists",
		ExecutedAt:   time.Now(),
	}))
	recent, err = store.HasRecentIntervention(ctx, "acme", "widgets", "flakiness:tests/login_test.go", 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, recent)

	// Missing id fails fast.
	err = store.RecordIntervention(ctx, "acme", "widgets", &types.InterventionResult{Intervention: "x"})
	require.Error(t, err)
}

func TestEventFeedRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event, err := events.NewCheckupEvent("acme", "widgets", events.SeverityInfo,
		"score 92.5", events.CheckupData{Score: 92.5, Healthy: true, SignalCount: 1})
	require.NoError(t, err)
	require.NoError(t, store.AppendEvent(ctx, event))

	got, err := store.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, event.ID, got[0].ID)
	assert.Equal(t, events.EventTypeCheckupCompleted, got[0].Type)
	assert.Equal(t, "acme", got[0].Owner)

	data, err := got[0].GetCheckupData()
	require.NoError(t, err)
	assert.InDelta(t, 92.5, data.Score, 1e-9)
	assert.True(t, data.Healthy)
}

func TestCleanupEventsByAge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	old := events.NewLessonEvent("acme", "widgets", "old lesson")
	old.Timestamp = current.AddDate(0, 0, -45)
	require.NoError(t, store.AppendEvent(ctx, old))

	fresh := events.NewLessonEvent("acme", "widgets", "fresh lesson")
	fresh.Timestamp = current.AddDate(0, 0, -5)
	require.NoError(t, store.AppendEvent(ctx, fresh))

	deleted, err := store.CleanupEventsByAge(ctx, 30, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := store.RecentEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}

func TestCleanupEventsByGlobalLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		event := events.NewLessonEvent("acme", "widgets", "lesson")
		event.Timestamp = base.AddDate(0, 0, i)
		require.NoError(t, store.AppendEvent(ctx, event))
	}

	deleted, err := store.CleanupEventsByGlobalLimit(ctx, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, deleted)

	remaining, err := store.RecentEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 4)
	// The oldest were deleted; the newest survive.
	assert.Equal(t, base.AddDate(0, 0, 9), remaining[0].Timestamp)
	assert.Equal(t, base.AddDate(0, 0, 6), remaining[3].Timestamp)
}

func TestPurgeExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	_, err := store.ClaimOperation(ctx, "run:acme/widgets/1", time.Hour)
	require.NoError(t, err)
	_, err = store.ClaimOperation(ctx, "run:acme/widgets/2", 48*time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.LinkFingerprint(ctx, "acme", "widgets", "deadbeef00000000", 1, time.Hour))

	current = current.Add(2 * time.Hour)

	purged, err := store.PurgeExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/2", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed, "unexpired claim must survive the purge")
}
