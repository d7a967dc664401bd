package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/types"
)

func TestClaimOperationLifecycle(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/1", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claim loses while the first is live.
	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/1", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Not processed until marked.
	processed, err := store.IsProcessed(ctx, "run:acme/widgets/1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, store.MarkProcessed(ctx, "run:acme/widgets/1", "issue_filed"))

	processed, err = store.IsProcessed(ctx, "run:acme/widgets/1")
	require.NoError(t, err)
	assert.True(t, processed)

	// A processed operation stays claimed.
	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/1", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaimOperationConcurrent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/99", time.Hour)
			require.NoError(t, err)
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

func TestReleaseOperationAllowsRetry(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/2", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.ReleaseOperation(ctx, "run:acme/widgets/2"))

	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/2", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed, "a released operation must be claimable again")

	// Releasing a processed operation does not reopen it.
	require.NoError(t, store.MarkProcessed(ctx, "run:acme/widgets/2", "done"))
	require.NoError(t, store.ReleaseOperation(ctx, "run:acme/widgets/2"))
	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/2", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestOperationTTLExpiry(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	current := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return current })

	claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/3", 30*24*time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.MarkProcessed(ctx, "run:acme/widgets/3", "done"))

	// 31 days later the record has expired: reads miss and the claim is free.
	current = current.Add(31 * 24 * time.Hour)

	processed, err := store.IsProcessed(ctx, "run:acme/widgets/3")
	require.NoError(t, err)
	assert.False(t, processed)

	claimed, err = store.ClaimOperation(ctx, "run:acme/widgets/3", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestFingerprintLinks(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.IssueForFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.LinkFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4", 12, time.Hour))

	number, err := store.IssueForFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4")
	require.NoError(t, err)
	assert.Equal(t, 12, number)

	// Same hash in another repo is a distinct link.
	_, err = store.IssueForFingerprint(ctx, "acme", "gadgets", "084ebbe57a9238c4")
	assert.ErrorIs(t, err, ErrNotFound)

	// Relinking overwrites.
	require.NoError(t, store.LinkFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4", 40, time.Hour))
	number, err = store.IssueForFingerprint(ctx, "acme", "widgets", "084ebbe57a9238c4")
	require.NoError(t, err)
	assert.Equal(t, 40, number)
}

func TestInterventionLedger(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	recent, err := store.HasRecentIntervention(ctx, "acme", "widgets", "flakiness:tests/checkout_test.go", 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, recent)

	require.NoError(t, store.RecordIntervention(ctx, "acme", "widgets", &types.InterventionResult{
		ID:           "iv-1",
		Intervention: "flaky_quarantine",
		SignalKey:    "flakiness:tests/checkout_test.go",
		Success:      true,
		ExecutedAt:   now,
	}))

	recent, err = store.HasRecentIntervention(ctx, "acme", "widgets", "flakiness:tests/checkout_test.go", 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)

	// A failed intervention does not suppress a retry.
	require.NoError(t, store.RecordIntervention(ctx, "acme", "widgets", &types.InterventionResult{
		ID:           "iv-2",
		Intervention: "flaky_quarantine",
		SignalKey:    "flakiness:tests/login_test.go",
		Success:      false,
		ExecutedAt:   now,
	}))
	recent, err = store.HasRecentIntervention(ctx, "acme", "widgets", "flakiness:tests/login_test.go", 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, recent)

	// Outside the window the record no longer counts.
	recent, err = store.HasRecentIntervention(ctx, "acme", "widgets", "flakiness:tests/checkout_test.go", time.Nanosecond)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestEventFeed(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		event := events.NewLessonEvent("acme", "widgets", "lesson")
		event.Timestamp = time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.AppendEvent(ctx, event))
	}

	recent, err := store.RecentEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Newest first.
	assert.Equal(t, 5, recent[0].Timestamp.Day())
	assert.Equal(t, 3, recent[2].Timestamp.Day())

	deleted, err := store.CleanupEventsByGlobalLimit(ctx, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, err := store.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestPurgeExpired(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	current := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return current })

	_, err := store.ClaimOperation(ctx, "run:acme/widgets/1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.LinkFingerprint(ctx, "acme", "widgets", "deadbeef00000000", 1, time.Hour))
	_, err = store.ClaimOperation(ctx, "run:acme/widgets/2", 48*time.Hour)
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	purged, err := store.PurgeExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	// The long-lived claim survives.
	claimed, err := store.ClaimOperation(ctx, "run:acme/widgets/2", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
}
