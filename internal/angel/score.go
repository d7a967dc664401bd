package angel

import (
	"math"
	"sort"
	"time"

	"github.com/redinc23/hathor-red/internal/types"
)

// Score aggregates signals into a 0..100 health score. Each signal costs
// severity times confidence times 20 points; a repository with no signals
// is perfect and the score never goes below zero.
func Score(signals []types.HealthSignal) float64 {
	if len(signals) == 0 {
		return 100
	}
	penalty := 0.0
	for _, sig := range signals {
		penalty += sig.Severity * sig.Confidence * 20
	}
	return math.Max(0, 100-penalty)
}

// IsHealthy applies the score threshold with the critical-signal override:
// a single severe, well-evidenced signal makes the repository unhealthy
// regardless of the aggregate. A score of exactly 80 is unhealthy.
func IsHealthy(score float64, signals []types.HealthSignal) bool {
	if score <= 80 {
		return false
	}
	for _, sig := range signals {
		if sig.IsCritical() {
			return false
		}
	}
	return true
}

// signalTrends buckets a checkup's signals into per-dimension daily
// severity points, mean severity per day, oldest first.
func signalTrends(signals []types.HealthSignal) map[types.HealthDimension][]types.TrendPoint {
	if len(signals) == 0 {
		return nil
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[types.HealthDimension]map[time.Time]*bucket)
	for _, sig := range signals {
		day := sig.DetectedAt.UTC().Truncate(24 * time.Hour)
		if buckets[sig.Dimension] == nil {
			buckets[sig.Dimension] = make(map[time.Time]*bucket)
		}
		b := buckets[sig.Dimension][day]
		if b == nil {
			b = &bucket{}
			buckets[sig.Dimension][day] = b
		}
		b.sum += sig.Severity
		b.count++
	}

	trends := make(map[types.HealthDimension][]types.TrendPoint, len(buckets))
	for dim, days := range buckets {
		points := make([]types.TrendPoint, 0, len(days))
		for day, b := range days {
			points = append(points, types.TrendPoint{
				Day:      day,
				Severity: b.sum / float64(b.count),
			})
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Day.Before(points[j].Day) })
		trends[dim] = points
	}
	return trends
}
