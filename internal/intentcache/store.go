// Package intentcache memoizes classifications, generalizes them into
// reusable cross-user patterns, and learns per-user phrase associations.
// All state is per-process and mutated only through this package; cached
// context snapshots are privacy-stripped (no URLs, elements, permissions,
// or session identifiers).
package intentcache

import (
	"voxnav/internal/types"
)

// Request is the cache's view of one classification request.
type Request struct {
	Text     string
	UserID   string
	Analysis *types.ContextualAnalysis
}

// Store is the narrow contract the orchestrator depends on. The default
// implementation is the in-memory IntentCache; tests inject isolated
// instances, and alternative backends can be plugged in behind it.
type Store interface {
	// Lookup returns a cached or pattern-derived result, or ok=false.
	Lookup(req Request) (types.ClassificationResult, bool)

	// Store records a fresh classification for future lookups and learning.
	Store(req Request, result types.ClassificationResult)

	// RecordFeedback adjusts cached confidence and pattern success rates.
	RecordFeedback(req Request, actualIntent types.IntentCategory, wasCorrect bool)

	// PredictNext predicts the user's next intent from their recent sequence.
	PredictNext(userID string, recentIntents []types.IntentCategory) (Prediction, bool)

	// Stats reports cache occupancy and hit counters.
	Stats() Stats

	// Close stops background maintenance.
	Close()
}

// Prediction is a next-intent forecast from learned sequences.
type Prediction struct {
	Intent     types.IntentCategory
	Confidence float64
	Frequency  int
}

// Stats is a point-in-time view of cache health.
type Stats struct {
	Entries        int
	Patterns       int
	UserProfiles   int
	Hits           int64
	Misses         int64
	PatternHits    int64
	UserHits       int64
	Evictions      int64
	EstimatedBytes int64
}

// ReducedContext is the privacy-stripped context snapshot stored alongside
// cache entries and contributed to patterns.
type ReducedContext struct {
	PageType string
	Mode     types.PageMode
	Role     string
}

func reduceContext(a *types.ContextualAnalysis) ReducedContext {
	if a == nil {
		return ReducedContext{PageType: "generic", Mode: types.ModeView}
	}
	return ReducedContext{
		PageType: a.Page.PageType,
		Mode:     a.Page.Mode,
		Role:     a.User.Role,
	}
}
