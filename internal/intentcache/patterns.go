package intentcache

import (
	"sync"
	"time"

	"voxnav/internal/logging"
	"voxnav/internal/types"
)

// Pattern is a generalized cross-user phrase-to-intent association. Patterns
// are created only from high-confidence classifications and become usable
// once their occurrence count passes the configured minimum.
type Pattern struct {
	Phrase      string // normalized
	Intent      types.IntentCategory
	Confidence  float64
	Occurrences int
	Contexts    map[string]int // page type -> observations
	Users       map[string]int // contributing users (IDs only, capped)
	SuccessRate float64
	LastSeen    time.Time
}

// patternCreateThreshold: only classifications at or above this confidence
// generalize into patterns.
const patternCreateThreshold = 0.7

// patternMatchConfidence: exact matches need at least this confidence.
const patternMatchConfidence = 0.6

// fuzzyMatchThreshold for token-overlap pattern matching.
const fuzzyMatchThreshold = 0.8

// maxTrackedUsers bounds the per-pattern contributor map.
const maxTrackedUsers = 32

// PatternStore owns the global pattern map. Entries are replaced on write,
// never mutated in place, so concurrent readers always see a complete value.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern // normalized phrase -> pattern
	minOcc   int
}

// NewPatternStore creates an empty store. minOccurrences gates usability.
func NewPatternStore(minOccurrences int) *PatternStore {
	if minOccurrences <= 0 {
		minOccurrences = 3
	}
	return &PatternStore{
		patterns: make(map[string]*Pattern),
		minOcc:   minOccurrences,
	}
}

// Observe folds a high-confidence classification into the store. Callers
// filter on confidence; Observe double-checks the floor.
func (ps *PatternStore) Observe(normalized string, result types.ClassificationResult, rc ReducedContext, userID string) {
	if result.Confidence < patternCreateThreshold {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	old := ps.patterns[normalized]
	var next Pattern
	if old == nil || old.Intent != result.Intent {
		// New phrase, or feedback moved the phrase to a different intent:
		// start over rather than blend contradictory observations.
		next = Pattern{
			Phrase:      normalized,
			Intent:      result.Intent,
			Confidence:  result.Confidence,
			Occurrences: 1,
			Contexts:    map[string]int{},
			Users:       map[string]int{},
			SuccessRate: 1.0,
			LastSeen:    time.Now(),
		}
	} else {
		next = clonePattern(old)
		next.Occurrences++
		next.Confidence = runningAverage(next.Confidence, result.Confidence, next.Occurrences)
		next.LastSeen = time.Now()
	}
	if rc.PageType != "" {
		next.Contexts[rc.PageType]++
	}
	if userID != "" && (len(next.Users) < maxTrackedUsers || next.Users[userID] > 0) {
		next.Users[userID]++
	}
	ps.patterns[normalized] = &next
}

// MatchExact returns a usable pattern whose phrase equals normalized.
func (ps *PatternStore) MatchExact(normalized string) (*Pattern, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	p, ok := ps.patterns[normalized]
	if !ok || !ps.usableLocked(p) {
		return nil, false
	}
	return p, true
}

// MatchFuzzy scans all usable patterns for the best token-overlap match at
// or above fuzzyMatchThreshold. Returns the pattern and the similarity.
func (ps *PatternStore) MatchFuzzy(normalized string) (*Pattern, float64, bool) {
	tokens := tokenize(normalized)
	if len(tokens) == 0 {
		return nil, 0, false
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var best *Pattern
	bestSim := 0.0
	for _, p := range ps.patterns {
		if !ps.usableLocked(p) {
			continue
		}
		sim := tokenOverlap(tokens, tokenize(p.Phrase))
		if sim >= fuzzyMatchThreshold && sim > bestSim {
			best = p
			bestSim = sim
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestSim, true
}

// RecordFeedback nudges the matching pattern's success rate.
func (ps *PatternStore) RecordFeedback(normalized string, wasCorrect bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	old, ok := ps.patterns[normalized]
	if !ok {
		return
	}
	next := clonePattern(old)
	if wasCorrect {
		next.SuccessRate = clamp01(next.SuccessRate + 0.05)
	} else {
		next.SuccessRate = clamp01(next.SuccessRate - 0.15)
	}
	next.LastSeen = time.Now()
	ps.patterns[normalized] = &next
}

// Prune removes stale low-value patterns: success rate below 0.3 and idle
// over 7 days, or still under the occurrence minimum and idle over 3 days.
func (ps *PatternStore) Prune(now time.Time) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	removed := 0
	for phrase, p := range ps.patterns {
		idle := now.Sub(p.LastSeen)
		lowSuccess := p.SuccessRate < 0.3 && idle > 7*24*time.Hour
		underOccurring := p.Occurrences < ps.minOcc && idle > 3*24*time.Hour
		if lowSuccess || underOccurring {
			delete(ps.patterns, phrase)
			removed++
		}
	}
	if removed > 0 {
		logging.CacheDebug("pattern prune removed %d patterns", removed)
	}
	return removed
}

// Len returns the number of stored patterns, usable or not.
func (ps *PatternStore) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.patterns)
}

// Snapshot returns copies of all patterns, for persistence.
func (ps *PatternStore) Snapshot() []Pattern {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]Pattern, 0, len(ps.patterns))
	for _, p := range ps.patterns {
		out = append(out, clonePattern(p))
	}
	return out
}

// Restore loads previously persisted patterns, keeping newer in-memory ones.
func (ps *PatternStore) Restore(patterns []Pattern) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for i := range patterns {
		p := patterns[i]
		if existing, ok := ps.patterns[p.Phrase]; ok && existing.LastSeen.After(p.LastSeen) {
			continue
		}
		if p.Contexts == nil {
			p.Contexts = map[string]int{}
		}
		if p.Users == nil {
			p.Users = map[string]int{}
		}
		ps.patterns[p.Phrase] = &p
	}
}

func (ps *PatternStore) usableLocked(p *Pattern) bool {
	return p.Occurrences > ps.minOcc && p.Confidence >= patternMatchConfidence
}

func clonePattern(p *Pattern) Pattern {
	next := *p
	next.Contexts = make(map[string]int, len(p.Contexts))
	for k, v := range p.Contexts {
		next.Contexts[k] = v
	}
	next.Users = make(map[string]int, len(p.Users))
	for k, v := range p.Users {
		next.Users[k] = v
	}
	return next
}

func runningAverage(avg, value float64, n int) float64 {
	if n <= 1 {
		return value
	}
	return avg + (value-avg)/float64(n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
