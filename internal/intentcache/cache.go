package intentcache

import (
	"sync"
	"time"

	"voxnav/internal/config"
	"voxnav/internal/logging"
	"voxnav/internal/types"
)

// entry is one cached classification. Entries are replaced on write, never
// mutated in place.
type entry struct {
	key        string
	normalized string
	intent     types.IntentCategory
	confidence float64 // running average over repeat stores and feedback
	parameters map[string]string

	hitCount  int
	storeN    int // observations folded into the confidence average
	success   bool
	createdAt time.Time
	lastUsed  time.Time
	expiresAt time.Time
	context   ReducedContext
}

// entryOverhead approximates the fixed per-entry footprint (struct, map
// headers, bookkeeping) for the memory budget.
const entryOverhead = 256

// lowHitConfidenceFloor: a frequently hit entry whose running confidence has
// sunk below this is dropped on lookup rather than served.
const lowHitConfidenceFloor = 0.5

// evictTargetRatio: eviction shrinks the cache to this fraction of capacity
// so it does not run on every single store.
const evictTargetRatio = 0.8

// IntentCache is the in-memory Store implementation: direct entries backed by
// the global pattern store and per-user learning.
type IntentCache struct {
	cfg config.CacheConfig

	mu       sync.RWMutex
	entries  map[string]*entry
	estBytes int64

	patterns *PatternStore
	users    *UserPatternStore
	persist  Persister

	hits        int64
	misses      int64
	patternHits int64
	userHits    int64
	evictions   int64

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// Persister snapshots learned patterns across restarts. Best effort.
type Persister interface {
	SavePatterns(patterns []Pattern) error
	LoadPatterns() ([]Pattern, error)
	Close() error
}

// New creates an IntentCache and starts its maintenance sweep. persist may be
// nil for a purely in-memory cache.
func New(cfg config.CacheConfig, persist Persister) *IntentCache {
	c := &IntentCache{
		cfg:      cfg,
		entries:  make(map[string]*entry),
		patterns: NewPatternStore(cfg.MinPatternOccurrences),
		users:    NewUserPatternStore(),
		persist:  persist,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if persist != nil {
		if restored, err := persist.LoadPatterns(); err != nil {
			logging.Get(logging.CategoryCache).Warn("pattern restore failed: %v", err)
		} else if len(restored) > 0 {
			c.patterns.Restore(restored)
			logging.Cache("restored %d patterns from disk", len(restored))
		}
	}

	go c.maintenanceLoop()
	return c
}

// Lookup walks the match ladder: direct entry, exact pattern, fuzzy pattern,
// then the user's own learned phrases.
func (c *IntentCache) Lookup(req Request) (types.ClassificationResult, bool) {
	if !c.cfg.Enabled {
		return types.ClassificationResult{}, false
	}

	normalized := NormalizeText(req.Text)
	if normalized == "" {
		return types.ClassificationResult{}, false
	}
	rc := reduceContext(req.Analysis)
	key := buildKey(c.cfg.KeyStrategy, normalized, rc)

	if result, ok := c.lookupDirect(key); ok {
		c.count(&c.hits)
		logging.CacheDebug("direct hit: %q -> %s (%.2f)", normalized, result.Intent, result.Confidence)
		return result, true
	}

	if c.cfg.EnablePatterns {
		if p, ok := c.patterns.MatchExact(normalized); ok {
			c.count(&c.patternHits)
			logging.CacheDebug("pattern exact hit: %q -> %s (%.2f)", normalized, p.Intent, p.Confidence)
			return patternResult(p, p.Confidence), true
		}
		if p, sim, ok := c.patterns.MatchFuzzy(normalized); ok {
			c.count(&c.patternHits)
			logging.CacheDebug("pattern fuzzy hit: %q -> %s (sim %.2f)", normalized, p.Intent, sim)
			return patternResult(p, p.Confidence*sim), true
		}
	}

	if c.cfg.EnableLearning {
		if intent, conf, ok := c.users.Match(req.UserID, normalized); ok {
			c.count(&c.userHits)
			logging.CacheDebug("user pattern hit: %q -> %s (%.2f)", normalized, intent, conf)
			return types.ClassificationResult{
				Intent:     intent,
				Confidence: conf,
				Source:     types.SourcePattern,
				Reasoning:  "learned user phrase",
			}, true
		}
	}

	c.count(&c.misses)
	return types.ClassificationResult{}, false
}

func (c *IntentCache) lookupDirect(key string) (types.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return types.ClassificationResult{}, false
	}
	now := time.Now()
	if now.After(e.expiresAt) {
		c.removeLocked(key)
		return types.ClassificationResult{}, false
	}
	// A well-hit entry whose confidence has been fed back down is noise:
	// drop it and let classification repopulate.
	if e.hitCount > 3 && e.confidence < lowHitConfidenceFloor {
		c.removeLocked(key)
		return types.ClassificationResult{}, false
	}

	next := *e
	next.parameters = cloneParams(e.parameters)
	next.hitCount++
	next.lastUsed = now
	c.entries[key] = &next

	return types.ClassificationResult{
		Intent:     next.intent,
		Confidence: next.confidence,
		Parameters: cloneParams(next.parameters),
		Source:     types.SourceCache,
	}, true
}

// Store records a fresh classification. Only taxonomy-valid, non-unknown
// results are worth remembering.
func (c *IntentCache) Store(req Request, result types.ClassificationResult) {
	if !c.cfg.Enabled {
		return
	}
	if !types.IsValidIntent(string(result.Intent)) || result.Intent == types.IntentUnknown {
		return
	}

	normalized := NormalizeText(req.Text)
	if normalized == "" {
		return
	}
	rc := reduceContext(req.Analysis)
	key := buildKey(c.cfg.KeyStrategy, normalized, rc)
	now := time.Now()

	c.mu.Lock()
	old := c.entries[key]
	var next entry
	if old == nil || old.intent != result.Intent {
		next = entry{
			key:        key,
			normalized: normalized,
			intent:     result.Intent,
			confidence: result.Confidence,
			parameters: cloneParams(result.Parameters),
			storeN:     1,
			success:    true,
			createdAt:  now,
			context:    rc,
		}
	} else {
		next = *old
		next.parameters = cloneParams(result.Parameters)
		next.storeN++
		next.confidence = runningAverage(next.confidence, result.Confidence, next.storeN)
	}
	next.lastUsed = now
	next.expiresAt = now.Add(c.cfg.TTL())

	if old != nil {
		c.estBytes -= estimateEntryBytes(old)
	}
	c.entries[key] = &next
	c.estBytes += estimateEntryBytes(&next)
	c.evictIfNeededLocked()
	c.mu.Unlock()

	if c.cfg.EnablePatterns && result.Confidence >= patternCreateThreshold {
		c.patterns.Observe(normalized, result, rc, req.UserID)
	}
	if c.cfg.EnableLearning {
		c.users.Observe(req.UserID, normalized, result)
		if req.Analysis != nil && len(req.Analysis.Session.RecentIntents) > 0 {
			seq := append(append([]types.IntentCategory{}, req.Analysis.Session.RecentIntents...), result.Intent)
			c.users.ObserveSequence(req.UserID, seq)
		}
	}
}

// RecordFeedback propagates explicit user feedback to the direct entry, the
// global patterns, and the user's learned phrases. Positive feedback never
// lowers a cached confidence.
func (c *IntentCache) RecordFeedback(req Request, actualIntent types.IntentCategory, wasCorrect bool) {
	normalized := NormalizeText(req.Text)
	if normalized == "" {
		return
	}
	rc := reduceContext(req.Analysis)
	key := buildKey(c.cfg.KeyStrategy, normalized, rc)

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		next := *old
		next.parameters = cloneParams(old.parameters)
		if wasCorrect {
			next.confidence = clamp01(next.confidence + 0.1)
			next.success = true
		} else {
			next.confidence = clamp01(next.confidence - 0.2)
			next.success = false
			if types.IsValidIntent(string(actualIntent)) {
				next.intent = actualIntent
			}
		}
		c.estBytes += estimateEntryBytes(&next) - estimateEntryBytes(old)
		c.entries[key] = &next
	}
	c.mu.Unlock()

	if c.cfg.EnablePatterns {
		c.patterns.RecordFeedback(normalized, wasCorrect)
	}
	if c.cfg.EnableLearning {
		c.users.RecordFeedback(req.UserID, normalized, actualIntent, wasCorrect)
	}
	logging.Learning("feedback: %q correct=%v actual=%s", normalized, wasCorrect, actualIntent)
}

// PredictNext forwards to the user's learned intent sequences.
func (c *IntentCache) PredictNext(userID string, recentIntents []types.IntentCategory) (Prediction, bool) {
	if !c.cfg.EnableLearning {
		return Prediction{}, false
	}
	return c.users.PredictNext(userID, recentIntents)
}

// Stats reports occupancy and counters.
func (c *IntentCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:        len(c.entries),
		Patterns:       c.patterns.Len(),
		UserProfiles:   c.users.Len(),
		Hits:           c.hits,
		Misses:         c.misses,
		PatternHits:    c.patternHits,
		UserHits:       c.userHits,
		Evictions:      c.evictions,
		EstimatedBytes: c.estBytes,
	}
}

// Close stops the maintenance goroutine and flushes patterns to disk.
func (c *IntentCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
		c.flushPatterns()
		if c.persist != nil {
			if err := c.persist.Close(); err != nil {
				logging.Get(logging.CategoryCache).Warn("persister close failed: %v", err)
			}
		}
	})
}

// =============================================================================
// EVICTION
// =============================================================================

// evictionScore values an entry for retention. Older entries decay, hits and
// confirmed success add value, confidence adds a little more. Clamped at zero
// so deeply stale entries sort together.
func evictionScore(e *entry, now time.Time) float64 {
	ageDays := now.Sub(e.createdAt).Hours() / 24
	score := 100 - ageDays*10
	hitBonus := float64(e.hitCount) * 2
	if hitBonus > 30 {
		hitBonus = 30
	}
	score += hitBonus
	if e.success {
		score += 20
	} else {
		score -= 20
	}
	score += e.confidence * 20
	if score < 0 {
		score = 0
	}
	return score
}

func (c *IntentCache) overBudgetLocked() bool {
	if c.cfg.MaxEntries > 0 && len(c.entries) > c.cfg.MaxEntries {
		return true
	}
	if c.cfg.MemoryBudgetKB > 0 && c.estBytes > int64(c.cfg.MemoryBudgetKB)*1024 {
		return true
	}
	return false
}

func (c *IntentCache) evictIfNeededLocked() {
	if !c.overBudgetLocked() {
		return
	}

	targetEntries := len(c.entries)
	if c.cfg.MaxEntries > 0 {
		targetEntries = int(float64(c.cfg.MaxEntries) * evictTargetRatio)
	}
	targetBytes := c.estBytes
	if c.cfg.MemoryBudgetKB > 0 {
		targetBytes = int64(float64(c.cfg.MemoryBudgetKB) * 1024 * evictTargetRatio)
	}

	type scored struct {
		key   string
		score float64
	}
	now := time.Now()
	candidates := make([]scored, 0, len(c.entries))
	for k, e := range c.entries {
		candidates = append(candidates, scored{key: k, score: evictionScore(e, now)})
	}
	// Lowest score first.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score < candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	removed := 0
	for _, cand := range candidates {
		if len(c.entries) <= targetEntries && c.estBytes <= targetBytes {
			break
		}
		c.removeLocked(cand.key)
		c.evictions++
		removed++
	}
	if removed > 0 {
		logging.Cache("evicted %d entries (now %d, ~%d KB)", removed, len(c.entries), c.estBytes/1024)
	}
}

func (c *IntentCache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		c.estBytes -= estimateEntryBytes(e)
		delete(c.entries, key)
	}
}

// =============================================================================
// MAINTENANCE
// =============================================================================

func (c *IntentCache) maintenanceLoop() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.cfg.MaintenanceInterval())
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

// sweep drops expired and degraded entries, prunes the pattern store, and
// snapshots patterns if persistence is configured.
func (c *IntentCache) sweep(now time.Time) {
	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) || (e.hitCount > 3 && e.confidence < lowHitConfidenceFloor) {
			c.removeLocked(key)
			removed++
		}
	}
	c.mu.Unlock()

	pruned := c.patterns.Prune(now)
	if removed > 0 || pruned > 0 {
		logging.Cache("maintenance: removed %d entries, pruned %d patterns", removed, pruned)
	}
	c.flushPatterns()
}

func (c *IntentCache) flushPatterns() {
	if c.persist == nil {
		return
	}
	if err := c.persist.SavePatterns(c.patterns.Snapshot()); err != nil {
		logging.Get(logging.CategoryCache).Warn("pattern snapshot failed: %v", err)
	}
}

func (c *IntentCache) count(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

func patternResult(p *Pattern, confidence float64) types.ClassificationResult {
	return types.ClassificationResult{
		Intent:     p.Intent,
		Confidence: clamp01(confidence),
		Source:     types.SourcePattern,
		Reasoning:  "generalized phrase pattern",
	}
}

func cloneParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func estimateEntryBytes(e *entry) int64 {
	size := int64(entryOverhead + len(e.key) + len(e.normalized) + len(e.intent))
	for k, v := range e.parameters {
		size += int64(len(k) + len(v) + 32)
	}
	size += int64(len(e.context.PageType) + len(e.context.Mode) + len(e.context.Role))
	return size
}
