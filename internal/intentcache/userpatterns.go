package intentcache

import (
	"strings"
	"sync"
	"time"

	"voxnav/internal/types"
)

// userMatchConfidenceCap keeps user-pattern hits below cache/pattern results:
// a single user's habit is a weaker signal than a generalized pattern.
const userMatchConfidenceCap = 0.75

// userFuzzyThreshold for per-user fuzzy phrase matching.
const userFuzzyThreshold = 0.85

// predictionConfidenceCap bounds next-intent predictions.
const predictionConfidenceCap = 0.7

// learnThreshold: classifications below this are not folded into a user's
// profile.
const learnThreshold = 0.6

// maxSequencesPerUser bounds per-user sequence memory.
const maxSequencesPerUser = 200

// phraseAssociation is one learned phrase for one user.
type phraseAssociation struct {
	Intent     types.IntentCategory
	Confidence float64
	Count      int
	LastSeen   time.Time
}

// UserPattern holds everything learned about one user.
type UserPattern struct {
	Phrases    map[string]*phraseAssociation
	Sequences  map[string]int                     // "a>b>c" -> frequency
	Thresholds map[types.IntentCategory]float64   // adaptive per-intent confidence thresholds
	LastSeen   time.Time
}

// UserPatternStore owns per-user learning state.
type UserPatternStore struct {
	mu    sync.RWMutex
	users map[string]*UserPattern
}

// NewUserPatternStore creates an empty store.
func NewUserPatternStore() *UserPatternStore {
	return &UserPatternStore{users: make(map[string]*UserPattern)}
}

func (us *UserPatternStore) profileLocked(userID string) *UserPattern {
	up, ok := us.users[userID]
	if !ok {
		up = &UserPattern{
			Phrases:    make(map[string]*phraseAssociation),
			Sequences:  make(map[string]int),
			Thresholds: make(map[types.IntentCategory]float64),
		}
		us.users[userID] = up
	}
	return up
}

// Observe folds a classification into the user's phrase map and nudges the
// adaptive threshold for that intent: small reward for confident
// observations, small penalty otherwise.
func (us *UserPatternStore) Observe(userID, normalized string, result types.ClassificationResult) {
	if userID == "" || result.Confidence < learnThreshold {
		return
	}

	us.mu.Lock()
	defer us.mu.Unlock()

	up := us.profileLocked(userID)
	up.LastSeen = time.Now()

	assoc := up.Phrases[normalized]
	if assoc == nil || assoc.Intent != result.Intent {
		up.Phrases[normalized] = &phraseAssociation{
			Intent:     result.Intent,
			Confidence: result.Confidence,
			Count:      1,
			LastSeen:   time.Now(),
		}
	} else {
		next := *assoc
		next.Count++
		next.Confidence = runningAverage(next.Confidence, result.Confidence, next.Count)
		next.LastSeen = time.Now()
		up.Phrases[normalized] = &next
	}

	threshold, ok := up.Thresholds[result.Intent]
	if !ok {
		threshold = 0.6
	}
	if result.Confidence >= 0.8 {
		threshold -= 0.01 // user is consistent here; accept slightly lower confidence
	} else {
		threshold += 0.02
	}
	up.Thresholds[result.Intent] = clampRange(threshold, 0.4, 0.9)
}

// ObserveSequence appends the transition history used for prediction.
// recent must end with the just-classified intent.
func (us *UserPatternStore) ObserveSequence(userID string, recent []types.IntentCategory) {
	if userID == "" || len(recent) < 2 {
		return
	}
	// Keep transitions short: 2- and 3-grams are plenty for next-intent lookup.
	for _, n := range []int{2, 3} {
		if len(recent) < n {
			continue
		}
		key := sequenceKey(recent[len(recent)-n:])

		us.mu.Lock()
		up := us.profileLocked(userID)
		if len(up.Sequences) >= maxSequencesPerUser {
			dropRarestSequence(up.Sequences)
		}
		up.Sequences[key]++
		up.LastSeen = time.Now()
		us.mu.Unlock()
	}
}

// Match looks up a user's learned phrase, exact first, then fuzzy at the
// stricter per-user threshold. The returned confidence is capped below
// cache/pattern results.
func (us *UserPatternStore) Match(userID, normalized string) (types.IntentCategory, float64, bool) {
	if userID == "" {
		return "", 0, false
	}

	us.mu.RLock()
	defer us.mu.RUnlock()

	up, ok := us.users[userID]
	if !ok {
		return "", 0, false
	}

	if assoc, ok := up.Phrases[normalized]; ok {
		return assoc.Intent, capAt(assoc.Confidence, userMatchConfidenceCap), true
	}

	tokens := tokenize(normalized)
	var bestIntent types.IntentCategory
	bestSim, bestConf := 0.0, 0.0
	for phrase, assoc := range up.Phrases {
		sim := tokenOverlap(tokens, tokenize(phrase))
		if sim >= userFuzzyThreshold && sim > bestSim {
			bestIntent = assoc.Intent
			bestSim = sim
			bestConf = assoc.Confidence
		}
	}
	if bestSim == 0 {
		return "", 0, false
	}
	return bestIntent, capAt(bestConf*bestSim, userMatchConfidenceCap), true
}

// RecordFeedback nudges a learned phrase after explicit user feedback.
func (us *UserPatternStore) RecordFeedback(userID, normalized string, actualIntent types.IntentCategory, wasCorrect bool) {
	if userID == "" {
		return
	}

	us.mu.Lock()
	defer us.mu.Unlock()

	up, ok := us.users[userID]
	if !ok {
		return
	}
	assoc, ok := up.Phrases[normalized]
	if !ok {
		return
	}
	next := *assoc
	if wasCorrect {
		next.Confidence = clamp01(next.Confidence + 0.05)
	} else {
		next.Confidence = clamp01(next.Confidence - 0.15)
		next.Intent = actualIntent
	}
	next.LastSeen = time.Now()
	up.Phrases[normalized] = &next
}

// PredictNext matches recorded sequences against the tail of recentIntents
// and aggregates the frequency of the immediately following intent. Stored
// transitions are 2- and 3-grams, so only the last one or two intents of the
// history can match a stored prefix; the longer suffix is tried first.
func (us *UserPatternStore) PredictNext(userID string, recentIntents []types.IntentCategory) (Prediction, bool) {
	if userID == "" || len(recentIntents) == 0 {
		return Prediction{}, false
	}

	us.mu.RLock()
	defer us.mu.RUnlock()

	up, ok := us.users[userID]
	if !ok {
		return Prediction{}, false
	}

	for n := 2; n >= 1; n-- {
		if len(recentIntents) < n {
			continue
		}
		if pred, ok := predictFromPrefix(up.Sequences, recentIntents[len(recentIntents)-n:]); ok {
			return pred, true
		}
	}
	return Prediction{}, false
}

func predictFromPrefix(sequences map[string]int, prefixIntents []types.IntentCategory) (Prediction, bool) {
	prefix := sequenceKey(prefixIntents) + ">"
	totals := make(map[types.IntentCategory]int)
	observed := 0
	for key, freq := range sequences {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		// Only immediate successors: no further separator allowed.
		if strings.Contains(rest, ">") {
			continue
		}
		totals[types.IntentCategory(rest)] += freq
		observed += freq
	}
	if observed == 0 {
		return Prediction{}, false
	}

	var best types.IntentCategory
	bestFreq := 0
	for intent, freq := range totals {
		if freq > bestFreq {
			best = intent
			bestFreq = freq
		}
	}
	confidence := capAt(float64(bestFreq)/float64(observed), predictionConfidenceCap)
	return Prediction{Intent: best, Confidence: confidence, Frequency: bestFreq}, true
}

// Len returns the number of users with learned state.
func (us *UserPatternStore) Len() int {
	us.mu.RLock()
	defer us.mu.RUnlock()
	return len(us.users)
}

func sequenceKey(intents []types.IntentCategory) string {
	parts := make([]string, len(intents))
	for i, intent := range intents {
		parts[i] = string(intent)
	}
	return strings.Join(parts, ">")
}

func dropRarestSequence(sequences map[string]int) {
	rarestKey := ""
	rarest := int(^uint(0) >> 1)
	for k, v := range sequences {
		if v < rarest {
			rarest = v
			rarestKey = k
		}
	}
	if rarestKey != "" {
		delete(sequences, rarestKey)
	}
}

func capAt(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
