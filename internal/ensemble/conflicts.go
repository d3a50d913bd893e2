package ensemble

import (
	"fmt"
	"strings"

	"voxnav/internal/logging"
	"voxnav/internal/types"
)

// fallbackConfidence is the confidence attached to a fallback resolution.
const fallbackConfidence = 0.3

// detectConflicts inspects the votes for the three disagreement shapes:
// an ambiguous spread, a contradictory pair, and collectively low confidence.
// All detected conflicts are reported; the caller resolves only the strongest.
func (v *Validator) detectConflicts(votes []vote) []types.Conflict {
	if len(votes) < 2 {
		return nil
	}
	var conflicts []types.Conflict

	counts := make(map[types.IntentCategory]int)
	for _, vt := range votes {
		counts[vt.result.Intent]++
	}
	distinct := make([]types.IntentCategory, 0, len(counts))
	topCount := 0
	for intent, count := range counts {
		distinct = append(distinct, intent)
		if count > topCount {
			topCount = count
		}
	}

	// Ambiguous: no intent commands a sufficient majority of the votes.
	if len(distinct) > 1 {
		agreement := float64(topCount) / float64(len(votes))
		if agreement < v.cfg.MinAgreementRatio {
			conflicts = append(conflicts, types.Conflict{
				Type:       types.ConflictAmbiguous,
				Intents:    distinct,
				Confidence: 1 - agreement,
			})
		}
	}

	// Contradictory: two votes land on opposite sides of a known pair.
	for i := 0; i < len(votes); i++ {
		for j := i + 1; j < len(votes); j++ {
			a, b := votes[i].result, votes[j].result
			if a.Intent != b.Intent && types.AreContradictory(a.Intent, b.Intent) {
				conflicts = append(conflicts, types.Conflict{
					Type:       types.ConflictContradictory,
					Intents:    []types.IntentCategory{a.Intent, b.Intent},
					Confidence: (a.Confidence + b.Confidence) / 2,
				})
			}
		}
	}

	// Insufficient context: everyone is guessing.
	mean := 0.0
	for _, vt := range votes {
		mean += vt.result.Confidence
	}
	mean /= float64(len(votes))
	if mean < v.cfg.InsufficientContextThreshold {
		conflicts = append(conflicts, types.Conflict{
			Type:       types.ConflictInsufficientContext,
			Intents:    distinct,
			Confidence: 1 - mean,
		})
	}

	if len(conflicts) > 0 {
		logging.EnsembleDebug("detected %d conflicts across %d votes", len(conflicts), len(votes))
	}
	return conflicts
}

// resolve settles one conflict. Each conflict type maps to one preferred
// strategy; a contradictory pair the context cannot break escalates to user
// confirmation instead.
func (v *Validator) resolve(conflict types.Conflict, votes []vote, analysis *types.ContextualAnalysis) types.Resolution {
	switch conflict.Type {
	case types.ConflictContradictory:
		return resolveContradictory(conflict, votes, analysis)
	case types.ConflictInsufficientContext:
		return types.Resolution{
			Strategy:      types.ResolveFallback,
			ChosenIntent:  types.IntentHelpRequest,
			Confidence:    fallbackConfidence,
			Clarification: "I could not work out what you want to do on this page. Try rephrasing, or say \"help\".",
		}
	default: // ambiguous
		return resolveAmbiguous(conflict, votes)
	}
}

// resolveAmbiguous keeps the best vote but lowers its confidence and asks the
// user to choose among the spread.
func resolveAmbiguous(conflict types.Conflict, votes []vote) types.Resolution {
	best := bestVote(votes)
	names := make([]string, len(conflict.Intents))
	for i, intent := range conflict.Intents {
		names[i] = humanize(intent)
	}
	return types.Resolution{
		Strategy:      types.ResolveClarification,
		ChosenIntent:  best.result.Intent,
		Confidence:    capAt(best.result.Confidence, 0.6),
		Clarification: fmt.Sprintf("Did you mean to %s?", strings.Join(names, " or ")),
	}
}

// resolveContradictory lets the page context break the tie between the two
// sides of a contradictory pair. When the context favors neither, the user
// must confirm.
func resolveContradictory(conflict types.Conflict, votes []vote, analysis *types.ContextualAnalysis) types.Resolution {
	a, b := conflict.Intents[0], conflict.Intents[1]
	boostA, boostB := analysis.BoostFor(a), analysis.BoostFor(b)

	if boostA != boostB {
		chosen := a
		if boostB > boostA {
			chosen = b
		}
		conf := 0.0
		for _, vt := range votes {
			if vt.result.Intent == chosen && vt.result.Confidence > conf {
				conf = vt.result.Confidence
			}
		}
		return types.Resolution{
			Strategy:     types.ResolveContextBoost,
			ChosenIntent: chosen,
			Confidence:   clamp01(conf + analysis.BoostFor(chosen)),
		}
	}

	best := bestVote(votes)
	return types.Resolution{
		Strategy:      types.ResolveUserConfirmation,
		ChosenIntent:  best.result.Intent,
		Confidence:    capAt(best.result.Confidence, 0.55),
		Clarification: fmt.Sprintf("Just to confirm: you want to %s?", humanize(best.result.Intent)),
	}
}

func bestVote(votes []vote) vote {
	best := votes[0]
	for _, vt := range votes[1:] {
		if vt.result.Confidence > best.result.Confidence {
			best = vt
		}
	}
	return best
}

// humanize renders an intent name as readable words for clarification text.
func humanize(intent types.IntentCategory) string {
	return strings.ReplaceAll(string(intent), "_", " ")
}

func capAt(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}
