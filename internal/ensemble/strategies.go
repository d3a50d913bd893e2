package ensemble

import (
	"voxnav/internal/config"
	"voxnav/internal/types"
)

// combine reconciles votes into a single EnsembleDecision using the
// configured strategy. Unknown strategy names fall back to majority vote.
func combine(votes []vote, strategy types.EnsembleStrategy, cfg config.EnsembleConfig, analysis *types.ContextualAnalysis) types.EnsembleDecision {
	var final types.IntentCategory
	var confidence float64

	switch strategy {
	case types.StrategyWeightedAverage:
		final, confidence = weightedAverage(votes)
	case types.StrategyConfidenceThreshold:
		final, confidence = confidenceThreshold(votes, cfg.ConfidenceThreshold)
	case types.StrategyContextualBoost:
		final, confidence = contextualBoost(votes, analysis)
	default:
		strategy = types.StrategyMajorityVote
		final, confidence = majorityVote(votes)
	}

	decision := types.EnsembleDecision{
		FinalIntent: final,
		Confidence:  clamp01(confidence),
		Strategy:    strategy,
		Weights:     make(map[string]float64, len(votes)),
	}
	for _, v := range votes {
		decision.Models = append(decision.Models, v.model)
		decision.Weights[v.model] = v.weight
		if v.result.Intent == final {
			decision.Agreements++
		} else {
			decision.Disagreements++
		}
	}
	return decision
}

// majorityVote picks the intent with the most votes; ties break toward the
// higher total confidence. The decision confidence is the mean confidence of
// the winning intent's votes.
func majorityVote(votes []vote) (types.IntentCategory, float64) {
	counts := make(map[types.IntentCategory]int)
	confSums := make(map[types.IntentCategory]float64)
	for _, v := range votes {
		counts[v.result.Intent]++
		confSums[v.result.Intent] += v.result.Confidence
	}

	var winner types.IntentCategory
	bestCount := -1
	for intent, count := range counts {
		if count > bestCount || (count == bestCount && confSums[intent] > confSums[winner]) {
			winner = intent
			bestCount = count
		}
	}
	return winner, confSums[winner] / float64(bestCount)
}

// weightedAverage scores each intent by the weight-scaled confidence of its
// votes; the decision confidence is the winner's share of total vote mass.
func weightedAverage(votes []vote) (types.IntentCategory, float64) {
	scores := make(map[types.IntentCategory]float64)
	total := 0.0
	for _, v := range votes {
		w := v.weight
		if w <= 0 {
			w = 1.0
		}
		scores[v.result.Intent] += w * v.result.Confidence
		total += w
	}

	var winner types.IntentCategory
	best := -1.0
	for intent, score := range scores {
		if score > best {
			winner = intent
			best = score
		}
	}
	if total == 0 {
		return winner, 0
	}
	return winner, best / total
}

// confidenceThreshold trusts a single vote outright when it clears the
// configured bar; otherwise it defers to majority vote.
func confidenceThreshold(votes []vote, threshold float64) (types.IntentCategory, float64) {
	best := votes[0]
	for _, v := range votes[1:] {
		if v.result.Confidence > best.result.Confidence {
			best = v
		}
	}
	if best.result.Confidence >= threshold {
		return best.result.Intent, best.result.Confidence
	}
	return majorityVote(votes)
}

// contextualBoost applies the analyzer's per-intent adjustments to every vote
// before picking the max.
func contextualBoost(votes []vote, analysis *types.ContextualAnalysis) (types.IntentCategory, float64) {
	var winner types.IntentCategory
	best := -1.0
	for _, v := range votes {
		boosted := v.result.Confidence + analysis.BoostFor(v.result.Intent)
		if analysis.IsConstrained(v.result.Intent) {
			boosted -= 0.4
		}
		if boosted > best {
			winner = v.result.Intent
			best = boosted
		}
	}
	return winner, best
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
