package contextual

import "voxnav/internal/types"

// boostRule maps a context condition to per-intent confidence adjustments
// and constrained intents. The table is the extension point for new site
// types; the analyzer never branches on page type directly.
type boostRule struct {
	PageType   string         // "" matches any
	Mode       types.PageMode // "" matches any
	Capability string         // "" matches any
	Role       string         // "" matches any

	Boosts      map[types.IntentCategory]float64
	Constrained []types.IntentCategory
}

func (r boostRule) applies(page types.PageContext, role string) bool {
	if r.PageType != "" && r.PageType != page.PageType {
		return false
	}
	if r.Mode != "" && r.Mode != page.Mode {
		return false
	}
	if r.Capability != "" && !page.HasCapability(r.Capability) {
		return false
	}
	if r.Role != "" && r.Role != role {
		return false
	}
	return true
}

// defaultBoostRules is the fixed mapping from {page-type, mode, capability,
// role} to intent adjustments.
var defaultBoostRules = []boostRule{
	{
		Capability: CapECommerce,
		Boosts: map[types.IntentCategory]float64{
			types.IntentAddToCart:      0.15,
			types.IntentRemoveFromCart: 0.10,
			types.IntentViewCart:       0.10,
			types.IntentCheckout:       0.10,
			types.IntentSaveForLater:   0.05,
		},
	},
	{
		Capability: CapSearch,
		Boosts: map[types.IntentCategory]float64{
			types.IntentSearchQuery:   0.15,
			types.IntentFilterResults: 0.10,
			types.IntentSortResults:   0.10,
		},
	},
	{
		Capability: CapReading,
		Boosts: map[types.IntentCategory]float64{
			types.IntentReadContent:      0.10,
			types.IntentSummarizeContent: 0.10,
			types.IntentFindInPage:       0.05,
		},
	},
	{
		Capability: CapMedia,
		Boosts: map[types.IntentCategory]float64{
			types.IntentPlayMedia:  0.15,
			types.IntentPauseMedia: 0.15,
		},
	},
	{
		Capability: CapForms,
		Mode:       types.ModeEdit,
		Boosts: map[types.IntentCategory]float64{
			types.IntentFillForm:     0.15,
			types.IntentSubmitForm:   0.10,
			types.IntentSelectOption: 0.05,
		},
	},
	{
		Capability: CapDownload,
		Boosts: map[types.IntentCategory]float64{
			types.IntentDownloadFile: 0.10,
		},
	},
	// Media controls make no sense without a media surface.
	{
		PageType: "article",
		Constrained: []types.IntentCategory{
			types.IntentPlayMedia,
			types.IntentPauseMedia,
		},
	},
	// Guests cannot complete purchases or uploads.
	{
		Role: "guest",
		Constrained: []types.IntentCategory{
			types.IntentCheckout,
			types.IntentUploadFile,
		},
	},
	// In view mode, form submission is penalized rather than constrained;
	// pages often keep a form in the DOM without the user editing it.
	{
		Mode: types.ModeView,
		Boosts: map[types.IntentCategory]float64{
			types.IntentSubmitForm: -0.05,
		},
	},
}

// computeBoosts folds every applicable rule into one adjustment map plus the
// union of constrained intents.
func computeBoosts(page types.PageContext, role string, rules []boostRule) (map[types.IntentCategory]float64, []types.IntentCategory) {
	boosts := make(map[types.IntentCategory]float64)
	seen := make(map[types.IntentCategory]bool)
	var constrained []types.IntentCategory

	for _, rule := range rules {
		if !rule.applies(page, role) {
			continue
		}
		for intent, adj := range rule.Boosts {
			boosts[intent] += adj
		}
		for _, intent := range rule.Constrained {
			if !seen[intent] {
				seen[intent] = true
				constrained = append(constrained, intent)
			}
		}
	}
	return boosts, constrained
}
