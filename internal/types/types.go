// Package types holds the shared data model of the intent pipeline: the
// closed intent taxonomy, classification results, contextual analysis, and
// the typed errors the orchestrator surfaces to callers.
package types

import "time"

// ResultSource tags which stage produced a ClassificationResult.
type ResultSource string

const (
	SourcePrimary   ResultSource = "primary"
	SourceSecondary ResultSource = "secondary"
	SourceCache     ResultSource = "cache"
	SourcePattern   ResultSource = "pattern"
	SourceEnsemble  ResultSource = "ensemble"
)

// ClassificationResult is the fully-populated outcome of one classification
// attempt. No stage may hand out a partially built result; constructors fill
// every field before returning.
type ClassificationResult struct {
	Intent     IntentCategory    `json:"intent"`
	Confidence float64           `json:"confidence"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Reasoning  string            `json:"reasoning,omitempty"`
	Source     ResultSource      `json:"source"`
	Model      string            `json:"model,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// PageMode describes what the user is currently doing on the page.
type PageMode string

const (
	ModeView  PageMode = "view"
	ModeEdit  PageMode = "edit"
	ModeMedia PageMode = "media"
)

// ElementSummary is a reduced description of one interactable page element,
// scored by importance so prompt builders can truncate safely.
type ElementSummary struct {
	Tag        string  `json:"tag"`
	Text       string  `json:"text,omitempty"`
	Role       string  `json:"role,omitempty"`
	Importance float64 `json:"importance"`
	Visible    bool    `json:"visible"`
}

// PageContext is the analyzed view of the current page.
type PageContext struct {
	URL          string           `json:"url"`
	Title        string           `json:"title,omitempty"`
	PageType     string           `json:"page_type"`
	ContentType  string           `json:"content_type"`
	Capabilities []string         `json:"capabilities"`
	Elements     []ElementSummary `json:"elements,omitempty"`
	Mode         PageMode         `json:"mode"`
}

// HasCapability reports whether the page analysis detected cap.
func (p PageContext) HasCapability(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// SessionContext carries recent conversational state for one session.
type SessionContext struct {
	SessionID     string           `json:"session_id,omitempty"`
	TenantID      string           `json:"tenant_id,omitempty"`
	RecentIntents []IntentCategory `json:"recent_intents,omitempty"`
	CurrentTask   string           `json:"current_task,omitempty"`
	TurnCount     int              `json:"turn_count"`
}

// UserContext carries who is asking.
type UserContext struct {
	UserID      string   `json:"user_id,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// ContextualAnalysis is built once per request by the context analyzer and
// treated as read-only by every downstream stage.
type ContextualAnalysis struct {
	Page    PageContext    `json:"page"`
	Session SessionContext `json:"session"`
	User    UserContext    `json:"user"`

	// Boosts are additive confidence adjustments per intent; negative values
	// are penalties. ConstrainedIntents are disallowed outright in context.
	Boosts             map[IntentCategory]float64 `json:"boosts,omitempty"`
	ConstrainedIntents []IntentCategory           `json:"constrained_intents,omitempty"`

	Degraded bool `json:"degraded,omitempty"` // minimal fallback was used
}

// BoostFor returns the additive adjustment for intent, zero if none.
func (a *ContextualAnalysis) BoostFor(intent IntentCategory) float64 {
	if a == nil || a.Boosts == nil {
		return 0
	}
	return a.Boosts[intent]
}

// IsConstrained reports whether intent is disallowed in this context.
func (a *ContextualAnalysis) IsConstrained(intent IntentCategory) bool {
	if a == nil {
		return false
	}
	for _, c := range a.ConstrainedIntents {
		if c == intent {
			return true
		}
	}
	return false
}

// ConflictType classifies a disagreement among classification sources.
type ConflictType string

const (
	ConflictAmbiguous           ConflictType = "ambiguous"
	ConflictContradictory       ConflictType = "contradictory"
	ConflictInsufficientContext ConflictType = "insufficient_context"
)

// ResolutionStrategy names how a conflict was (or should be) settled.
type ResolutionStrategy string

const (
	ResolveClarification    ResolutionStrategy = "clarification"
	ResolveContextBoost     ResolutionStrategy = "context_boost"
	ResolveUserConfirmation ResolutionStrategy = "user_confirmation"
	ResolveFallback         ResolutionStrategy = "fallback"
)

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	Strategy      ResolutionStrategy `json:"strategy"`
	ChosenIntent  IntentCategory     `json:"chosen_intent,omitempty"`
	Confidence    float64            `json:"confidence"`
	Clarification string             `json:"clarification,omitempty"`
}

// Conflict is a detected disagreement requiring resolution. It lives for one
// request only.
type Conflict struct {
	Type       ConflictType     `json:"type"`
	Intents    []IntentCategory `json:"intents"`
	Confidence float64          `json:"confidence"`
	Resolution *Resolution      `json:"resolution,omitempty"`
}

// EnsembleStrategy selects the algorithm used to reconcile classifier votes.
type EnsembleStrategy string

const (
	StrategyMajorityVote        EnsembleStrategy = "majority_vote"
	StrategyWeightedAverage     EnsembleStrategy = "weighted_average"
	StrategyConfidenceThreshold EnsembleStrategy = "confidence_threshold"
	StrategyContextualBoost     EnsembleStrategy = "contextual_boost"
)

// EnsembleDecision records how multiple classifier results were combined.
type EnsembleDecision struct {
	FinalIntent   IntentCategory     `json:"final_intent"`
	Confidence    float64            `json:"confidence"`
	Models        []string           `json:"models"`
	Weights       map[string]float64 `json:"weights,omitempty"`
	Agreements    int                `json:"agreements"`
	Disagreements int                `json:"disagreements"`
	Strategy      EnsembleStrategy   `json:"strategy"`
}

// Suggestion is an alternative intent offered alongside the final result.
type Suggestion struct {
	Intent IntentCategory `json:"intent"`
	Reason string         `json:"reason,omitempty"`
}

// StageTimings breaks the request latency down per pipeline stage.
type StageTimings struct {
	Context        time.Duration `json:"context"`
	Cache          time.Duration `json:"cache"`
	Classification time.Duration `json:"classification"`
	Validation     time.Duration `json:"validation"`
	Total          time.Duration `json:"total"`
}

// Response is what ProcessIntent returns to the caller.
type Response struct {
	RequestID     string               `json:"request_id"`
	Result        ClassificationResult `json:"result"`
	Suggestions   []Suggestion         `json:"suggestions,omitempty"`
	Clarification string               `json:"clarification,omitempty"`
	Conflicts     []Conflict           `json:"conflicts,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
	Timings       StageTimings         `json:"timings"`
}

// RequestOptions tune one ProcessIntent call.
type RequestOptions struct {
	SkipCache      bool          `json:"skip_cache,omitempty"`
	SkipValidation bool          `json:"skip_validation,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"` // 0 = configured default
}

// PageSnapshot is the raw page data handed in by the transport layer before
// analysis. HTML is a bounded summary of the DOM, not the full document.
type PageSnapshot struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// SessionSnapshot is the raw session data handed in by the transport layer.
type SessionSnapshot struct {
	SessionID     string   `json:"session_id,omitempty"`
	TenantID      string   `json:"tenant_id,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	RecentIntents []string `json:"recent_intents,omitempty"`
	CurrentTask   string   `json:"current_task,omitempty"`
	TurnCount     int      `json:"turn_count,omitempty"`
}
