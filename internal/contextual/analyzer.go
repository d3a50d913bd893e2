// Package contextual converts raw page/session/user snapshots into the
// structured ContextualAnalysis every downstream stage reads. Analysis never
// fails a request: any internal error degrades to a minimal valid context.
package contextual

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"voxnav/internal/config"
	"voxnav/internal/logging"
	"voxnav/internal/types"

	"golang.org/x/sync/errgroup"
)

// Analyzer derives ContextualAnalysis from request snapshots.
type Analyzer struct {
	cfg        config.ContextConfig
	rules      []Rule
	boostRules []boostRule

	mu        sync.RWMutex
	pageCache map[string]cachedAnalysis
}

type cachedAnalysis struct {
	page    types.PageContext
	expires time.Time
}

// NewAnalyzer creates an analyzer with the built-in rule tables.
func NewAnalyzer(cfg config.ContextConfig) *Analyzer {
	return &Analyzer{
		cfg:        cfg,
		rules:      DefaultRules(),
		boostRules: defaultBoostRules,
		pageCache:  make(map[string]cachedAnalysis),
	}
}

// SetRules replaces the page classification table. Used to plug in new site
// verticals without touching analyzer logic.
func (a *Analyzer) SetRules(rules []Rule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = rules
}

// Analyze builds the per-request context. The page, session, and user
// sub-analyses are independent and run concurrently. Analyze never returns
// an error: failures degrade to MinimalAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, page types.PageSnapshot, session types.SessionSnapshot, role string) *types.ContextualAnalysis {
	timer := logging.StartTimer(logging.CategoryContext, "Analyzer.Analyze")
	defer timer.Stop()

	analysis := &types.ContextualAnalysis{}

	g, _ := errgroup.WithContext(ctx)
	var pageCtx types.PageContext
	var sessionCtx types.SessionContext
	var userCtx types.UserContext

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("page analysis panic: %v", r)
			}
		}()
		pageCtx = a.analyzePage(page)
		return nil
	})
	g.Go(func() error {
		sessionCtx = a.analyzeSession(session)
		return nil
	})
	g.Go(func() error {
		userCtx = analyzeUser(session.UserID, role)
		return nil
	})

	if err := g.Wait(); err != nil {
		logging.Get(logging.CategoryContext).Warn("context analysis degraded: %v", err)
		return MinimalAnalysis(page.URL, session, role)
	}

	analysis.Page = pageCtx
	analysis.Session = sessionCtx
	analysis.User = userCtx
	analysis.Boosts, analysis.ConstrainedIntents = computeBoosts(pageCtx, role, a.boostRules)

	logging.ContextDebug("analysis: page_type=%s content_type=%s capabilities=%v boosts=%d constrained=%d",
		pageCtx.PageType, pageCtx.ContentType, pageCtx.Capabilities, len(analysis.Boosts), len(analysis.ConstrainedIntents))
	return analysis
}

// MinimalAnalysis is the fallback context: empty elements, view mode,
// navigation-only capability. The pipeline must never block on context
// analysis failure.
func MinimalAnalysis(rawURL string, session types.SessionSnapshot, role string) *types.ContextualAnalysis {
	return &types.ContextualAnalysis{
		Page: types.PageContext{
			URL:          rawURL,
			PageType:     "generic",
			ContentType:  "mixed",
			Capabilities: []string{CapNavigation},
			Mode:         types.ModeView,
		},
		Session:  types.SessionContext{SessionID: session.SessionID, TenantID: session.TenantID},
		User:     types.UserContext{UserID: session.UserID, Role: role},
		Degraded: true,
	}
}

// analyzePage classifies the page and extracts elements, consulting the
// short-TTL analysis cache keyed by normalized path+query.
func (a *Analyzer) analyzePage(snap types.PageSnapshot) types.PageContext {
	key := normalizePageKey(snap.URL)

	a.mu.RLock()
	if entry, ok := a.pageCache[key]; ok && time.Now().Before(entry.expires) {
		a.mu.RUnlock()
		logging.ContextDebug("page analysis cache hit: %s", key)
		page := entry.page
		page.Mode = parseMode(snap.Mode) // mode is request state, never cached
		return page
	}
	a.mu.RUnlock()

	lowerURL := strings.ToLower(snap.URL)
	lowerText := strings.ToLower(snap.HTML)

	page := types.PageContext{
		URL:         snap.URL,
		Title:       snap.Title,
		PageType:    "generic",
		ContentType: "mixed",
		Mode:        parseMode(snap.Mode),
	}

	// Capability detection is a set union over all matching rules; the first
	// rule that supplies a page/content type wins those fields.
	capSet := map[string]bool{CapNavigation: true}
	for _, rule := range a.currentRules() {
		if !rule.Matches(lowerURL, lowerText) {
			continue
		}
		for _, c := range rule.Capabilities {
			capSet[c] = true
		}
		if page.PageType == "generic" && rule.PageType != "" {
			page.PageType = rule.PageType
		}
		if page.ContentType == "mixed" && rule.ContentType != "" {
			page.ContentType = rule.ContentType
		}
	}
	page.Capabilities = make([]string, 0, len(capSet))
	for c := range capSet {
		page.Capabilities = append(page.Capabilities, c)
	}

	page.Elements = extractElements(snap.HTML, a.cfg.MaxElements)

	a.mu.Lock()
	a.pageCache[key] = cachedAnalysis{page: page, expires: time.Now().Add(a.cfg.AnalysisCacheTTL())}
	a.mu.Unlock()

	return page
}

func (a *Analyzer) currentRules() []Rule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rules
}

func (a *Analyzer) analyzeSession(snap types.SessionSnapshot) types.SessionContext {
	sc := types.SessionContext{
		SessionID:   snap.SessionID,
		TenantID:    snap.TenantID,
		CurrentTask: snap.CurrentTask,
		TurnCount:   snap.TurnCount,
	}
	// Keep only the tail of the history, and only taxonomy members.
	recents := snap.RecentIntents
	if max := a.cfg.MaxHistory; max > 0 && len(recents) > max {
		recents = recents[len(recents)-max:]
	}
	for _, r := range recents {
		if types.IsValidIntent(r) {
			sc.RecentIntents = append(sc.RecentIntents, types.IntentCategory(r))
		}
	}
	return sc
}

// rolePermissions is a fixed role-to-permission mapping. Permission checks
// proper belong to the host application; the analyzer only carries enough to
// drive boost rules.
var rolePermissions = map[string][]string{
	"admin":  {"navigate", "act", "purchase", "upload", "configure"},
	"member": {"navigate", "act", "purchase", "upload"},
	"guest":  {"navigate", "act"},
}

func analyzeUser(userID, role string) types.UserContext {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = rolePermissions["guest"]
	}
	return types.UserContext{UserID: userID, Role: role, Permissions: perms}
}

// normalizePageKey reduces a URL to lowercased path+query for analysis
// caching. Host is included so multi-site sessions do not collide.
func normalizePageKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}
	key := u.Host + u.Path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return strings.ToLower(key)
}

func parseMode(mode string) types.PageMode {
	switch types.PageMode(mode) {
	case types.ModeEdit:
		return types.ModeEdit
	case types.ModeMedia:
		return types.ModeMedia
	default:
		return types.ModeView
	}
}
