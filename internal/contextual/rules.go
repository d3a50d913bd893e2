package contextual

import "strings"

// Rule is one ordered predicate in the page classification table. Rules are
// not mutually exclusive: every matching rule contributes its capabilities,
// and the first match supplying a page type or content type wins those.
type Rule struct {
	Name string

	// URLFragments match against the lowercased URL path+query.
	URLFragments []string
	// TextMarkers match against the lowercased page text/HTML summary.
	TextMarkers []string

	PageType     string
	ContentType  string
	Capabilities []string
}

// Matches reports whether the rule applies to the given url and body text.
func (r Rule) Matches(url, text string) bool {
	for _, frag := range r.URLFragments {
		if strings.Contains(url, frag) {
			return true
		}
	}
	for _, marker := range r.TextMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Capability names shared with the boost table and tests.
const (
	CapNavigation = "navigation"
	CapECommerce  = "e-commerce"
	CapForms      = "forms"
	CapSearch     = "search"
	CapMedia      = "media"
	CapReading    = "reading"
	CapDownload   = "download"
	CapAuth       = "auth"
)

// DefaultRules is the built-in classification table. New site verticals are
// added here, not in the analyzer's dispatch logic.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:         "ecommerce-url",
			URLFragments: []string{"/product", "/cart", "/checkout", "/shop", "/store", "/order"},
			PageType:     "ecommerce",
			ContentType:  "product",
			Capabilities: []string{CapECommerce},
		},
		{
			Name:         "ecommerce-markers",
			TextMarkers:  []string{"add to cart", "add to basket", "buy now", "checkout"},
			PageType:     "ecommerce",
			ContentType:  "product",
			Capabilities: []string{CapECommerce},
		},
		{
			Name:         "search-url",
			URLFragments: []string{"/search", "?q=", "&q=", "/results"},
			PageType:     "search",
			ContentType:  "listing",
			Capabilities: []string{CapSearch},
		},
		{
			Name:         "search-markers",
			TextMarkers:  []string{"search results", "type=\"search\""},
			PageType:     "search",
			ContentType:  "listing",
			Capabilities: []string{CapSearch},
		},
		{
			Name:         "article-url",
			URLFragments: []string{"/article", "/blog", "/news", "/post", "/wiki"},
			PageType:     "article",
			ContentType:  "article",
			Capabilities: []string{CapReading},
		},
		{
			Name:         "article-markers",
			TextMarkers:  []string{"<article", "min read", "published on"},
			PageType:     "article",
			ContentType:  "article",
			Capabilities: []string{CapReading},
		},
		{
			Name:         "media-url",
			URLFragments: []string{"/watch", "/video", "/listen", "/podcast"},
			PageType:     "media",
			ContentType:  "media",
			Capabilities: []string{CapMedia},
		},
		{
			Name:         "media-markers",
			TextMarkers:  []string{"<video", "<audio", "play video"},
			PageType:     "media",
			ContentType:  "media",
			Capabilities: []string{CapMedia},
		},
		{
			Name:         "forms-markers",
			TextMarkers:  []string{"<form", "<input", "<textarea", "<select"},
			PageType:     "form",
			ContentType:  "form",
			Capabilities: []string{CapForms},
		},
		{
			Name:         "auth-markers",
			URLFragments: []string{"/login", "/signin", "/signup", "/register"},
			TextMarkers:  []string{"sign in", "log in", "password"},
			PageType:     "form",
			ContentType:  "form",
			Capabilities: []string{CapForms, CapAuth},
		},
		{
			Name:         "download-markers",
			TextMarkers:  []string{"download", "href=\"/files"},
			Capabilities: []string{CapDownload},
		},
	}
}
