package contextual

import (
	"sort"
	"strings"

	"voxnav/internal/types"

	"golang.org/x/net/html"
)

// interactableTags maps element tags to a base importance weight.
var interactableTags = map[string]float64{
	"button":   1.0,
	"input":    0.9,
	"select":   0.8,
	"textarea": 0.8,
	"a":        0.7,
	"form":     0.6,
	"video":    0.6,
	"audio":    0.6,
}

// actionKeywords raise an element's importance when present in its text,
// since they name actions users commonly speak.
var actionKeywords = []string{
	"add to cart", "buy", "checkout", "search", "submit", "sign in",
	"log in", "download", "play", "pause", "next", "back", "save",
	"delete", "confirm", "cancel",
}

// extractElements parses the DOM summary and returns importance-scored
// interactable elements, sorted descending and truncated to maxElements.
func extractElements(htmlSummary string, maxElements int) []types.ElementSummary {
	if htmlSummary == "" {
		return nil
	}

	doc, err := html.Parse(strings.NewReader(htmlSummary))
	if err != nil {
		// A malformed summary degrades to no elements, never an error.
		return nil
	}

	var elements []types.ElementSummary
	order := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if base, ok := interactableTags[n.Data]; ok {
				el := scoreElement(n, base, order)
				order++
				elements = append(elements, el)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	sort.SliceStable(elements, func(i, j int) bool {
		return elements[i].Importance > elements[j].Importance
	})
	if maxElements > 0 && len(elements) > maxElements {
		elements = elements[:maxElements]
	}
	return elements
}

func scoreElement(n *html.Node, base float64, order int) types.ElementSummary {
	text := strings.TrimSpace(nodeText(n))
	role := attrValue(n, "role")
	visible := isVisible(n)

	score := base
	lower := strings.ToLower(text)
	for _, kw := range actionKeywords {
		if strings.Contains(lower, kw) {
			score += 0.3
			break
		}
	}
	if !visible {
		score -= 0.5
	}
	// Earlier elements tend to sit above the fold.
	score -= float64(order) * 0.002
	if score < 0 {
		score = 0
	}

	if runes := []rune(text); len(runes) > 80 {
		text = string(runes[:80])
	}
	return types.ElementSummary{
		Tag:        n.Data,
		Text:       text,
		Role:       role,
		Importance: score,
		Visible:    visible,
	}
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if n.Type == html.ElementNode && sb.Len() == 0 {
		// Inputs carry their label in attributes.
		if v := attrValue(n, "placeholder"); v != "" {
			return v
		}
		if v := attrValue(n, "value"); v != "" {
			return v
		}
		if v := attrValue(n, "aria-label"); v != "" {
			return v
		}
	}
	return sb.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func isVisible(n *html.Node) bool {
	// The hidden attribute is boolean; its mere presence hides the element.
	if hasAttr(n, "hidden") {
		return false
	}
	if attrValue(n, "type") == "hidden" {
		return false
	}
	style := strings.ToLower(attrValue(n, "style"))
	if strings.Contains(style, "display:none") || strings.Contains(style, "display: none") {
		return false
	}
	if strings.Contains(style, "visibility:hidden") || strings.Contains(style, "visibility: hidden") {
		return false
	}
	return true
}
