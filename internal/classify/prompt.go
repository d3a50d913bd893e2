package classify

import (
	"fmt"
	"strings"

	"voxnav/internal/types"
)

// Prompt construction for the classification engine. The system prompt pins
// the closed taxonomy; the user prompt carries the utterance plus a bounded
// slice of context.

const maxPromptElements = 10
const maxElementText = 40

const systemPreamble = `You classify short voice commands from users browsing web pages.
Pick exactly ONE intent from the closed taxonomy below. Never invent an intent.
If the command fits nothing, use "unknown_intent" with low confidence.
If the command is an answer to a clarifying question, use "clarify_intent".

Respond with ONLY a JSON object, no prose:
{"intent": "<taxonomy member>", "confidence": <0.0-1.0>, "parameters": {"<name>": "<value>"}, "reasoning": "<one short sentence>"}

Parameters carry slots extracted from the command, such as target, query, direction, or quantity. Omit empty slots.`

// buildSystemPrompt renders the taxonomy grouped by category so the model
// sees related intents together.
func buildSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\nTaxonomy:\n")
	for _, group := range types.AllGroups() {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", group, strings.Join(intentNames(types.IntentsInGroup(group)), ", ")))
	}
	return sb.String()
}

// buildRefineSystemPrompt narrows the taxonomy to one group for the second
// classification pass.
func buildRefineSystemPrompt(group types.IntentGroup) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\nThe command is already known to be in the ")
	sb.WriteString(string(group))
	sb.WriteString(" family. Choose the single best fit from ONLY these intents:\n")
	sb.WriteString(strings.Join(intentNames(types.IntentsInGroup(group)), ", "))
	sb.WriteString("\nYou may also answer \"unknown_intent\" if none fits.")
	return sb.String()
}

// buildUserPrompt renders the utterance and the context the model needs:
// page classification, capabilities, mode, role, the most important page
// elements, and the recent intent history.
func buildUserPrompt(text string, analysis *types.ContextualAnalysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Command: %q\n", text)

	if analysis == nil {
		sb.WriteString("Context: unavailable\n")
		return sb.String()
	}

	page := analysis.Page
	fmt.Fprintf(&sb, "Page: type=%s content=%s mode=%s\n", page.PageType, page.ContentType, page.Mode)
	if len(page.Capabilities) > 0 {
		fmt.Fprintf(&sb, "Page capabilities: %s\n", strings.Join(page.Capabilities, ", "))
	}
	if page.Title != "" {
		fmt.Fprintf(&sb, "Page title: %s\n", page.Title)
	}

	if elems := topElements(page.Elements, maxPromptElements); len(elems) > 0 {
		sb.WriteString("Visible elements:\n")
		for _, e := range elems {
			text := e.Text
			if runes := []rune(text); len(runes) > maxElementText {
				text = string(runes[:maxElementText]) + "…"
			}
			fmt.Fprintf(&sb, "  - <%s> %q\n", e.Tag, text)
		}
	}

	if analysis.User.Role != "" {
		fmt.Fprintf(&sb, "User role: %s\n", analysis.User.Role)
	}
	if len(analysis.Session.RecentIntents) > 0 {
		fmt.Fprintf(&sb, "Recent intents: %s\n", strings.Join(intentNames(analysis.Session.RecentIntents), " -> "))
	}
	if analysis.Session.CurrentTask != "" {
		fmt.Fprintf(&sb, "Current task: %s\n", analysis.Session.CurrentTask)
	}
	return sb.String()
}

func topElements(elements []types.ElementSummary, max int) []types.ElementSummary {
	out := make([]types.ElementSummary, 0, max)
	for _, e := range elements {
		if !e.Visible || e.Text == "" {
			continue
		}
		out = append(out, e)
		if len(out) == max {
			break
		}
	}
	return out
}

func intentNames(intents []types.IntentCategory) []string {
	names := make([]string, len(intents))
	for i, intent := range intents {
		names[i] = string(intent)
	}
	return names
}
