package inference

import "strings"

// SanitizeAssistantForContext strips reasoning blocks and end-of-turn
// markers from an assistant turn replayed in a chat prompt.
func SanitizeAssistantForContext(text string) string {
	s := stripThinkBlocks(text)
	for _, marker := range endOfTurnMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	return strings.TrimSpace(s)
}

// stripThinkBlocks drops <think>...</think> spans, matched without regard
// to case. An unclosed block swallows the rest of the text.
func stripThinkBlocks(text string) string {
	const openTag, closeTag = "<think>", "</think>"
	lower := strings.ToLower(text)

	var b strings.Builder
	for {
		start := strings.Index(lower, openTag)
		if start < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:start])
		end := strings.Index(lower[start+len(openTag):], closeTag)
		if end < 0 {
			return b.String()
		}
		cut := start + len(openTag) + end + len(closeTag)
		text, lower = text[cut:], lower[cut:]
	}
}
