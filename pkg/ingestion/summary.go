package ingestion

import "strings"

// maxSummaryRunes bounds the stored resume summary.
const maxSummaryRunes = 600

// Summarize condenses redacted text into a short preview: leading non-empty
// lines joined with spaces, truncated on a rune boundary.
func Summarize(text string) string {
	var parts []string
	length := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
		length += len(trimmed) + 1
		if length >= maxSummaryRunes {
			break
		}
	}

	summary := strings.Join(parts, " ")
	runes := []rune(summary)
	if len(runes) > maxSummaryRunes {
		summary = string(runes[:maxSummaryRunes])
	}
	return summary
}
