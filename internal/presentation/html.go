// Package presentation converts generated answers into the display markup
// used by the chat front end.
package presentation

import (
	"fmt"
	"html"
	"strings"
)

const (
	headerBlock = `<div style="background-color:#f0f4ff; padding: 1rem; border-radius: 8px; margin-bottom: 1rem; font-weight: 600;">BoG Meeting Analysis</div>`

	evidenceStyle = `border-left: 5px solid #ffa94d; padding: 0.75rem 1rem; border-radius: 4px; margin-bottom: 1rem;`
	noteStyle     = `border-left: 5px solid #38d9a9; padding: 0.75rem 1rem; border-radius: 4px; margin-bottom: 1rem;`
)

// FormatHTML wraps an answer in display markup. Paragraphs are split on
// blank lines; paragraphs opening with "based on", numbered list entries
// ("1." etc.) and note paragraphs each get their own styling.
func FormatHTML(answer string) string {
	var builder strings.Builder
	builder.WriteString(`<div style="font-family: 'Segoe UI', sans-serif; font-size: 1rem; padding: 1rem;">`)
	builder.WriteString(headerBlock)

	for _, para := range splitParagraphs(answer) {
		escaped := html.EscapeString(para)
		lower := strings.ToLower(para)

		switch {
		case strings.HasPrefix(lower, "based on"):
			builder.WriteString(fmt.Sprintf(`<div style="%s">%s</div>`, evidenceStyle, escaped))
		case isNumberedItem(para):
			builder.WriteString(fmt.Sprintf(`<div style="margin-left: 1rem; margin-bottom: 0.5rem;"><p>%s</p></div>`, escaped))
		case strings.Contains(lower, "note that") || strings.Contains(lower, "please note"):
			builder.WriteString(fmt.Sprintf(`<div style="%s">%s</div>`, noteStyle, escaped))
		default:
			builder.WriteString(fmt.Sprintf(`<p style="margin-bottom: 1rem;">%s</p>`, escaped))
		}
	}

	builder.WriteString(`</div>`)
	return builder.String()
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			paragraphs = append(paragraphs, para)
		}
	}
	return paragraphs
}

func isNumberedItem(para string) bool {
	for i, r := range para {
		if r >= '0' && r <= '9' {
			continue
		}
		return i > 0 && r == '.'
	}
	return false
}
