// Package assembler selects retrieved chunks into a token budget for the
// LLM context window.
package assembler

import (
	"strings"

	"github.com/bog-assistant/backend/internal/kg/neo4j"
)

// TokenEstimator approximates the token cost of a piece of text. The
// default is a cheap word-count heuristic; swap in an exact tokenizer here
// without touching the selection logic.
type TokenEstimator func(text string) float64

const wordsToTokens = 1.3

// WordEstimator estimates tokens as word count x 1.3.
func WordEstimator(text string) float64 {
	return float64(len(strings.Fields(text))) * wordsToTokens
}

type Assembler struct {
	// Budget is the total token ceiling for the assembled context,
	// including the query and Overhead.
	Budget int
	// Overhead reserves room for instructions and response headroom.
	Overhead int
	// MaxChunkChars truncates each chunk before costing so a single long
	// chunk cannot dominate the budget.
	MaxChunkChars int
	Estimate      TokenEstimator
}

func New(budget, overhead, maxChunkChars int) *Assembler {
	return &Assembler{
		Budget:        budget,
		Overhead:      overhead,
		MaxChunkChars: maxChunkChars,
		Estimate:      WordEstimator,
	}
}

// Select greedily walks chunks in their given score-descending order and
// returns the longest prefix that fits the budget, each chunk carrying its
// truncated text. Selection stops at the first chunk that would overflow;
// later, cheaper chunks are not considered. An empty result means the
// caller has no usable context and must answer with a fallback instead of
// invoking the generator.
func (a *Assembler) Select(query string, chunks []neo4j.Chunk) []neo4j.Chunk {
	estimate := a.Estimate
	if estimate == nil {
		estimate = WordEstimator
	}

	total := estimate(query) + float64(a.Overhead)

	selected := make([]neo4j.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		text := truncateRunes(chunk.Text, a.MaxChunkChars)

		cost := estimate(text)
		if total+cost > float64(a.Budget) {
			break
		}

		chunk.Text = text
		selected = append(selected, chunk)
		total += cost
	}

	return selected
}

// truncateRunes cuts text to at most max characters. The cut is on rune
// boundaries so multi-byte text is never left with a partial rune.
func truncateRunes(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}

	count := 0
	for i := range text {
		if count == max {
			return text[:i]
		}
		count++
	}
	return text
}
