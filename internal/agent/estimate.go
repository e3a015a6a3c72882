package agent

import "github.com/droverhq/drover/internal/llm"

// estimateTokens estimates token count using character-based heuristics.
// CJK Unified Ideographs (U+4E00 to U+9FFF) count as ~2 chars/token, all
// other characters as ~4 chars/token.
//
// Precision is roughly 20-30% for mixed content. Sufficient for pre-call
// admission checks; exact accounting uses the API-reported usage after
// the call.
func estimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		} else {
			other++
		}
	}
	return cjk/2 + other/4 + 1 // +1 avoids zero for short strings
}

// estimateMessages sums the heuristic estimate over a message set.
func estimateMessages(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}
	return total
}
