package agent

import (
	"strings"
	"testing"

	"github.com/droverhq/drover/internal/llm"
)

func TestEstimateTokens_ASCII(t *testing.T) {
	// 400 ASCII chars at ~4 chars/token, plus the +1 floor.
	text := strings.Repeat("a", 400)
	if got := estimateTokens(text); got != 101 {
		t.Errorf("expected 101, got %d", got)
	}
}

func TestEstimateTokens_CJK(t *testing.T) {
	// 100 CJK chars at ~2 chars/token, plus the +1 floor.
	text := strings.Repeat("中", 100)
	if got := estimateTokens(text); got != 51 {
		t.Errorf("expected 51, got %d", got)
	}
}

func TestEstimateTokens_Mixed(t *testing.T) {
	text := strings.Repeat("中", 10) + strings.Repeat("a", 40)
	// 10/2 + 40/4 + 1
	if got := estimateTokens(text); got != 16 {
		t.Errorf("expected 16, got %d", got)
	}
}

func TestEstimateTokens_EmptyNeverZero(t *testing.T) {
	if got := estimateTokens(""); got != 1 {
		t.Errorf("expected floor of 1, got %d", got)
	}
}

func TestEstimateMessages_SumsAllContents(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: strings.Repeat("a", 40)}, // 11
		{Role: llm.RoleUser, Content: strings.Repeat("b", 80)},   // 21
	}
	if got := estimateMessages(messages); got != 32 {
		t.Errorf("expected 32, got %d", got)
	}
}
