package budget

import (
	"math"
	"testing"
)

func TestRateTable_KnownModel(t *testing.T) {
	rt := NewRateTable(map[string]float64{"gpt-4o": 0.00003}, 0)
	if got := rt.Rate("gpt-4o"); got != 0.00003 {
		t.Errorf("expected 0.00003, got %v", got)
	}
}

func TestRateTable_UnknownModelUsesDefault(t *testing.T) {
	rt := NewRateTable(nil, 0)
	if got := rt.Rate("mystery-model"); got != DefaultRate {
		t.Errorf("expected default rate %v, got %v", DefaultRate, got)
	}
}

func TestRateTable_Cost(t *testing.T) {
	rt := NewRateTable(nil, 0)
	// 1500 tokens at the default per-token rate.
	if got := rt.Cost("any", 1500); math.Abs(got-0.015) > 1e-12 {
		t.Errorf("expected 0.015, got %v", got)
	}
}

func TestRateTable_SkipsNonPositiveRates(t *testing.T) {
	rt := NewRateTable(map[string]float64{"free": 0, "broken": -1}, 0.00002)
	if got := rt.Rate("free"); got != 0.00002 {
		t.Errorf("zero rate should fall back to default, got %v", got)
	}
	if got := rt.Rate("broken"); got != 0.00002 {
		t.Errorf("negative rate should fall back to default, got %v", got)
	}
}

func TestRateTable_CopiesInput(t *testing.T) {
	input := map[string]float64{"m": 0.001}
	rt := NewRateTable(input, 0)
	input["m"] = 9.9
	if got := rt.Rate("m"); got != 0.001 {
		t.Errorf("rate table should copy the input map, got %v", got)
	}
}
