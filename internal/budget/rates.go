package budget

// DefaultRate is the fallback USD-per-token rate applied when a model has no
// entry in the rate table.
const DefaultRate = 0.00001

// RateTable is a static mapping from model identifier to per-token cost in
// USD, with a default fallback rate for unknown models.
type RateTable struct {
	rates       map[string]float64
	defaultRate float64
}

// NewRateTable builds a rate table. A non-positive defaultRate falls back to
// DefaultRate. The rates map is copied; later mutation of the argument has no
// effect.
func NewRateTable(rates map[string]float64, defaultRate float64) *RateTable {
	if defaultRate <= 0 {
		defaultRate = DefaultRate
	}
	copied := make(map[string]float64, len(rates))
	for model, rate := range rates {
		if rate > 0 {
			copied[model] = rate
		}
	}
	return &RateTable{rates: copied, defaultRate: defaultRate}
}

// Rate returns the USD-per-token rate for model, or the default rate when the
// model is unknown.
func (t *RateTable) Rate(model string) float64 {
	if rate, ok := t.rates[model]; ok {
		return rate
	}
	return t.defaultRate
}

// Cost returns the USD cost of the given token count under the model's rate.
func (t *RateTable) Cost(model string, tokens int) float64 {
	return float64(tokens) * t.Rate(model)
}
