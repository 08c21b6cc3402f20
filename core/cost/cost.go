package cost

import (
	"fmt"
	"strings"
	"sync"

	"github.com/leofalp/toolchat/patterns/toolchat"
	"github.com/leofalp/toolchat/providers/ai"
)

// ModelCost represents the pricing structure for a language model.
// Costs are expressed in USD per million tokens.
type ModelCost struct {
	// InputCostPerMillion is the cost in USD per 1 million input tokens
	InputCostPerMillion float64 `json:"input_cost_per_million"`

	// OutputCostPerMillion is the cost in USD per 1 million output tokens
	OutputCostPerMillion float64 `json:"output_cost_per_million"`
}

// modelPricing maps model identifiers to their published per-million-token
// rates. Matching is by prefix so dated snapshots (gpt-4o-2024-08-06,
// claude-3-7-sonnet-20250219) resolve to their base pricing.
var modelPricing = map[string]ModelCost{
	"gpt-4o-mini":       {InputCostPerMillion: 0.15, OutputCostPerMillion: 0.60},
	"gpt-4o":            {InputCostPerMillion: 2.50, OutputCostPerMillion: 10.00},
	"o1-preview":        {InputCostPerMillion: 15.00, OutputCostPerMillion: 60.00},
	"o1-mini":           {InputCostPerMillion: 3.00, OutputCostPerMillion: 12.00},
	"claude-3-5-sonnet": {InputCostPerMillion: 3.00, OutputCostPerMillion: 15.00},
	"claude-3-7-sonnet": {InputCostPerMillion: 3.00, OutputCostPerMillion: 15.00},
}

// ForModel returns the pricing for a model identifier. The longest matching
// prefix wins so "gpt-4o-mini" is not misread as "gpt-4o". The second return
// is false for unknown models.
func ForModel(model string) (ModelCost, bool) {
	var best string
	for prefix := range modelPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return ModelCost{}, false
	}
	return modelPricing[best], true
}

// CalculateInputCost calculates the cost for the given number of input tokens.
func (mc ModelCost) CalculateInputCost(tokens int) float64 {
	return (float64(tokens) / 1_000_000.0) * mc.InputCostPerMillion
}

// CalculateOutputCost calculates the cost for the given number of output tokens.
func (mc ModelCost) CalculateOutputCost(tokens int) float64 {
	return (float64(tokens) / 1_000_000.0) * mc.OutputCostPerMillion
}

// Total computes the dollar cost of a round's usage.
func (mc ModelCost) Total(usage ai.Usage) float64 {
	return mc.CalculateInputCost(usage.PromptTokens) + mc.CalculateOutputCost(usage.CompletionTokens)
}

// String returns a formatted string representation of the model costs.
func (mc ModelCost) String() string {
	return fmt.Sprintf("Input: $%.6f/M, Output: $%.6f/M",
		mc.InputCostPerMillion, mc.OutputCostPerMillion)
}

// Tracker accumulates usage and cost across rounds. Its Record method
// satisfies toolchat.RecordFunc, so a Tracker can be installed directly via
// toolchat.WithRecorder(tracker.Record). Safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	calls        int
	usage        ai.Usage
	totalCost    float64
	unknownModel bool
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record consumes one audit record, adding its usage and cost to the running
// totals. Rounds on unknown models still count calls and tokens; their dollar
// cost is unknown and poisons TotalCost (see TotalCost).
func (t *Tracker) Record(record toolchat.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	t.usage.Add(record.Usage)

	pricing, ok := ForModel(record.Model)
	if !ok {
		t.unknownModel = true
		return
	}
	t.totalCost += pricing.Total(record.Usage)
}

// Calls returns the number of recorded rounds.
func (t *Tracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Usage returns the accumulated token counters.
func (t *Tracker) Usage() ai.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// TotalCost returns the accumulated session cost in USD. When any recorded
// round used a model missing from the pricing table the true total is
// unknowable, so a negative value is returned instead of a misleading
// partial sum.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unknownModel {
		return -1
	}
	return t.totalCost
}
