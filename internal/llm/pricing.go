package llm

import "sync"

// ModelPricing is the per-1M-token USD rate for one model.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// PricingTable is a mutable, concurrency-safe model -> rate lookup.
type PricingTable struct {
	mu     sync.RWMutex
	rates  map[string]ModelPricing
}

// DefaultPricing returns the built-in rate table for the models this
// deployment routes to. Rates are per 1M tokens, USD.
func DefaultPricing() *PricingTable {
	return &PricingTable{
		rates: map[string]ModelPricing{
			"gpt-4":             {InputPer1M: 30.00, OutputPer1M: 60.00},
			"gpt-4-turbo":       {InputPer1M: 10.00, OutputPer1M: 30.00},
			"gpt-3.5-turbo":     {InputPer1M: 0.50, OutputPer1M: 1.50},
			"claude-3-opus":     {InputPer1M: 15.00, OutputPer1M: 75.00},
			"claude-3-sonnet":   {InputPer1M: 3.00, OutputPer1M: 15.00},
			"claude-3-haiku":    {InputPer1M: 0.25, OutputPer1M: 1.25},
			"deepseek-chat":     {InputPer1M: 0.27, OutputPer1M: 1.10},
			"qwen-plus":         {InputPer1M: 0.40, OutputPer1M: 1.20},
			"qwen-turbo":        {InputPer1M: 0.05, OutputPer1M: 0.20},
			"gemini-pro":        {InputPer1M: 1.25, OutputPer1M: 5.00},
			"gemini-1.5-flash":  {InputPer1M: 0.075, OutputPer1M: 0.30},
		},
	}
}

// Cost returns the USD cost of a completion call. An unknown model costs 0,
// since an unpriced model should never silently inflate a usage report.
func (p *PricingTable) Cost(model string, promptTokens, completionTokens int) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rate, ok := p.rates[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1_000_000*rate.InputPer1M + float64(completionTokens)/1_000_000*rate.OutputPer1M
}

// SetRate adds or overwrites a model's rate, used by deployments that add a
// model outside the built-in table.
func (p *PricingTable) SetRate(model string, rate ModelPricing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[model] = rate
}
