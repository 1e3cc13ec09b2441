package genai

import "strings"

// ModelCost contains pricing per million tokens.
type ModelCost struct {
	InputPer1M  float64
	OutputPer1M float64
}

// modelCosts contains the fixed price table used for cost accounting.
// Prices are per million tokens.
var modelCosts = map[ProviderName]map[string]ModelCost{
	ProviderAnthropic: {
		"claude-3-5-sonnet-20241022": {InputPer1M: 3.0, OutputPer1M: 15.0},
		"claude-3-5-haiku-20241022":  {InputPer1M: 1.0, OutputPer1M: 5.0},
		"claude-3-opus-20240229":     {InputPer1M: 15.0, OutputPer1M: 75.0},
		"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	},
	ProviderOpenAI: {
		"gpt-4o":        {InputPer1M: 2.50, OutputPer1M: 10.0},
		"gpt-4o-mini":   {InputPer1M: 0.15, OutputPer1M: 0.60},
		"gpt-4-turbo":   {InputPer1M: 10.0, OutputPer1M: 30.0},
		"gpt-3.5-turbo": {InputPer1M: 0.50, OutputPer1M: 1.50},
	},
}

// ResolveModelCost looks up pricing for a model, trying exact match first
// and falling back to family heuristics for versioned model names.
func ResolveModelCost(provider ProviderName, model string) ModelCost {
	model = strings.TrimSpace(model)

	if costs, ok := modelCosts[provider]; ok {
		if cost, ok := costs[model]; ok {
			return cost
		}
		for id, cost := range costs {
			if strings.HasPrefix(model, id) {
				return cost
			}
		}
	}

	switch provider {
	case ProviderAnthropic:
		switch {
		case strings.Contains(model, "opus"):
			return ModelCost{InputPer1M: 15.0, OutputPer1M: 75.0}
		case strings.Contains(model, "sonnet"):
			return ModelCost{InputPer1M: 3.0, OutputPer1M: 15.0}
		case strings.Contains(model, "haiku"):
			return ModelCost{InputPer1M: 0.25, OutputPer1M: 1.25}
		}
	case ProviderOpenAI:
		switch {
		case strings.HasPrefix(model, "gpt-4o-mini"):
			return ModelCost{InputPer1M: 0.15, OutputPer1M: 0.60}
		case strings.HasPrefix(model, "gpt-4o"):
			return ModelCost{InputPer1M: 2.50, OutputPer1M: 10.0}
		}
	}

	return ModelCost{}
}

// Amount converts a token count pair into a dollar cost.
func (c ModelCost) Amount(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*c.InputPer1M +
		float64(outputTokens)/1_000_000*c.OutputPer1M
}
