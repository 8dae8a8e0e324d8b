package synthesis

import (
	"pravnyk/internal/config"
	"pravnyk/internal/types"
)

// Strategy is the resolved model choice for one request. It is a pure
// function of the reasoning budget and configuration: no call-time state
// leaks into model selection, so identical requests pick identical models.
type Strategy struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	MaxTokens    int    `json:"max_tokens"`
	SupportsJSON bool   `json:"supports_json"`
}

// StrategyFor maps a reasoning budget onto a concrete model.
func StrategyFor(budget types.Budget, cfg config.LLMConfig) Strategy {
	s := Strategy{Provider: "gemini", SupportsJSON: true}
	switch budget {
	case types.BudgetQuick:
		s.Model = orDefault(cfg.QuickModel, "gemini-2.5-flash-lite")
		s.MaxTokens = 4096
	case types.BudgetDeep:
		s.Model = orDefault(cfg.DeepModel, "gemini-2.5-pro")
		s.MaxTokens = 32768
	default:
		s.Model = orDefault(cfg.StandardModel, "gemini-2.5-flash")
		s.MaxTokens = 16384
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// modelPrice is USD per million tokens.
type modelPrice struct {
	input  float64
	output float64
}

// priceTable holds published list prices. Unknown models estimate at the
// standard tier so cost accounting never silently reports zero.
var priceTable = map[string]modelPrice{
	"gemini-2.5-flash-lite": {input: 0.10, output: 0.40},
	"gemini-2.5-flash":      {input: 0.30, output: 2.50},
	"gemini-2.5-pro":        {input: 1.25, output: 10.00},
}

// EstimateCost returns the USD cost of a call given token counts.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	price, ok := priceTable[model]
	if !ok {
		price = priceTable["gemini-2.5-flash"]
	}
	return float64(inputTokens)/1e6*price.input + float64(outputTokens)/1e6*price.output
}

// EstimateTokens approximates token count from text length. Ukrainian
// legal text runs about 3 bytes per token with this tokenizer family.
func EstimateTokens(text string) int {
	return len(text) / 3
}
