package llm

import "strings"

// modelPrice is USD per 1M tokens.
type modelPrice struct {
	Input  float64
	Output float64
}

var defaultPrice = modelPrice{Input: 1.00, Output: 2.00}

// priceTable mirrors the original token tracker's per-model pricing,
// extended with the Claude entry this registry adds.
var priceTable = map[string]modelPrice{
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	"gpt-4o":                     {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"gpt-5.1-2025-11-13":         {Input: 1.25, Output: 10.00},
	"gpt-4.1-mini":               {Input: 0.40, Output: 1.60},
	"gpt-4.1-nano":               {Input: 0.10, Output: 0.40},
	"deepseek-chat":              {Input: 0.14, Output: 0.28},
	"deepseek-reasoner":          {Input: 0.55, Output: 2.19},
}

// calculateCost returns input/output/total USD cost for a call. Unknown
// models fall back to defaultPrice.
func calculateCost(modelID string, inputTokens, outputTokens int) (input, output, total float64) {
	price, ok := priceTable[strings.ToLower(modelID)]
	if !ok {
		price = defaultPrice
	}
	input = float64(inputTokens) / 1_000_000 * price.Input
	output = float64(outputTokens) / 1_000_000 * price.Output
	return input, output, input + output
}
