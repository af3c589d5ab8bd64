package budget

// Price is USD per 1K tokens.
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// DefaultPrice applies to models missing from the pricing table.
var DefaultPrice = Price{InputPer1K: 0.01, OutputPer1K: 0.03}

// Pricing maps model names to prices.
type Pricing map[string]Price

func (p Pricing) priceOf(model string) Price {
	if price, ok := p[model]; ok {
		return price
	}
	return DefaultPrice
}

// Cost of a completed call.
func (p Pricing) Cost(model string, promptTokens, completionTokens int) float64 {
	price := p.priceOf(model)
	return float64(promptTokens)/1000*price.InputPer1K + float64(completionTokens)/1000*price.OutputPer1K
}

// Estimate is an upper-leaning cost guess made before a call: the prompt at
// roughly three characters per token and the full completion allowance.
func (p Pricing) Estimate(model string, promptChars, maxCompletionTokens int) float64 {
	promptTokens := (promptChars + 2) / 3
	return p.Cost(model, promptTokens, maxCompletionTokens)
}
