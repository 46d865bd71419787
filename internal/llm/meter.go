package llm

import "unicode/utf8"

// charsPerToken estimates are provider-specific; lacking a real tokenizer,
// a conservative chars/token ratio per family keeps usage accounting in the
// right ballpark without vendoring a BPE implementation.
var charsPerToken = map[string]float64{
	"openai":    4.0,
	"anthropic": 3.5,
	"google":    4.0,
	"deepseek":  3.8,
	"qwen":      3.8,
	"default":   4.0,
}

// EstimateTokens approximates the token count of text for a provider family.
func EstimateTokens(providerFamily, text string) int {
	ratio, ok := charsPerToken[providerFamily]
	if !ok {
		ratio = charsPerToken["default"]
	}
	chars := utf8.RuneCountInString(text)
	return int(float64(chars)/ratio) + 1
}

// EstimateMessages sums EstimateTokens across every message's content.
func EstimateMessages(providerFamily string, messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(providerFamily, m.Content)
	}
	return total
}
