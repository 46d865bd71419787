package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokensKnownFamily(t *testing.T) {
	tokens := EstimateTokens("openai", "a quick brown fox")
	assert.Greater(t, tokens, 0)
}

func TestEstimateTokensUnknownFamilyFallsBackToDefault(t *testing.T) {
	a := EstimateTokens("unknown-vendor", "some text here")
	b := EstimateTokens("default", "some text here")
	assert.Equal(t, b, a)
}

func TestEstimateMessagesSums(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "world"},
	}
	total := EstimateMessages("openai", messages)
	assert.Equal(t, EstimateTokens("openai", "hello")+EstimateTokens("openai", "world"), total)
}
