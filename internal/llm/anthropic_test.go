package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSystemExtractsLeadingSystemMessage(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: RoleSystem, Content: "you are a trading analyst"},
		{Role: RoleUser, Content: "analyze AAPL"},
	})

	assert.Equal(t, "you are a trading analyst", system)
	require.Len(t, rest, 1)
	assert.Equal(t, RoleUser, rest[0].Role)
}

func TestSplitSystemHandlesNoSystemMessage(t *testing.T) {
	system, rest := splitSystem([]Message{{Role: RoleUser, Content: "hi"}})
	assert.Empty(t, system)
	require.Len(t, rest, 1)
}

func TestParseAnthropicChunkExtractsDelta(t *testing.T) {
	delta, done, err := parseAnthropicChunk([]byte(`{"type":"content_block_delta","delta":{"text":"hello"}}`))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "hello", delta)
}

func TestParseAnthropicChunkSignalsDone(t *testing.T) {
	_, done, err := parseAnthropicChunk([]byte(`{"type":"message_stop"}`))
	require.NoError(t, err)
	assert.True(t, done)
}

func TestParseOpenAIChunkSignalsDone(t *testing.T) {
	_, done, err := parseOpenAIChunk([]byte("[DONE]"))
	require.NoError(t, err)
	assert.True(t, done)
}

func TestParseOpenAIChunkExtractsDelta(t *testing.T) {
	delta, done, err := parseOpenAIChunk([]byte(`{"choices":[{"delta":{"content":"hi"}}]}`))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "hi", delta)
}
