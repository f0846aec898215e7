package tokenizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestTokenizer(t *testing.T, maxTokens int) *Tokenizer {
	t.Helper()
	tokenizer, err := Load("testData", RuntimeGo, maxTokens)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, tokenizer.Close())
	})
	return tokenizer
}

func TestGoTokenizerRoundTrip(t *testing.T) {
	tokenizer := loadTestTokenizer(t, 0)

	encoding, err := tokenizer.Encode("hello world")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, encoding.Tokens)
	assert.Equal(t, []uint32{1, 2}, encoding.TokenIDs)
	assert.Equal(t, []uint32{1, 1}, encoding.AttentionMask)
	assert.Equal(t, 1, encoding.MaxAttentionIndex)

	decoded, err := tokenizer.Decode(encoding.TokenIDs, true)
	require.NoError(t, err)
	assert.Equal(t, "hello world", decoded)
}

func TestGoTokenizerUnknownWord(t *testing.T) {
	tokenizer := loadTestTokenizer(t, 0)

	encoding, err := tokenizer.Encode("hello martian")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0}, encoding.TokenIDs)
}

func TestGoTokenizerTruncation(t *testing.T) {
	tokenizer := loadTestTokenizer(t, 2)

	encoding, err := tokenizer.Encode("one two three four")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, encoding.Tokens)
	assert.Len(t, encoding.TokenIDs, 2)
	assert.Len(t, encoding.AttentionMask, 2)
}

func TestEncodeBatch(t *testing.T) {
	tokenizer := loadTestTokenizer(t, 0)

	encodings, maxSequence, err := tokenizer.EncodeBatch([]string{"hello", "one two three"})
	require.NoError(t, err)
	require.Len(t, encodings, 2)
	assert.Equal(t, []uint32{1}, encodings[0].TokenIDs)
	assert.Equal(t, []uint32{3, 4, 5}, encodings[1].TokenIDs)
	assert.Equal(t, 3, maxSequence)
}

func TestMaxAttentionIndex(t *testing.T) {
	assert.Equal(t, 2, maxAttentionIndex([]uint32{1, 1, 1}))
	assert.Equal(t, 1, maxAttentionIndex([]uint32{1, 1, 0, 0}))
	assert.Equal(t, 0, maxAttentionIndex([]uint32{0, 0, 0}))
	assert.Equal(t, 0, maxAttentionIndex(nil))
}

func TestLoadRejectsUnknownRuntime(t *testing.T) {
	// the model directory is valid, so the failure is the runtime switch
	_, err := Load("testData", "PYTHON", 0)
	require.Error(t, err)
	assert.ErrorContains(t, err, "not recognized")
}

func TestEncodeRejectsUnknownRuntime(t *testing.T) {
	tokenizer := &Tokenizer{Runtime: "PYTHON"}
	_, err := tokenizer.Encode("hello")
	assert.Error(t, err)
	_, err = tokenizer.Decode([]uint32{1}, true)
	assert.Error(t, err)
}

func TestCloseWithoutDestroy(t *testing.T) {
	tokenizer := &Tokenizer{Runtime: RuntimeGo}
	assert.NoError(t, tokenizer.Close())
}
