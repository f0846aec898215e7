package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromOpenAI(t *testing.T) {
	input := []OpenAIMessage{
		{Role: RoleSystem, Content: "You are terse."},
		{Role: RoleUser, Content: []OpenAIContentPart{
			{Type: "image_url", ImageURL: &OpenAIImageURL{URL: "https://example.com/cat.png"}},
			{Type: "text", Text: "What breed?"},
		}},
	}
	conversation, err := FromOpenAI(input)
	require.NoError(t, err)
	require.Len(t, conversation, 2)
	assert.Equal(t, "You are terse.", conversation[0].Content)

	items, ok := conversation[1].Content.([]ContentItem)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, ContentTypeImage, items[0].Type)
	assert.Equal(t, "https://example.com/cat.png", items[0].Source.URL)
	assert.Equal(t, "What breed?", items[1].Text)
}

func TestFromOpenAIDataURL(t *testing.T) {
	input := []OpenAIMessage{
		{Role: RoleUser, Content: []OpenAIContentPart{
			{Type: "image_url", ImageURL: &OpenAIImageURL{URL: "data:image/png;base64,aGVsbG8="}},
		}},
	}
	conversation, err := FromOpenAI(input)
	require.NoError(t, err)

	items := conversation[0].Content.([]ContentItem)
	require.Len(t, items, 1)
	// data URLs carry the bytes themselves, so the source becomes inline
	assert.Equal(t, SourceInline, items[0].Source.Kind())
	b, err := items[0].Source.InlineBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)
}

func TestFromOpenAIUnknownTag(t *testing.T) {
	input := []OpenAIMessage{
		{Role: RoleUser, Content: "fine"},
		{Role: RoleUser, Content: []OpenAIContentPart{
			{Type: "text", Text: "fine"},
			{Type: "input_audio"},
		}},
	}
	_, err := FromOpenAI(input)
	require.Error(t, err)
	var mismatch *FormatMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.MessageIndex)
	assert.Equal(t, 1, mismatch.ItemIndex)
	assert.Equal(t, "input_audio", mismatch.Tag)
}

func TestFromOpenAIImageURLWithoutURL(t *testing.T) {
	input := []OpenAIMessage{
		{Role: RoleUser, Content: []OpenAIContentPart{{Type: "image_url"}}},
	}
	_, err := FromOpenAI(input)
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
}

func TestParseOpenAI(t *testing.T) {
	data := []byte(`[
		{"role": "system", "content": "You are terse."},
		{"role": "user", "content": [
			{"type": "text", "text": "Look:"},
			{"type": "image_url", "image_url": {"url": "https://example.com/cat.png"}}
		]}
	]`)
	conversation, err := ParseOpenAI(data)
	require.NoError(t, err)
	require.Len(t, conversation, 2)
	require.NoError(t, conversation.Validate())

	items := conversation[1].Content.([]ContentItem)
	require.Len(t, items, 2)
	assert.Equal(t, ContentTypeText, items[0].Type)
	assert.Equal(t, ContentTypeImage, items[1].Type)
}
