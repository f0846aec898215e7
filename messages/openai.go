package messages

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// OpenAIMessage is a message in the OpenAI chat completion wire shape, where
// image items use the "image_url" tag with a nested url object.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// OpenAIContentPart is one content part in the OpenAI wire shape.
type OpenAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

type OpenAIImageURL struct {
	URL string `json:"url"`
}

// FormatMismatchError reports a content part tag the adapter does not
// recognize. Unknown tags fail loudly rather than being dropped, so that
// templates never silently ignore unsupported content.
type FormatMismatchError struct {
	MessageIndex int
	ItemIndex    int
	Tag          string
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("message %d item %d: unrecognized content type %q", e.MessageIndex, e.ItemIndex, e.Tag)
}

// FromOpenAI translates OpenAI-format messages into the canonical
// conversation shape. This adapter is the only place that understands the
// alternate wire format: "text" parts map to text items, "image_url" parts
// map to image items (data URLs become inline sources), and any other tag
// fails with a FormatMismatchError.
func FromOpenAI(input []OpenAIMessage) (Conversation, error) {
	conversation := make(Conversation, len(input))
	for i, m := range input {
		switch content := m.Content.(type) {
		case string:
			conversation[i] = Message{Role: m.Role, Content: content}
		case []OpenAIContentPart:
			items := make([]ContentItem, len(content))
			for j, part := range content {
				item, err := convertPart(part, i, j)
				if err != nil {
					return nil, err
				}
				items[j] = item
			}
			conversation[i] = Message{Role: m.Role, Content: items}
		case nil:
			return nil, &ShapeError{Index: i, Reason: "missing content"}
		default:
			return nil, &ShapeError{Index: i, Reason: fmt.Sprintf("content has unsupported type %T", m.Content)}
		}
	}
	return conversation, nil
}

// ParseOpenAI decodes a JSON array of OpenAI-format messages and converts it
// to a canonical conversation.
func ParseOpenAI(data []byte) (Conversation, error) {
	var raw []struct {
		Role    string              `json:"role"`
		Content jsoniter.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	input := make([]OpenAIMessage, len(raw))
	for i, m := range raw {
		if len(m.Content) > 0 && m.Content[0] == '"' {
			var s string
			if err := json.Unmarshal(m.Content, &s); err != nil {
				return nil, err
			}
			input[i] = OpenAIMessage{Role: m.Role, Content: s}
			continue
		}
		var parts []OpenAIContentPart
		if err := json.Unmarshal(m.Content, &parts); err != nil {
			return nil, err
		}
		input[i] = OpenAIMessage{Role: m.Role, Content: parts}
	}
	return FromOpenAI(input)
}

func convertPart(part OpenAIContentPart, messageIndex, itemIndex int) (ContentItem, error) {
	switch part.Type {
	case "text":
		return TextItem(part.Text), nil
	case "image_url":
		if part.ImageURL == nil || part.ImageURL.URL == "" {
			return ContentItem{}, &ShapeError{Index: messageIndex, Reason: fmt.Sprintf("content item %d: image_url without url", itemIndex)}
		}
		return ImageItem(sourceFromURL(part.ImageURL.URL)), nil
	default:
		return ContentItem{}, &FormatMismatchError{MessageIndex: messageIndex, ItemIndex: itemIndex, Tag: part.Type}
	}
}

// sourceFromURL maps a data URL to an inline source and anything else to a
// url source.
func sourceFromURL(url string) Source {
	if strings.HasPrefix(url, "data:") {
		if idx := strings.Index(url, "base64,"); idx >= 0 {
			return Source{Base64: url[idx+len("base64,"):]}
		}
	}
	return Source{URL: url}
}
