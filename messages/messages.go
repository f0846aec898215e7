// Package messages defines the conversation data model shared by the
// renderer and the media layer: ordered messages whose content is either a
// plain string or an ordered list of typed content items.
package messages

import (
	"encoding/base64"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
	ContentTypeVideo = "video"
)

// SourceKind identifies how a media source reference is expressed.
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceInline
	SourceURL
	SourcePath
)

func (k SourceKind) String() string {
	switch k {
	case SourceInline:
		return "inline"
	case SourceURL:
		return "url"
	case SourcePath:
		return "path"
	}
	return "unknown"
}

// Source is a reference to out-of-band media bytes. Exactly one of the
// fields should be set.
type Source struct {
	Base64 string `json:"base64,omitempty"`
	URL    string `json:"url,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Kind reports which reference shape the source carries. Sources with more
// than one field set resolve to the first in base64, url, path order.
func (s Source) Kind() SourceKind {
	switch {
	case s.Base64 != "":
		return SourceInline
	case s.URL != "":
		return SourceURL
	case s.Path != "":
		return SourcePath
	}
	return SourceUnknown
}

// InlineBytes decodes the base64 payload of an inline source.
func (s Source) InlineBytes() ([]byte, error) {
	if s.Kind() != SourceInline {
		return nil, fmt.Errorf("source is %s, not inline", s.Kind())
	}
	return base64.StdEncoding.DecodeString(s.Base64)
}

// ContentItem is one typed unit of message content. Type selects the variant:
// text items carry Text, image and video items carry Source. Video items may
// additionally carry NumFrames to bound frame sampling.
type ContentItem struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Source    Source `json:"source,omitempty"`
	NumFrames uint   `json:"num_frames,omitempty"`
}

// TextItem builds a text content item.
func TextItem(text string) ContentItem {
	return ContentItem{Type: ContentTypeText, Text: text}
}

// ImageItem builds an image content item from a source reference.
func ImageItem(source Source) ContentItem {
	return ContentItem{Type: ContentTypeImage, Source: source}
}

// VideoItem builds a video content item. numFrames of zero lets the frame
// sampler pick its default.
func VideoItem(source Source, numFrames uint) ContentItem {
	return ContentItem{Type: ContentTypeVideo, Source: source, NumFrames: numFrames}
}

// Message is one turn in a conversation. Content is either a string or a
// []ContentItem; anything else fails validation.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Conversation is an ordered sequence of messages. Order is significant:
// templates special-case the first turn for the leading boundary token.
type Conversation []Message

// ShapeError reports a structurally malformed message: a missing or unknown
// role, content that is neither a string nor a content item list, or an
// empty content list.
type ShapeError struct {
	Index  int
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("message %d: %s", e.Index, e.Reason)
}

// UnmarshalJSON decodes a message whose content may be a bare string or a
// list of typed items.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string              `json:"role"`
		Content jsoniter.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	if len(raw.Content) == 0 {
		m.Content = nil
		return nil
	}
	if raw.Content[0] == '"' {
		var s string
		if err := json.Unmarshal(raw.Content, &s); err != nil {
			return err
		}
		m.Content = s
		return nil
	}
	var items []ContentItem
	if err := json.Unmarshal(raw.Content, &items); err != nil {
		return err
	}
	m.Content = items
	return nil
}

// Validate checks every message for the shape invariants: a recognized role
// and content that is a non-empty string-or-list. An empty conversation is
// also rejected.
func (c Conversation) Validate() error {
	if len(c) == 0 {
		return &ShapeError{Index: 0, Reason: "conversation is empty"}
	}
	for i, m := range c {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		case "":
			return &ShapeError{Index: i, Reason: "missing role"}
		default:
			return &ShapeError{Index: i, Reason: fmt.Sprintf("unknown role %q", m.Role)}
		}
		switch content := m.Content.(type) {
		case string:
		case []ContentItem:
			if len(content) == 0 {
				return &ShapeError{Index: i, Reason: "content list is empty"}
			}
			for j, item := range content {
				switch item.Type {
				case ContentTypeText, ContentTypeImage, ContentTypeVideo:
				default:
					return &ShapeError{Index: i, Reason: fmt.Sprintf("content item %d has unsupported type %q", j, item.Type)}
				}
			}
		case nil:
			return &ShapeError{Index: i, Reason: "missing content"}
		default:
			return &ShapeError{Index: i, Reason: fmt.Sprintf("content has unsupported type %T", m.Content)}
		}
	}
	return nil
}

// Items returns the message content as a content item list, treating a bare
// string as a single implicit text item. Centralizing the string-vs-list
// polymorphism here keeps type inspection out of the renderer and media
// layers.
func (m Message) Items() []ContentItem {
	switch content := m.Content.(type) {
	case string:
		return []ContentItem{TextItem(content)}
	case []ContentItem:
		return content
	}
	return nil
}

// MediaItems returns the image and video items of the whole conversation in
// message order. Pixel tensors are later aligned positionally to this order.
func (c Conversation) MediaItems() []ContentItem {
	var media []ContentItem
	for _, m := range c {
		for _, item := range m.Items() {
			if item.Type == ContentTypeImage || item.Type == ContentTypeVideo {
				media = append(media, item)
			}
		}
	}
	return media
}
