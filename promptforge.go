// Package promptforge renders structured multimodal conversations through
// chat templates into prompt strings or tokenized, tensor-aligned model
// inputs.
package promptforge

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptforge/promptforge/messages"
	"github.com/promptforge/promptforge/renderer"
	"github.com/promptforge/promptforge/templates"
	"github.com/promptforge/promptforge/tokenizers"
)

// Session caches renderers per template and owns the lifecycle of any
// tokenizers loaded through it.
type Session struct {
	renderers  map[string]*renderer.Renderer
	tokenizers []*tokenizers.Tokenizer
}

func NewSession() *Session {
	return &Session{renderers: map[string]*renderer.Renderer{}}
}

// RendererFor returns a cached renderer for the named template, creating it
// on first use. Options are only applied on creation; asking for the same
// template with different options requires distinct sessions.
func (s *Session) RendererFor(templateName string, opts ...renderer.Option) (*renderer.Renderer, error) {
	if r, ok := s.renderers[templateName]; ok {
		return r, nil
	}
	template, err := templates.Lookup(templateName)
	if err != nil {
		return nil, err
	}
	r, err := renderer.New(template, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating renderer for template %s: %w", templateName, err)
	}
	s.renderers[templateName] = r
	return r, nil
}

// LoadTokenizer loads a tokenizer from a model directory and tracks it for
// destruction with the session.
func (s *Session) LoadTokenizer(modelPath string, runtime string, maxTokens int) (*tokenizers.Tokenizer, error) {
	tokenizer, err := tokenizers.Load(modelPath, runtime, maxTokens)
	if err != nil {
		return nil, err
	}
	s.tokenizers = append(s.tokenizers, tokenizer)
	return tokenizer, nil
}

// Destroy releases every tokenizer loaded through the session.
func (s *Session) Destroy() error {
	var errs []error
	for _, tokenizer := range s.tokenizers {
		errs = append(errs, tokenizer.Close())
	}
	s.tokenizers = nil
	s.renderers = map[string]*renderer.Renderer{}
	return errors.Join(errs...)
}

// Render is the one-shot convenience for string output: it renders the
// conversation with the named template and no tokenization.
func Render(ctx context.Context, templateName string, conversation messages.Conversation, opts renderer.Options) (string, error) {
	template, err := templates.Lookup(templateName)
	if err != nil {
		return "", err
	}
	r, err := renderer.New(template)
	if err != nil {
		return "", err
	}
	opts.Tokenize = false
	output, err := r.Render(ctx, conversation, opts)
	if err != nil {
		return "", err
	}
	return output.Text, nil
}
