// Package media resolves image and video source references (inline base64,
// url, local path) into decoded images and model-ready pixel tensors.
package media

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/promptforge/promptforge/messages"
	"github.com/promptforge/promptforge/util/fileutil"
	"github.com/promptforge/promptforge/util/imageutil"
)

// UnsupportedSourceError reports a source reference kind that the selected
// backend cannot resolve.
type UnsupportedSourceError struct {
	Kind    messages.SourceKind
	Backend string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("backend %s does not support %s sources", e.Backend, e.Kind)
}

// Resolver fetches and decodes image bytes from source references. All
// three source kinds are supported: inline base64 payloads are decoded
// directly, url and path references go through the abstract file system
// (local, http(s), s3).
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

func (r *Resolver) Name() string { return "afs" }

func (r *Resolver) Supports(kind messages.SourceKind) bool {
	switch kind {
	case messages.SourceInline, messages.SourceURL, messages.SourcePath:
		return true
	}
	return false
}

// Fetch returns the raw bytes behind a source reference.
func (r *Resolver) Fetch(ctx context.Context, src messages.Source) ([]byte, error) {
	kind := src.Kind()
	if !r.Supports(kind) {
		return nil, &UnsupportedSourceError{Kind: kind, Backend: r.Name()}
	}
	switch kind {
	case messages.SourceInline:
		return src.InlineBytes()
	case messages.SourceURL:
		return fileutil.ReadFileBytesContext(ctx, src.URL)
	default:
		return fileutil.ReadFileBytesContext(ctx, src.Path)
	}
}

// FetchImage fetches and decodes a single image source.
func (r *Resolver) FetchImage(ctx context.Context, src messages.Source) (image.Image, error) {
	b, err := r.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	img, err := imageutil.DecodeImage(b)
	if err != nil {
		return nil, fmt.Errorf("decoding image from %s source: %w", src.Kind(), err)
	}
	return img, nil
}

// FetchImages fetches multiple image sources concurrently. Results are
// reassembled by source index, so the returned slice order always matches
// the input order regardless of fetch completion order.
func (r *Resolver) FetchImages(ctx context.Context, sources []messages.Source) ([]image.Image, error) {
	images := make([]image.Image, len(sources))
	errs := make([]error, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src messages.Source) {
			defer wg.Done()
			images[i], errs[i] = r.FetchImage(ctx, src)
		}(i, src)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return images, nil
}
