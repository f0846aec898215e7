package media

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/promptforge/promptforge/messages"
	"github.com/promptforge/promptforge/util/fileutil"
	"github.com/promptforge/promptforge/util/imageutil"
)

// FrameSamplingError reports a frame request the sampler cannot satisfy:
// more frames than the source contains, or more than the backend's capacity.
type FrameSamplingError struct {
	Backend   string
	Requested int
	Available int
}

func (e *FrameSamplingError) Error() string {
	return fmt.Sprintf("backend %s: requested %d frames but only %d are available", e.Backend, e.Requested, e.Available)
}

// FrameSampler reduces a video source to a bounded, ordered set of frames.
// Each backend declares which source kinds it can resolve; a mismatch is a
// configuration error surfaced before any fetching happens.
type FrameSampler interface {
	Name() string
	Supports(kind messages.SourceKind) bool
	// FrameCount reports the number of frames in the source without
	// decoding them.
	FrameCount(ctx context.Context, src messages.Source) (int, error)
	// Sample returns numFrames frames, uniformly spaced over the source.
	// numFrames of zero returns every frame.
	Sample(ctx context.Context, src messages.Source, numFrames uint) ([]image.Image, error)
}

// maxSampledFrames bounds how many frames a single video item may expand to,
// since every frame becomes a placeholder token plus a pixel tensor slice.
const maxSampledFrames = 256

var samplers = map[string]FrameSampler{
	"imageseq": &ImageSequenceSampler{},
	"manifest": &ManifestSampler{},
}

// LookupSampler returns the frame sampling backend for the given name, or
// the default "imageseq" backend when name is empty.
func LookupSampler(name string) (FrameSampler, error) {
	if name == "" {
		name = "imageseq"
	}
	sampler, ok := samplers[name]
	if !ok {
		return nil, fmt.Errorf("unknown video load backend %q", name)
	}
	return sampler, nil
}

// RegisterSampler makes a custom frame sampling backend available by name.
func RegisterSampler(sampler FrameSampler) {
	samplers[sampler.Name()] = sampler
}

// sampleIndices picks requested uniformly spaced indices in [0, available).
func sampleIndices(requested, available int) []int {
	indices := make([]int, requested)
	for i := range indices {
		indices[i] = i * available / requested
	}
	return indices
}

// CheckFrameBudget validates a frame request against the source's frame
// count and the per-video capacity.
func CheckFrameBudget(backend string, requested, available int) error {
	if requested > available {
		return &FrameSamplingError{Backend: backend, Requested: requested, Available: available}
	}
	if requested > maxSampledFrames {
		return &FrameSamplingError{Backend: backend, Requested: requested, Available: maxSampledFrames}
	}
	return nil
}

// ImageSequenceSampler treats a video source as a local directory of frame
// images ordered by filename. It only resolves already-local files: url and
// inline sources are rejected up front.
type ImageSequenceSampler struct{}

func (s *ImageSequenceSampler) Name() string { return "imageseq" }

func (s *ImageSequenceSampler) Supports(kind messages.SourceKind) bool {
	return kind == messages.SourcePath
}

func (s *ImageSequenceSampler) frameURLs(ctx context.Context, src messages.Source) ([]string, error) {
	if !s.Supports(src.Kind()) {
		return nil, &UnsupportedSourceError{Kind: src.Kind(), Backend: s.Name()}
	}
	urls, err := fileutil.ListFiles(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	frames := urls[:0]
	for _, u := range urls {
		if isFrameImage(u) {
			frames = append(frames, u)
		}
	}
	sort.Strings(frames)
	return frames, nil
}

func (s *ImageSequenceSampler) FrameCount(ctx context.Context, src messages.Source) (int, error) {
	frames, err := s.frameURLs(ctx, src)
	if err != nil {
		return 0, err
	}
	return len(frames), nil
}

func (s *ImageSequenceSampler) Sample(ctx context.Context, src messages.Source, numFrames uint) ([]image.Image, error) {
	frames, err := s.frameURLs(ctx, src)
	if err != nil {
		return nil, err
	}
	return sampleFrameURLs(ctx, s.Name(), frames, numFrames)
}

// ManifestSampler reads a manifest file whose lines are frame image URLs.
// The manifest itself may live anywhere the abstract file system reaches, so
// this backend supports both url and path sources (remote fetch included).
type ManifestSampler struct{}

func (s *ManifestSampler) Name() string { return "manifest" }

func (s *ManifestSampler) Supports(kind messages.SourceKind) bool {
	return kind == messages.SourceURL || kind == messages.SourcePath
}

func (s *ManifestSampler) frameURLs(ctx context.Context, src messages.Source) ([]string, error) {
	if !s.Supports(src.Kind()) {
		return nil, &UnsupportedSourceError{Kind: src.Kind(), Backend: s.Name()}
	}
	location := src.Path
	if src.Kind() == messages.SourceURL {
		location = src.URL
	}
	b, err := fileutil.ReadFileBytesContext(ctx, location)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			frames = append(frames, line)
		}
	}
	return frames, nil
}

func (s *ManifestSampler) FrameCount(ctx context.Context, src messages.Source) (int, error) {
	frames, err := s.frameURLs(ctx, src)
	if err != nil {
		return 0, err
	}
	return len(frames), nil
}

func (s *ManifestSampler) Sample(ctx context.Context, src messages.Source, numFrames uint) ([]image.Image, error) {
	frames, err := s.frameURLs(ctx, src)
	if err != nil {
		return nil, err
	}
	return sampleFrameURLs(ctx, s.Name(), frames, numFrames)
}

func sampleFrameURLs(ctx context.Context, backend string, frames []string, numFrames uint) ([]image.Image, error) {
	requested := int(numFrames)
	if requested == 0 {
		requested = len(frames)
	}
	if err := CheckFrameBudget(backend, requested, len(frames)); err != nil {
		return nil, err
	}
	sampled := make([]string, requested)
	for i, idx := range sampleIndices(requested, len(frames)) {
		sampled[i] = frames[idx]
	}
	return imageutil.LoadImages(ctx, sampled)
}

func isFrameImage(url string) bool {
	switch {
	case strings.HasSuffix(url, ".png"), strings.HasSuffix(url, ".jpg"),
		strings.HasSuffix(url, ".jpeg"), strings.HasSuffix(url, ".gif"):
		return true
	}
	return false
}
