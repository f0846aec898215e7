// Package renderer evaluates chat templates over structured conversations,
// producing either a formatted prompt string or an encoded output with token
// ids and pixel tensors aligned to the emitted placeholder tokens.
package renderer

import (
	"context"
	"fmt"
	"image"

	"gorgonia.org/tensor"

	"github.com/promptforge/promptforge/media"
	"github.com/promptforge/promptforge/messages"
	"github.com/promptforge/promptforge/templates"
	"github.com/promptforge/promptforge/tokenizers"
)

// Options are the per-render switches controlling output shape and media
// handling. Unknown keys placed in Extra are passed through to the template
// bindings rather than rejected.
type Options struct {
	// AddGenerationPrompt appends the template's assistant-turn opener
	// after the last message, with no trailing content.
	AddGenerationPrompt bool
	// Tokenize runs the tokenizer over the rendered string and resolves all
	// media items into pixel tensors.
	Tokenize bool
	// ReturnDict controls the tokenized output shape: when false, only the
	// token id sequence is returned.
	ReturnDict bool
	// ReturnTensors selects the downstream tensor format. The renderer
	// treats it as opaque and records it on the output.
	ReturnTensors string
	// NumFrames bounds frame sampling for video items that do not carry
	// their own frame count. Zero samples every frame.
	NumFrames uint
	// VideoLoadBackend selects the frame sampling backend by name.
	VideoLoadBackend string
	// Extra holds unrecognized options, exposed to the template unchanged.
	Extra map[string]any
}

// Output is the result of a render. Text is always set. The encoded fields
// are populated only when Options.Tokenize is true; PixelValues and
// ImageSizes only when the conversation carries media.
type Output struct {
	Text          string
	InputIDs      []uint32
	AttentionMask []uint32
	PixelValues   *tensor.Dense
	ImageSizes    [][2]int
	ReturnTensors string
}

// Tokenizer is the narrow contract the renderer needs from a tokenizer.
type Tokenizer interface {
	Encode(input string) (*tokenizers.Encoding, error)
	Decode(tokens []uint32, skipSpecialTokens bool) (string, error)
}

// MediaResolver fetches and decodes image sources, preserving input order.
type MediaResolver interface {
	Supports(kind messages.SourceKind) bool
	FetchImages(ctx context.Context, sources []messages.Source) ([]image.Image, error)
}

// FrameSampler reduces a video source to an ordered set of frames.
type FrameSampler interface {
	Name() string
	Supports(kind messages.SourceKind) bool
	FrameCount(ctx context.Context, src messages.Source) (int, error)
	Sample(ctx context.Context, src messages.Source, numFrames uint) ([]image.Image, error)
}

// Renderer binds a chat template to its collaborators. A Renderer is
// immutable after construction and safe for concurrent use: every Render
// call operates only on its inputs.
type Renderer struct {
	template      *templates.Template
	tokenizer     Tokenizer
	resolver      MediaResolver
	samplerLookup func(name string) (FrameSampler, error)
	imageConfig   media.ImageConfig
}

// Option configures a Renderer.
type Option func(r *Renderer) error

// WithTokenizer sets the tokenizer used when Options.Tokenize is true.
func WithTokenizer(t Tokenizer) Option {
	return func(r *Renderer) error {
		r.tokenizer = t
		return nil
	}
}

// WithResolver replaces the default media resolver.
func WithResolver(m MediaResolver) Option {
	return func(r *Renderer) error {
		r.resolver = m
		return nil
	}
}

// WithSamplerLookup replaces how video load backends are resolved by name.
func WithSamplerLookup(lookup func(name string) (FrameSampler, error)) Option {
	return func(r *Renderer) error {
		r.samplerLookup = lookup
		return nil
	}
}

// WithImageConfig sets the pixel preprocessing applied when media is
// resolved into tensors.
func WithImageConfig(cfg media.ImageConfig) Option {
	return func(r *Renderer) error {
		r.imageConfig = cfg
		return nil
	}
}

// New creates a renderer for the given template. The template is compiled
// eagerly so syntax errors surface at construction rather than first render.
func New(template *templates.Template, opts ...Option) (*Renderer, error) {
	if err := template.Compile(); err != nil {
		return nil, err
	}
	r := &Renderer{
		template: template,
		resolver: media.NewResolver(),
		samplerLookup: func(name string) (FrameSampler, error) {
			return media.LookupSampler(name)
		},
	}
	for _, o := range opts {
		if err := o(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Renderer) Template() *templates.Template {
	return r.template
}

// Render evaluates the template over the conversation. Rendering either
// fully succeeds or reports an error; no partial output is returned.
func (r *Renderer) Render(ctx context.Context, conversation messages.Conversation, opts Options) (*Output, error) {
	if err := conversation.Validate(); err != nil {
		return nil, err
	}

	plan, err := r.planMedia(ctx, conversation, opts)
	if err != nil {
		return nil, err
	}

	bindings := r.bind(conversation, plan, opts)
	text, err := r.template.Execute(bindings)
	if err != nil {
		return nil, err
	}

	output := &Output{Text: text, ReturnTensors: opts.ReturnTensors}
	if !opts.Tokenize {
		return output, nil
	}
	if r.tokenizer == nil {
		return nil, fmt.Errorf("tokenize requested but no tokenizer is configured")
	}

	encoding, err := r.tokenizer.Encode(text)
	if err != nil {
		return nil, err
	}
	output.InputIDs = encoding.TokenIDs
	if !opts.ReturnDict {
		output.Text = ""
		return output, nil
	}
	output.AttentionMask = encoding.AttentionMask

	frames, err := r.resolveMedia(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(frames) > 0 {
		pixelValues, sizes, stackErr := media.StackPixelValues(frames, r.imageConfig)
		if stackErr != nil {
			return nil, stackErr
		}
		output.PixelValues = pixelValues
		output.ImageSizes = sizes
	}
	return output, nil
}

// mediaPlan records, per media item in conversation order, what will be
// fetched at encode time and how many frames each video expands to. The
// plan is computed before template evaluation so placeholder counts and
// pixel tensors stay positionally aligned.
type mediaPlan struct {
	items []mediaPlanItem
	// frames per video item keyed by media item index
	videoFrames map[int]int
}

type mediaPlanItem struct {
	item    messages.ContentItem
	sampler FrameSampler
	frames  uint
}

func (r *Renderer) planMedia(ctx context.Context, conversation messages.Conversation, opts Options) (*mediaPlan, error) {
	plan := &mediaPlan{videoFrames: map[int]int{}}
	for _, item := range conversation.MediaItems() {
		index := len(plan.items)
		switch item.Type {
		case messages.ContentTypeImage:
			if !r.resolver.Supports(item.Source.Kind()) {
				return nil, &media.UnsupportedSourceError{Kind: item.Source.Kind(), Backend: "resolver"}
			}
			plan.items = append(plan.items, mediaPlanItem{item: item})
		case messages.ContentTypeVideo:
			sampler, err := r.samplerLookup(opts.VideoLoadBackend)
			if err != nil {
				return nil, err
			}
			if !sampler.Supports(item.Source.Kind()) {
				return nil, &media.UnsupportedSourceError{Kind: item.Source.Kind(), Backend: sampler.Name()}
			}
			available, err := sampler.FrameCount(ctx, item.Source)
			if err != nil {
				return nil, err
			}
			requested := int(item.NumFrames)
			if requested == 0 {
				requested = int(opts.NumFrames)
			}
			if requested == 0 {
				requested = available
			}
			if err := media.CheckFrameBudget(sampler.Name(), requested, available); err != nil {
				return nil, err
			}
			plan.items = append(plan.items, mediaPlanItem{item: item, sampler: sampler, frames: uint(requested)})
			plan.videoFrames[index] = requested
		}
	}
	return plan, nil
}

// bind converts the conversation into template bindings. Bare string content
// stays a string so templates can take the fast path; content item lists
// become maps carrying the per-item expansion counts the template repeats
// placeholders by.
func (r *Renderer) bind(conversation messages.Conversation, plan *mediaPlan, opts Options) map[string]any {
	imageTokens := media.ImageTokenCount(r.template.ImageSize, r.template.PatchSize)

	mediaIndex := 0
	boundMessages := make([]map[string]any, len(conversation))
	for i, message := range conversation {
		bound := map[string]any{"role": message.Role}
		switch content := message.Content.(type) {
		case string:
			bound["content"] = content
		case []messages.ContentItem:
			items := make([]map[string]any, len(content))
			for j, item := range content {
				switch item.Type {
				case messages.ContentTypeText:
					items[j] = map[string]any{"type": "text", "text": item.Text}
				case messages.ContentTypeImage:
					items[j] = map[string]any{"type": "image", "image_tokens": imageTokens}
					mediaIndex++
				case messages.ContentTypeVideo:
					items[j] = map[string]any{"type": "video", "frames": plan.videoFrames[mediaIndex]}
					mediaIndex++
				}
			}
			bound["content"] = items
		}
		boundMessages[i] = bound
	}

	bindings := map[string]any{
		"messages":              boundMessages,
		"add_generation_prompt": opts.AddGenerationPrompt,
		"bos_token":             r.template.BOSToken,
		"eos_token":             r.template.EOSToken,
		"image_token":           r.template.ImageToken,
		"video_token":           r.template.VideoToken,
	}
	for key, value := range opts.Extra {
		if _, reserved := bindings[key]; !reserved {
			bindings[key] = value
		}
	}
	return bindings
}

// resolveMedia fetches every planned media item and flattens the decoded
// frames in item order: one image per image item, the sampled frames per
// video item. Image fetches run concurrently inside the resolver; results
// are reassembled by item index before stacking.
func (r *Renderer) resolveMedia(ctx context.Context, plan *mediaPlan) ([]image.Image, error) {
	if len(plan.items) == 0 {
		return nil, nil
	}

	var imageSources []messages.Source
	for _, planned := range plan.items {
		if planned.item.Type == messages.ContentTypeImage {
			imageSources = append(imageSources, planned.item.Source)
		}
	}
	var fetched []image.Image
	if len(imageSources) > 0 {
		var err error
		fetched, err = r.resolver.FetchImages(ctx, imageSources)
		if err != nil {
			return nil, err
		}
	}

	var frames []image.Image
	imageIndex := 0
	for _, planned := range plan.items {
		switch planned.item.Type {
		case messages.ContentTypeImage:
			frames = append(frames, fetched[imageIndex])
			imageIndex++
		case messages.ContentTypeVideo:
			sampled, err := planned.sampler.Sample(ctx, planned.item.Source, planned.frames)
			if err != nil {
				return nil, err
			}
			frames = append(frames, sampled...)
		}
	}
	return frames, nil
}
