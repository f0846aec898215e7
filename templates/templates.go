// Package templates holds the chat template definitions and the sandboxed
// template engine they run on. Templates are written in the pongo2
// mini-language (variable interpolation, conditionals, loops) and are bound
// at render time to the conversation plus global flags.
package templates

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// TemplateSyntaxError reports a malformed template, with the position of the
// offending token when the engine can determine it.
type TemplateSyntaxError struct {
	Template string
	Line     int
	Column   int
	Err      error
}

func (e *TemplateSyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("template %s: syntax error at line %d column %d: %v", e.Template, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("template %s: syntax error: %v", e.Template, e.Err)
}

func (e *TemplateSyntaxError) Unwrap() error {
	return e.Err
}

// Template is an immutable chat template plus the model-specific tokens it
// substitutes. ImageSize and PatchSize, when set, enable patch-based image
// token expansion: each image expands to (ImageSize/PatchSize)^2 placeholder
// tokens instead of one.
type Template struct {
	Name             string
	Source           string
	BOSToken         string
	EOSToken         string
	ImageToken       string
	VideoToken       string
	GenerationPrompt string
	ImageSize        int
	PatchSize        int

	compileOnce sync.Once
	compiled    *pongo2.Template
	compileErr  error
}

// templateSet is a sandboxed engine instance: structure-modifying tags are
// banned so vendor-supplied templates can only construct strings.
var templateSet = newTemplateSet()

func newTemplateSet() *pongo2.TemplateSet {
	set := pongo2.NewSet("promptforge", pongo2.MustNewLocalFileSystemLoader(""))
	for _, tag := range []string{"include", "import", "extends", "ssi"} {
		_ = set.BanTag(tag)
	}
	return set
}

func init() {
	// Output is model prompt text, not HTML: special tokens like <s> and
	// <|image_pad|> must come through verbatim, never entity-escaped.
	pongo2.SetAutoescape(false)
	registerFilters()
}

func registerFilters() {
	if !pongo2.FilterExists("trim") {
		_ = pongo2.RegisterFilter("trim", filterTrim)
	}
	if !pongo2.FilterExists("is_string") {
		_ = pongo2.RegisterFilter("is_string", filterIsString)
	}
	if !pongo2.FilterExists("repeat") {
		_ = pongo2.RegisterFilter("repeat", filterRepeat)
	}
}

func filterTrim(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(strings.TrimSpace(in.String())), nil
}

// filterIsString lets templates branch on the content shape: bare string
// content takes the fast path, content item lists get per-item dispatch.
func filterIsString(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(in.IsString()), nil
}

func filterRepeat(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	count := param.Integer()
	if count < 0 {
		count = 0
	}
	return pongo2.AsValue(strings.Repeat(in.String(), count)), nil
}

// Compile parses the template source once. Subsequent calls return the
// cached result.
func (t *Template) Compile() error {
	t.compileOnce.Do(func() {
		compiled, err := templateSet.FromString(t.Source)
		if err != nil {
			t.compileErr = syntaxError(t.Name, err)
			return
		}
		t.compiled = compiled
	})
	return t.compileErr
}

// Execute compiles if needed and evaluates the template against the given
// bindings.
func (t *Template) Execute(bindings map[string]any) (string, error) {
	if err := t.Compile(); err != nil {
		return "", err
	}
	out, err := t.compiled.Execute(pongo2.Context(bindings))
	if err != nil {
		return "", syntaxError(t.Name, err)
	}
	return out, nil
}

func syntaxError(name string, err error) error {
	if perr, ok := err.(*pongo2.Error); ok {
		line, column := 0, 0
		if perr.Token != nil {
			line, column = perr.Token.Line, perr.Token.Col
		}
		return &TemplateSyntaxError{Template: name, Line: line, Column: column, Err: err}
	}
	return &TemplateSyntaxError{Template: name, Err: err}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Template{
		"chatml": ChatML(),
		"gemma":  Gemma(),
		"phi":    Phi(),
		"llava":  Llava(),
	}
)

// Lookup returns a registered template by name.
func Lookup(name string) (*Template, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("template %q is not registered", name)
	}
	return t, nil
}

// Register adds a custom template to the registry, replacing any template
// with the same name.
func Register(t *Template) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t.Name] = t
}

// Names lists the registered template names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// contentBlock is the per-message content dispatch shared by the built-in
// templates: bare strings render directly, content item lists dispatch on
// the item type tag. Image and video items expand to placeholder tokens; the
// renderer binds image_tokens and frames so the template stays declarative.
const contentBlock = `{% if message.content|is_string %}{{ message.content|trim }}{% else %}{% for item in message.content %}{% if item.type == "text" %}{{ item.text|trim }}{% elif item.type == "image" %}{{ image_token|repeat:item.image_tokens }}{% elif item.type == "video" %}{{ video_token|repeat:item.frames }}{% endif %}{% endfor %}{% endif %}`

// ChatML is the Qwen2-VL style template: every turn is wrapped in
// <|im_start|>{role} ... <|im_end|> and generation appends an open
// assistant block.
func ChatML() *Template {
	return &Template{
		Name: "chatml",
		Source: `{% for message in messages %}<|im_start|>{{ message.role }}
` + contentBlock + `<|im_end|>
{% endfor %}{% if add_generation_prompt %}<|im_start|>assistant
{% endif %}`,
		EOSToken:   "<|im_end|>",
		ImageToken: "<|image_pad|>",
		VideoToken: "<|video_pad|>",
		GenerationPrompt: `<|im_start|>assistant
`,
	}
}

// Gemma maps the assistant role to "model" and emits the boundary token
// only on the first turn.
func Gemma() *Template {
	return &Template{
		Name: "gemma",
		Source: `{% for message in messages %}{% if forloop.First %}{{ bos_token }}{% endif %}<start_of_turn>{% if message.role == "assistant" %}model{% else %}{{ message.role }}{% endif %}
` + contentBlock + `<end_of_turn>
{% endfor %}{% if add_generation_prompt %}<start_of_turn>model
{% endif %}`,
		BOSToken:   "<bos>",
		EOSToken:   "<eos>",
		ImageToken: "<start_of_image>",
		VideoToken: "<start_of_image>",
		GenerationPrompt: `<start_of_turn>model
`,
	}
}

// Phi wraps each turn in <|role|> ... <|end|> markers.
func Phi() *Template {
	return &Template{
		Name: "phi",
		Source: `{% for message in messages %}<|{{ message.role }}|>
` + contentBlock + `<|end|>
{% endfor %}{% if add_generation_prompt %}<|assistant|>
{% else %}{{ eos_token }}{% endif %}`,
		EOSToken:   "<|endoftext|>",
		ImageToken: "<|image|>",
		VideoToken: "<|image|>",
		GenerationPrompt: `<|assistant|>
`,
	}
}

// Llava is the vicuna-style vision template: system text leads, user turns
// are prefixed USER: and the assistant opener carries no trailing newline so
// the model continues on the same line.
func Llava() *Template {
	return &Template{
		Name: "llava",
		Source: `{% for message in messages %}{% if forloop.First %}{{ bos_token }}{% endif %}{% if message.role == "user" %}USER: {% elif message.role == "assistant" %}ASSISTANT: {% endif %}` + contentBlock + `{% if message.role == "assistant" %}{{ eos_token }}{% else %}
{% endif %}{% endfor %}{% if add_generation_prompt %}ASSISTANT:{% endif %}`,
		BOSToken:         "<s>",
		EOSToken:         "</s>",
		ImageToken:       "<image>",
		VideoToken:       "<image>",
		GenerationPrompt: "ASSISTANT:",
	}
}
