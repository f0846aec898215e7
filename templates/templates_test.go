package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileReportsSyntaxErrors(t *testing.T) {
	broken := &Template{
		Name:   "broken",
		Source: `{% for message in messages %}{{ message.role }}`,
	}
	err := broken.Compile()
	require.Error(t, err)
	var syntaxErr *TemplateSyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	assert.Equal(t, "broken", syntaxErr.Template)
}

func TestCompileErrorIsSticky(t *testing.T) {
	broken := &Template{Name: "broken", Source: `{{ unclosed`}
	first := broken.Compile()
	require.Error(t, first)
	assert.Equal(t, first, broken.Compile())
}

func TestSandboxBansStructuralTags(t *testing.T) {
	escape := &Template{
		Name:   "escape",
		Source: `{% include "/etc/passwd" %}`,
	}
	err := escape.Compile()
	require.Error(t, err)
	var syntaxErr *TemplateSyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}

func TestSpecialTokensRenderVerbatim(t *testing.T) {
	tmpl := &Template{
		Name:   "tokens",
		Source: `{{ bos_token }}{{ image_token|repeat:2 }}`,
	}
	out, err := tmpl.Execute(map[string]any{
		"bos_token":   "<s>",
		"image_token": "<|image_pad|>",
	})
	require.NoError(t, err)
	// angle brackets must not be entity-escaped
	assert.Equal(t, "<s><|image_pad|><|image_pad|>", out)
}

func TestExecuteSimpleTemplate(t *testing.T) {
	tmpl := &Template{
		Name:   "greeting",
		Source: `{% for m in messages %}{{ m.role }}: {{ m.content|trim }}{% endfor %}`,
	}
	out, err := tmpl.Execute(map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "  hello  "}},
	})
	require.NoError(t, err)
	assert.Equal(t, "user: hello", out)
}

func TestRepeatFilter(t *testing.T) {
	tmpl := &Template{Name: "repeat", Source: `{{ token|repeat:count }}`}

	out, err := tmpl.Execute(map[string]any{"token": "<image>", "count": 3})
	require.NoError(t, err)
	assert.Equal(t, "<image><image><image>", out)

	// negative counts clamp to zero rather than panicking
	out, err = tmpl.Execute(map[string]any{"token": "<image>", "count": -1})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestIsStringFilter(t *testing.T) {
	tmpl := &Template{
		Name:   "dispatch",
		Source: `{% if content|is_string %}string{% else %}list{% endif %}`,
	}

	out, err := tmpl.Execute(map[string]any{"content": "plain"})
	require.NoError(t, err)
	assert.Equal(t, "string", out)

	out, err = tmpl.Execute(map[string]any{"content": []map[string]any{{"type": "text"}}})
	require.NoError(t, err)
	assert.Equal(t, "list", out)
}

func TestLookupBuiltins(t *testing.T) {
	for _, name := range []string{"chatml", "gemma", "phi", "llava"} {
		tmpl, err := Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, tmpl.Name)
		require.NoError(t, tmpl.Compile(), name)
	}

	_, err := Lookup("nonexistent")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	Register(&Template{Name: "custom", Source: `{{ messages|length }} messages`})
	tmpl, err := Lookup("custom")
	require.NoError(t, err)

	out, err := tmpl.Execute(map[string]any{"messages": []map[string]any{{}, {}}})
	require.NoError(t, err)
	assert.Equal(t, "2 messages", out)
	assert.Contains(t, Names(), "custom")
}
