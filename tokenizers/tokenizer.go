// Package tokenizers wraps the HuggingFace tokenizer implementations behind
// a single facade with a runtime switch: RUST binds the native tokenizers
// library, GO uses a pure-Go implementation.
package tokenizers

import (
	"fmt"

	"github.com/promptforge/promptforge/util/fileutil"
)

const (
	RuntimeRust = "RUST"
	RuntimeGo   = "GO"
)

// Encoding holds the result of running the tokenizer on an input.
type Encoding struct {
	Raw               string
	Tokens            []string
	TokenIDs          []uint32
	TypeIDs           []uint32
	AttentionMask     []uint32
	SpecialTokensMask []uint32
	Offsets           [][2]uint
	MaxAttentionIndex int
}

type Tokenizer struct {
	Runtime          string
	RustTokenizer    *RustTokenizer
	GoTokenizer      *GoTokenizer
	MaxAllowedTokens int
	Destroy          func() error
}

// Load reads tokenizer.json from the given model directory (any abstract
// file system scheme) and initializes the requested runtime. maxTokens of
// zero disables truncation.
func Load(modelPath string, runtime string, maxTokens int) (*Tokenizer, error) {
	tokenizerBytes, err := fileutil.ReadFileBytes(fileutil.PathJoinSafe(modelPath, "tokenizer.json"))
	if err != nil {
		return nil, err
	}
	switch runtime {
	case RuntimeRust:
		return loadRustTokenizer(tokenizerBytes, maxTokens)
	case RuntimeGo, "":
		return loadGoTokenizer(tokenizerBytes, maxTokens)
	default:
		return nil, fmt.Errorf("tokenizer runtime %s not recognized", runtime)
	}
}

// Encode tokenizes a single input, truncating to MaxAllowedTokens when set.
func (t *Tokenizer) Encode(input string) (*Encoding, error) {
	switch t.Runtime {
	case RuntimeRust:
		return encodeRust(t, input)
	case RuntimeGo:
		return encodeGo(t, input)
	}
	return nil, fmt.Errorf("tokenizer runtime %s not recognized", t.Runtime)
}

// EncodeBatch tokenizes a batch of inputs and reports the longest attended
// sequence length across the batch.
func (t *Tokenizer) EncodeBatch(inputs []string) ([]Encoding, int, error) {
	encodings := make([]Encoding, len(inputs))
	maxSequence := 0
	for i, input := range inputs {
		encoding, err := t.Encode(input)
		if err != nil {
			return nil, 0, err
		}
		encodings[i] = *encoding
		if encoding.MaxAttentionIndex > maxSequence {
			maxSequence = encoding.MaxAttentionIndex
		}
	}
	return encodings, maxSequence + 1, nil
}

// Decode converts token ids back to a string.
func (t *Tokenizer) Decode(tokens []uint32, skipSpecialTokens bool) (string, error) {
	switch t.Runtime {
	case RuntimeRust:
		return decodeRust(t, tokens, skipSpecialTokens), nil
	case RuntimeGo:
		return decodeGo(t, tokens, skipSpecialTokens), nil
	}
	return "", fmt.Errorf("tokenizer runtime %s not recognized", t.Runtime)
}

func (t *Tokenizer) Close() error {
	if t.Destroy != nil {
		return t.Destroy()
	}
	return nil
}

func maxAttentionIndex(attentionMask []uint32) int {
	index := 0
	for i, v := range attentionMask {
		if v != 0 {
			index = i
		}
	}
	return index
}
