//go:build RUST || ALL

package tokenizers

import (
	"github.com/daulet/tokenizers"
)

type RustTokenizer struct {
	Tokenizer *tokenizers.Tokenizer
	Options   []tokenizers.EncodeOption
}

func loadRustTokenizer(tokenizerBytes []byte, maxTokens int) (*Tokenizer, error) {
	tk, tkErr := tokenizers.FromBytes(tokenizerBytes)
	if tkErr != nil {
		return nil, tkErr
	}

	options := []tokenizers.EncodeOption{
		tokenizers.WithReturnTokens(),
		tokenizers.WithReturnTypeIDs(),
		tokenizers.WithReturnAttentionMask(),
		tokenizers.WithReturnSpecialTokensMask(),
		tokenizers.WithReturnOffsets(),
	}
	return &Tokenizer{
		Runtime:          RuntimeRust,
		RustTokenizer:    &RustTokenizer{Tokenizer: tk, Options: options},
		MaxAllowedTokens: maxTokens,
		Destroy: func() error {
			return tk.Close()
		},
	}, nil
}

func encodeRust(t *Tokenizer, input string) (*Encoding, error) {
	rustTK := t.RustTokenizer
	output := rustTK.Tokenizer.EncodeWithOptions(input,
		true,
		rustTK.Options...,
	)

	if t.MaxAllowedTokens > 0 && len(output.Tokens) > t.MaxAllowedTokens {
		output.Tokens = output.Tokens[:t.MaxAllowedTokens]
		output.IDs = output.IDs[:min(len(output.IDs), t.MaxAllowedTokens)]
		output.TypeIDs = output.TypeIDs[:min(len(output.TypeIDs), t.MaxAllowedTokens)]
		output.AttentionMask = output.AttentionMask[:min(len(output.AttentionMask), t.MaxAllowedTokens)]
		output.SpecialTokensMask = output.SpecialTokensMask[:min(len(output.SpecialTokensMask), t.MaxAllowedTokens)]
		output.Offsets = output.Offsets[:min(len(output.Offsets), t.MaxAllowedTokens)]
	}

	return &Encoding{
		Raw:               input,
		Tokens:            output.Tokens,
		TokenIDs:          output.IDs,
		TypeIDs:           output.TypeIDs,
		AttentionMask:     output.AttentionMask,
		SpecialTokensMask: output.SpecialTokensMask,
		Offsets:           convertRustOffsets(output.Offsets),
		MaxAttentionIndex: maxAttentionIndex(output.AttentionMask),
	}, nil
}

func decodeRust(t *Tokenizer, tokens []uint32, skipSpecialTokens bool) string {
	return t.RustTokenizer.Tokenizer.Decode(tokens, skipSpecialTokens)
}

func convertRustOffsets(input []tokenizers.Offset) [][2]uint {
	output := make([][2]uint, len(input))
	for i, x := range input {
		output[i] = [2]uint{x[0], x[1]}
	}
	return output
}
