package tokenizers

import (
	"bytes"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/promptforge/promptforge/util/safeconv"
)

type GoTokenizer struct {
	Tokenizer *tokenizer.Tokenizer
}

func loadGoTokenizer(tokenizerBytes []byte, maxTokens int) (*Tokenizer, error) {
	tk, tkErr := pretrained.FromReader(bytes.NewReader(tokenizerBytes))
	if tkErr != nil {
		return nil, tkErr
	}
	return &Tokenizer{
		Runtime:          RuntimeGo,
		GoTokenizer:      &GoTokenizer{Tokenizer: tk},
		MaxAllowedTokens: maxTokens,
		Destroy: func() error {
			return nil
		},
	}, nil
}

func encodeGo(t *Tokenizer, input string) (*Encoding, error) {
	output, err := t.GoTokenizer.Tokenizer.EncodeSingle(input, true)
	if err != nil {
		return nil, err
	}

	if t.MaxAllowedTokens > 0 && len(output.Tokens) > t.MaxAllowedTokens {
		output.Tokens = output.Tokens[:t.MaxAllowedTokens]
		output.Ids = output.Ids[:min(len(output.Ids), t.MaxAllowedTokens)]
		output.TypeIds = output.TypeIds[:min(len(output.TypeIds), t.MaxAllowedTokens)]
		output.AttentionMask = output.AttentionMask[:min(len(output.AttentionMask), t.MaxAllowedTokens)]
		output.SpecialTokenMask = output.SpecialTokenMask[:min(len(output.SpecialTokenMask), t.MaxAllowedTokens)]
		output.Offsets = output.Offsets[:min(len(output.Offsets), t.MaxAllowedTokens)]
	}

	attentionMask := safeconv.IntSliceToUint32Slice(output.AttentionMask)
	return &Encoding{
		Raw:               input,
		Tokens:            output.Tokens,
		TokenIDs:          safeconv.IntSliceToUint32Slice(output.Ids),
		TypeIDs:           safeconv.IntSliceToUint32Slice(output.TypeIds),
		AttentionMask:     attentionMask,
		SpecialTokensMask: safeconv.IntSliceToUint32Slice(output.SpecialTokenMask),
		Offsets:           safeconv.IntOffsetsToUintPairs(output.Offsets),
		MaxAttentionIndex: maxAttentionIndex(attentionMask),
	}, nil
}

func decodeGo(t *Tokenizer, tokens []uint32, skipSpecialTokens bool) string {
	return t.GoTokenizer.Tokenizer.Decode(safeconv.Uint32SliceToIntSlice(tokens), skipSpecialTokens)
}
