//go:build !RUST && !ALL

package tokenizers

import (
	"errors"
)

type RustTokenizer struct{}

func loadRustTokenizer(_ []byte, _ int) (*Tokenizer, error) {
	return nil, errors.New("RUST tokenizer is not enabled, build with -tags RUST or ALL")
}

func encodeRust(_ *Tokenizer, _ string) (*Encoding, error) {
	return nil, errors.New("RUST tokenizer is not enabled, build with -tags RUST or ALL")
}

func decodeRust(_ *Tokenizer, _ []uint32, _ bool) string {
	return ""
}
