package renderer

import (
	"context"

	"github.com/promptforge/promptforge/messages"
)

// Batch is the result of rendering several conversations together. When
// tokenizing, sequences are right-padded to the longest conversation in the
// batch and the attention mask zeroes the padding.
type Batch struct {
	Outputs           []*Output
	InputIDs          [][]uint32
	AttentionMask     [][]uint32
	MaxSequenceLength int
}

// RenderBatch renders each conversation with the same options and, when
// tokenizing, pads the encoded sequences into a rectangular batch.
func (r *Renderer) RenderBatch(ctx context.Context, conversations []messages.Conversation, opts Options) (*Batch, error) {
	batch := &Batch{Outputs: make([]*Output, len(conversations))}
	for i, conversation := range conversations {
		output, err := r.Render(ctx, conversation, opts)
		if err != nil {
			return nil, err
		}
		batch.Outputs[i] = output
		if len(output.InputIDs) > batch.MaxSequenceLength {
			batch.MaxSequenceLength = len(output.InputIDs)
		}
	}
	if !opts.Tokenize {
		return batch, nil
	}

	batch.InputIDs = make([][]uint32, len(batch.Outputs))
	batch.AttentionMask = make([][]uint32, len(batch.Outputs))
	for i, output := range batch.Outputs {
		ids := make([]uint32, batch.MaxSequenceLength)
		mask := make([]uint32, batch.MaxSequenceLength)
		copy(ids, output.InputIDs)
		if len(output.AttentionMask) > 0 {
			// keep positions the tokenizer itself masked out
			copy(mask, output.AttentionMask)
		} else {
			for j := range output.InputIDs {
				mask[j] = 1
			}
		}
		batch.InputIDs[i] = ids
		batch.AttentionMask[i] = mask
	}
	return batch, nil
}
