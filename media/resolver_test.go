package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge/messages"
)

// encodePNG builds a solid-color image of the given width so tests can tell
// fetched images apart by size.
func encodePNG(t *testing.T, width int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResolverSupportsAllKinds(t *testing.T) {
	r := NewResolver()
	assert.True(t, r.Supports(messages.SourceInline))
	assert.True(t, r.Supports(messages.SourceURL))
	assert.True(t, r.Supports(messages.SourcePath))
	assert.False(t, r.Supports(messages.SourceUnknown))
}

func TestFetchImageInline(t *testing.T) {
	src := messages.Source{Base64: base64.StdEncoding.EncodeToString(encodePNG(t, 3))}
	img, err := NewResolver().FetchImage(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
}

func TestFetchEmptySource(t *testing.T) {
	_, err := NewResolver().Fetch(context.Background(), messages.Source{})
	var sourceErr *UnsupportedSourceError
	require.ErrorAs(t, err, &sourceErr)
	assert.Equal(t, messages.SourceUnknown, sourceErr.Kind)
}

func TestFetchImageBadBytes(t *testing.T) {
	src := messages.Source{Base64: base64.StdEncoding.EncodeToString([]byte("not an image"))}
	_, err := NewResolver().FetchImage(context.Background(), src)
	assert.Error(t, err)
}

func TestFetchImagesPreservesOrder(t *testing.T) {
	// widths 2..9 identify each image; fetches run concurrently but the
	// result slice must follow source order
	sources := make([]messages.Source, 8)
	for i := range sources {
		sources[i] = messages.Source{Base64: base64.StdEncoding.EncodeToString(encodePNG(t, i+2))}
	}
	images, err := NewResolver().FetchImages(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, images, 8)
	for i, img := range images {
		assert.Equal(t, i+2, img.Bounds().Dx(), "image %d out of order", i)
	}
}

func TestFetchImagesPropagatesErrors(t *testing.T) {
	sources := []messages.Source{
		{Base64: base64.StdEncoding.EncodeToString(encodePNG(t, 2))},
		{Base64: "%%% not base64 %%%"},
	}
	_, err := NewResolver().FetchImages(context.Background(), sources)
	assert.Error(t, err)
}
