package media

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocessRescales(t *testing.T) {
	img := solidImage(4, 4, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	channels, err := Preprocess(img, ImageConfig{})
	require.NoError(t, err)
	require.Len(t, channels, 3)
	assert.Len(t, channels[0], 4)
	assert.Len(t, channels[0][0], 4)
	assert.InDelta(t, 1.0, channels[0][0][0], 0.01, "red channel should rescale to 1")
	assert.InDelta(t, 0.0, channels[1][0][0], 0.01, "green channel should rescale to 0")
	assert.InDelta(t, 0.0, channels[2][0][0], 0.01, "blue channel should rescale to 0")
}

func TestPreprocessResizeAndCrop(t *testing.T) {
	img := solidImage(8, 16, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	channels, err := Preprocess(img, ImageConfig{Size: 4})
	require.NoError(t, err)
	assert.Len(t, channels[0], 4, "height after crop")
	assert.Len(t, channels[0][0], 4, "width after crop")
}

func TestPreprocessNormalizes(t *testing.T) {
	img := solidImage(2, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	cfg := ImageConfig{
		Mean: [3]float32{0.5, 0.5, 0.5},
		Std:  [3]float32{0.5, 0.5, 0.5},
	}
	channels, err := Preprocess(img, cfg)
	require.NoError(t, err)
	// (1.0 - 0.5) / 0.5
	assert.InDelta(t, 1.0, channels[0][0][0], 0.01)
}

func TestStackPixelValues(t *testing.T) {
	images := []image.Image{
		solidImage(2, 2, color.RGBA{R: 255, A: 255}),
		solidImage(2, 2, color.RGBA{G: 255, A: 255}),
	}
	pixelValues, sizes, err := StackPixelValues(images, ImageConfig{})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2, 2}, []int(pixelValues.Shape()))
	assert.Equal(t, [][2]int{{2, 2}, {2, 2}}, sizes)

	backing := pixelValues.Data().([]float32)
	require.Len(t, backing, 2*3*2*2)
	assert.InDelta(t, 1.0, backing[0], 0.01, "first image, red channel")
	assert.InDelta(t, 0.0, backing[4], 0.01, "first image, green channel")
	assert.InDelta(t, 1.0, backing[12+4], 0.01, "second image, green channel")
}

func TestStackPixelValuesSizeMismatch(t *testing.T) {
	images := []image.Image{
		solidImage(2, 2, color.RGBA{A: 255}),
		solidImage(4, 4, color.RGBA{A: 255}),
	}
	_, _, err := StackPixelValues(images, ImageConfig{})
	assert.Error(t, err)

	// fixing a target size makes mixed inputs stackable
	pixelValues, _, err := StackPixelValues(images, ImageConfig{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2, 2}, []int(pixelValues.Shape()))
}

func TestStackPixelValuesEmpty(t *testing.T) {
	_, _, err := StackPixelValues(nil, ImageConfig{})
	assert.Error(t, err)
}

func TestImageTokenCount(t *testing.T) {
	assert.Equal(t, 576, ImageTokenCount(336, 14))
	assert.Equal(t, 4, ImageTokenCount(4, 2))
	assert.Equal(t, 1, ImageTokenCount(0, 0))
	assert.Equal(t, 1, ImageTokenCount(336, 0))
}
