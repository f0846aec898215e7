package media

import (
	"errors"
	"image"

	"gorgonia.org/tensor"

	"github.com/promptforge/promptforge/util/imageutil"
)

// ImageConfig controls how fetched images are preprocessed into pixel
// tensors. Zero values mean: no resize/crop, rescale to [0,1], no
// normalization.
type ImageConfig struct {
	// Size is the target square size. When positive, images are resized so
	// the shortest edge matches Size and then center cropped to Size x Size.
	Size int
	// Mean and Std normalize pixel channels after rescaling. Both must be
	// set together; zero values skip normalization.
	Mean [3]float32
	Std  [3]float32
}

// ImagenetConfig preprocesses to 336x336 with ImageNet channel statistics.
func ImagenetConfig(size int) ImageConfig {
	return ImageConfig{
		Size: size,
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
}

func (c ImageConfig) normalizes() bool {
	return c.Std != [3]float32{}
}

// Preprocess applies the configured resize/crop and per-pixel transforms,
// returning the image in CHW channel order.
func Preprocess(img image.Image, cfg ImageConfig) ([][][]float32, error) {
	if cfg.Size > 0 {
		steps := []imageutil.PreprocessStep{
			imageutil.ResizeStep(cfg.Size),
			imageutil.CenterCropStep(cfg.Size, cfg.Size),
		}
		for _, step := range steps {
			var err error
			img, err = step.Apply(img)
			if err != nil {
				return nil, err
			}
		}
	}

	rescale := imageutil.RescaleStep()
	var normalize imageutil.NormalizationStep
	if cfg.normalizes() {
		normalize = imageutil.PixelNormalizationStep(cfg.Mean, cfg.Std)
	}

	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	channels := make([][][]float32, 3)
	for c := range channels {
		channels[c] = make([][]float32, h)
		for y := range channels[c] {
			channels[c][y] = make([]float32, w)
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r16, g16, b16, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r, g, b := float32(r16>>8), float32(g16>>8), float32(b16>>8)
			r, g, b = rescale.Apply(r, g, b)
			if normalize != nil {
				r, g, b = normalize.Apply(r, g, b)
			}
			channels[0][y][x] = r
			channels[1][y][x] = g
			channels[2][y][x] = b
		}
	}
	return channels, nil
}

// StackPixelValues preprocesses a batch of images and stacks them into a
// single NCHW tensor, returning the original (height, width) of each image
// alongside. All images must preprocess to the same spatial size, which the
// Size config guarantees.
func StackPixelValues(images []image.Image, cfg ImageConfig) (*tensor.Dense, [][2]int, error) {
	if len(images) == 0 {
		return nil, nil, errors.New("no images to stack")
	}
	sizes := make([][2]int, len(images))
	var backing []float32
	var h, w int
	for i, img := range images {
		bounds := img.Bounds()
		sizes[i] = [2]int{bounds.Dy(), bounds.Dx()}
		channels, err := Preprocess(img, cfg)
		if err != nil {
			return nil, nil, err
		}
		ph, pw := len(channels[0]), len(channels[0][0])
		if i == 0 {
			h, w = ph, pw
			backing = make([]float32, 0, len(images)*3*h*w)
		} else if ph != h || pw != w {
			return nil, nil, errors.New("images preprocess to different sizes, set ImageConfig.Size to stack them")
		}
		for c := range channels {
			for y := range channels[c] {
				backing = append(backing, channels[c][y]...)
			}
		}
	}
	pixelValues := tensor.New(
		tensor.WithShape(len(images), 3, h, w),
		tensor.WithBacking(backing),
	)
	return pixelValues, sizes, nil
}

// ImageTokenCount computes how many placeholder tokens one image expands to
// for patch-based vision encoders: the number of patchSize x patchSize
// patches in a Size x Size input. Returns 1 when the template's model does
// not declare patch expansion.
func ImageTokenCount(imageSize, patchSize int) int {
	if imageSize <= 0 || patchSize <= 0 {
		return 1
	}
	npatches := imageSize / patchSize
	return npatches * npatches
}
