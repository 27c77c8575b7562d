// pkg/filter/filter.go
package filter

import (
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/nfnt/resize"

	"imagefetch/pkg/models"
)

// Filter transforms one decoded image into another. Identifier must be
// deterministic and unique per parameterization: it becomes part of the
// cache key that distinguishes filtered variants of the same source URL.
type Filter interface {
	Apply(img *models.Image) (*models.Image, error)
	Identifier() string
}

// Composite folds a sequence of filters left to right and joins their
// identifiers with "_", so e.g. Resize then Grayscale produces
// "resize_200x100_grayscale".
type Composite struct {
	children []Filter
}

// Compose builds a Composite from the given filters, applied in order.
func Compose(filters ...Filter) *Composite {
	return &Composite{children: filters}
}

// Apply runs each child filter in order, short-circuiting on the first error.
func (c *Composite) Apply(img *models.Image) (*models.Image, error) {
	current := img
	for _, f := range c.children {
		var err error
		current, err = f.Apply(current)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// Identifier joins each child's identifier with "_". An empty Composite
// has an empty identifier, meaning "no filter" for cache-key purposes.
func (c *Composite) Identifier() string {
	ids := make([]string, 0, len(c.children))
	for _, f := range c.children {
		ids = append(ids, f.Identifier())
	}
	return strings.Join(ids, "_")
}

// resizeFilter scales an image to the given bounds using Lanczos3
// resampling. A zero dimension preserves the source's aspect ratio for
// that axis, matching github.com/nfnt/resize's own convention.
type resizeFilter struct {
	width, height uint
}

// Resize returns a Filter that resizes to width x height pixels.
func Resize(width, height uint) Filter {
	return &resizeFilter{width: width, height: height}
}

func (f *resizeFilter) Apply(img *models.Image) (*models.Image, error) {
	resized := resize.Resize(f.width, f.height, img.Raw(), resize.Lanczos3)
	return img.WithRaw(resized), nil
}

func (f *resizeFilter) Identifier() string {
	return "resize_" + strconv.FormatUint(uint64(f.width), 10) + "x" + strconv.FormatUint(uint64(f.height), 10)
}

// grayscaleFilter converts every pixel to its luminance-weighted gray value.
type grayscaleFilter struct{}

// Grayscale returns a Filter that desaturates the image.
func Grayscale() Filter {
	return &grayscaleFilter{}
}

func (f *grayscaleFilter) Apply(img *models.Image) (*models.Image, error) {
	src := img.Raw()
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return img.WithRaw(dst), nil
}

func (f *grayscaleFilter) Identifier() string {
	return "grayscale"
}
