// pkg/models/image.go
package models

import "image"

// Image is the opaque decoded raster the coordinator hands to callers.
// Once decoded it is treated as immutable: filters return new Images
// rather than mutating one in place.
type Image struct {
	raw     image.Image
	scale   float64
	inflated bool
}

// NewImage wraps a decoded raster at the given device scale (device pixels
// per logical pixel). scale <= 0 is normalized to 1.
func NewImage(raw image.Image, scale float64) *Image {
	if scale <= 0 {
		scale = 1
	}
	return &Image{raw: raw, scale: scale}
}

// Raw exposes the underlying decoded image for filters and encoders.
func (img *Image) Raw() image.Image {
	return img.raw
}

// WithRaw returns a copy of img with its raster replaced, preserving scale.
// Filters use this instead of mutating the receiver.
func (img *Image) WithRaw(raw image.Image) *Image {
	return &Image{raw: raw, scale: img.scale}
}

// Width returns the pixel width of the underlying raster.
func (img *Image) Width() int {
	return img.raw.Bounds().Dx()
}

// Height returns the pixel height of the underlying raster.
func (img *Image) Height() int {
	return img.raw.Bounds().Dy()
}

// Scale returns device pixels per logical pixel.
func (img *Image) Scale() float64 {
	return img.scale
}

// TotalBytes computes ceil(width*scale) * ceil(height*scale) * 4, the
// memory-accounting cost used by the cache's eviction budget.
func (img *Image) TotalBytes() int64 {
	w := ceilScaled(img.Width(), img.scale)
	h := ceilScaled(img.Height(), img.scale)
	return int64(w) * int64(h) * 4
}

// Inflated reports whether Inflate has already run on this image.
func (img *Image) Inflated() bool {
	return img.inflated
}

// MarkInflated records that eager pixel materialization has run. Idempotent.
func (img *Image) MarkInflated() {
	img.inflated = true
}

func ceilScaled(dim int, scale float64) int {
	scaled := float64(dim) * scale
	rounded := int(scaled)
	if float64(rounded) < scaled {
		rounded++
	}
	return rounded
}
