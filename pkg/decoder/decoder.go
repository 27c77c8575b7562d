// pkg/decoder/decoder.go
package decoder

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	"imagefetch/pkg/models"
)

// AcceptableContentTypes is the default set of MIME types the decoder will
// attempt to decode. A response whose Content-Type isn't in this set is
// rejected before decode is attempted.
var AcceptableContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
}

// Decoder turns a raw HTTP-ish response into a models.Image. Decoding is
// serialized behind a single mutex: the underlying image/* decoders are not
// guaranteed safe for concurrent use on shared internal buffers, and decode
// is CPU-bound rather than I/O-bound so serializing it doesn't cost
// throughput the way it would for network calls.
type Decoder struct {
	mu                  sync.Mutex
	acceptableTypes     map[string]bool
	skipValidationLocal bool
}

// Options configures a Decoder.
type Options struct {
	// AcceptableContentTypes overrides the default MIME allow-list. Nil
	// keeps the default.
	AcceptableContentTypes map[string]bool
	// SkipValidationForLocalFiles disables content-type/status validation
	// for file:// URLs, matching local test-fixture conventions where a
	// data file may have no HTTP semantics at all.
	SkipValidationForLocalFiles bool
}

// New builds a Decoder.
func New(opts Options) *Decoder {
	types := opts.AcceptableContentTypes
	if types == nil {
		types = AcceptableContentTypes
	}
	return &Decoder{acceptableTypes: types, skipValidationLocal: opts.SkipValidationForLocalFiles}
}

// Validate checks a Response's status code and content type before decode
// is attempted, returning models.ErrResponseValidationFailed on failure.
func (d *Decoder) Validate(resp *models.Response) error {
	if d.skipValidationLocal && strings.HasPrefix(resp.Request.URL, "file://") {
		return nil
	}

	if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return &models.ErrResponseValidationFailed{
			Reason: models.ReasonUnacceptableStatusCode,
			Detail: resp.Request.URL,
		}
	}

	if resp.Body == nil {
		return &models.ErrResponseValidationFailed{Reason: models.ReasonDataFileNil}
	}

	// Zero-length data passes content-type validation regardless of what
	// (if anything) the response declared; it fails later at decode with
	// imageSerializationFailed instead.
	if len(resp.Body) == 0 {
		return nil
	}

	contentType := resp.MIMEType
	if contentType == "" {
		return &models.ErrResponseValidationFailed{Reason: models.ReasonMissingContentType}
	}
	if !acceptableContentType(d.acceptableTypes, contentType) {
		return &models.ErrResponseValidationFailed{
			Reason: models.ReasonUnacceptableContentType,
			Detail: contentType,
		}
	}
	return nil
}

// acceptableContentType reports whether contentType matches some entry in
// acceptable, honoring the wildcard forms "*/*" and "type/*"/"*/subtype":
// each of type and subtype is either an exact match or "*".
func acceptableContentType(acceptable map[string]bool, contentType string) bool {
	normalized := normalizeContentType(contentType)
	if acceptable["*/*"] || acceptable[normalized] {
		return true
	}

	typ, sub, ok := splitMIMEType(normalized)
	if !ok {
		return false
	}
	for entry := range acceptable {
		entryType, entrySub, ok := splitMIMEType(entry)
		if !ok {
			continue
		}
		if (entryType == "*" || entryType == typ) && (entrySub == "*" || entrySub == sub) {
			return true
		}
	}
	return false
}

func splitMIMEType(mime string) (typ, sub string, ok bool) {
	idx := strings.IndexByte(mime, '/')
	if idx < 0 {
		return "", "", false
	}
	return mime[:idx], mime[idx+1:], true
}

// Decode validates then decodes resp.Body into a models.Image at the given
// device scale.
func (d *Decoder) Decode(resp *models.Response, scale float64) (*models.Image, error) {
	if err := d.Validate(resp); err != nil {
		return nil, err
	}

	d.mu.Lock()
	raw, _, err := image.Decode(bytes.NewReader(resp.Body))
	d.mu.Unlock()
	if err != nil {
		return nil, &models.ErrImageSerializationFailed{Reason: err.Error()}
	}

	return models.NewImage(raw, scale), nil
}

// Inflate walks every pixel of img once, forcing lazy decoders (e.g. some
// image/jpeg paths) to fully materialize the raster up front rather than on
// first paint. Idempotent: a second call on an already-inflated Image is a
// no-op.
func Inflate(img *models.Image) {
	if img.Inflated() {
		return
	}
	bounds := img.Raw().Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.Raw().At(x, y)
		}
	}
	img.MarkInflated()
}

func normalizeContentType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
