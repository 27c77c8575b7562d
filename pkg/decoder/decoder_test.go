package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagefetch/pkg/models"
)

func encodedPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeSuccess(t *testing.T) {
	d := New(Options{})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x.png"),
		StatusCode: 200,
		MIMEType:   "image/png",
		Body:       encodedPNG(t, 3, 4),
	}

	img, err := d.Decode(resp, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width())
	assert.Equal(t, 4, img.Height())
}

func TestDecodeRejectsUnacceptableContentType(t *testing.T) {
	d := New(Options{})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x.txt"),
		StatusCode: 200,
		MIMEType:   "text/plain",
		Body:       []byte("not an image"),
	}

	_, err := d.Decode(resp, 1)
	require.Error(t, err)
	var validationErr *models.ErrResponseValidationFailed
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, models.ReasonUnacceptableContentType, validationErr.Reason)
}

func TestDecodeRejectsUnacceptableStatusCode(t *testing.T) {
	d := New(Options{})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x.png"),
		StatusCode: 500,
		MIMEType:   "image/png",
		Body:       encodedPNG(t, 1, 1),
	}

	_, err := d.Decode(resp, 1)
	var validationErr *models.ErrResponseValidationFailed
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, models.ReasonUnacceptableStatusCode, validationErr.Reason)
}

func TestDecodeFailsOnCorruptBytes(t *testing.T) {
	d := New(Options{})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x.png"),
		StatusCode: 200,
		MIMEType:   "image/png",
		Body:       []byte{0x00, 0x01, 0x02},
	}

	_, err := d.Decode(resp, 1)
	require.Error(t, err)
	var serErr *models.ErrImageSerializationFailed
	require.ErrorAs(t, err, &serErr)
}

func TestSkipValidationForLocalFiles(t *testing.T) {
	d := New(Options{SkipValidationForLocalFiles: true})
	resp := &models.Response{
		Request: models.NewRequest("file:///tmp/x.png"),
		Body:    encodedPNG(t, 2, 2),
	}

	img, err := d.Decode(resp, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width())
}

func TestDecodeAcceptsWildcardSubtypeContentType(t *testing.T) {
	d := New(Options{AcceptableContentTypes: map[string]bool{"image/*": true}})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x.png"),
		StatusCode: 200,
		MIMEType:   "image/png",
		Body:       encodedPNG(t, 2, 2),
	}

	_, err := d.Decode(resp, 1)
	require.NoError(t, err)
}

func TestDecodeAcceptsFullWildcardContentType(t *testing.T) {
	d := New(Options{AcceptableContentTypes: map[string]bool{"*/*": true}})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x.png"),
		StatusCode: 200,
		MIMEType:   "application/octet-stream",
		Body:       encodedPNG(t, 2, 2),
	}

	_, err := d.Decode(resp, 1)
	require.NoError(t, err)
}

func TestDecodeRejectsContentTypeNotMatchingWildcardSubtype(t *testing.T) {
	d := New(Options{AcceptableContentTypes: map[string]bool{"image/*": true}})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x.txt"),
		StatusCode: 200,
		MIMEType:   "text/plain",
		Body:       []byte("not an image"),
	}

	_, err := d.Decode(resp, 1)
	var validationErr *models.ErrResponseValidationFailed
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, models.ReasonUnacceptableContentType, validationErr.Reason)
}

func TestValidatePassesZeroLengthBodyRegardlessOfContentType(t *testing.T) {
	d := New(Options{})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x"),
		StatusCode: 200,
		MIMEType:   "",
		Body:       []byte{},
	}

	require.NoError(t, d.Validate(resp))
}

func TestDecodeFailsAtDecodeForZeroLengthBodyWithBadContentType(t *testing.T) {
	d := New(Options{})
	resp := &models.Response{
		Request:    models.NewRequest("https://h/x"),
		StatusCode: 200,
		MIMEType:   "text/plain",
		Body:       []byte{},
	}

	_, err := d.Decode(resp, 1)
	require.Error(t, err)
	var serErr *models.ErrImageSerializationFailed
	require.ErrorAs(t, err, &serErr)
}

func TestInflateIsIdempotent(t *testing.T) {
	img := models.NewImage(image.NewRGBA(image.Rect(0, 0, 2, 2)), 1)
	assert.False(t, img.Inflated())

	Inflate(img)
	assert.True(t, img.Inflated())

	Inflate(img) // second call must not panic or double-count
	assert.True(t, img.Inflated())
}
