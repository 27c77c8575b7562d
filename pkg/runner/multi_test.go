package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagefetch/pkg/models"
)

type stubRunner struct {
	resp *models.Response
	err  error
}

func (s *stubRunner) Run(ctx context.Context, req *models.Request, creds []models.Credential, progress ProgressFunc) (*models.Response, error) {
	return s.resp, s.err
}

func TestMultiDispatchesByScheme(t *testing.T) {
	httpStub := &stubRunner{resp: &models.Response{StatusCode: 200, MIMEType: "image/png"}}
	s3Stub := &stubRunner{resp: &models.Response{StatusCode: 200, MIMEType: "image/jpeg"}}

	m := NewMulti(map[string]RequestRunner{
		"http": httpStub,
		"s3":   s3Stub,
	})

	resp, err := m.Run(context.Background(), models.NewRequest("http://h/x.png"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.MIMEType)

	resp, err = m.Run(context.Background(), models.NewRequest("s3://bucket/key.jpg"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", resp.MIMEType)
}

func TestMultiRoutesRealAzureBlobHostToRegisteredHostRunner(t *testing.T) {
	httpStub := &stubRunner{resp: &models.Response{StatusCode: 200, MIMEType: "image/png"}}
	azStub := &stubRunner{resp: &models.Response{StatusCode: 200, MIMEType: "image/gif"}}

	m := NewMulti(map[string]RequestRunner{"http": httpStub, "https": httpStub})
	m.RegisterHostRunner(IsAzureBlobHost, azStub)

	resp, err := m.Run(context.Background(), models.NewRequest("https://myaccount.blob.core.windows.net/mycontainer/path/blob.gif"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", resp.MIMEType)
}

func TestMultiRejectsUnregisteredScheme(t *testing.T) {
	m := NewMulti(map[string]RequestRunner{"http": &stubRunner{}})
	_, err := m.Run(context.Background(), models.NewRequest("gs://bucket/object"), nil, nil)
	require.Error(t, err)
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://my-bucket/path/to/key.jpg")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/key.jpg", key)

	_, _, err = parseS3URL("https://not-s3/x")
	require.Error(t, err)
}

func TestParseGSURL(t *testing.T) {
	bucket, object, err := parseGSURL("gs://my-bucket/path/to/object.png")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/object.png", object)

	_, _, err = parseGSURL("s3://not-gs/x")
	require.Error(t, err)
}

func TestParseAzureBlobURL(t *testing.T) {
	container, blobPath, err := parseAzureBlobURL("azblob://my-container/path/to/blob.gif")
	require.NoError(t, err)
	assert.Equal(t, "my-container", container)
	assert.Equal(t, "path/to/blob.gif", blobPath)

	_, _, err = parseAzureBlobURL("http://not-azblob/x")
	require.Error(t, err)
}

func TestParseAzureBlobURLAcceptsRealBlobStorageURL(t *testing.T) {
	container, blobPath, err := parseAzureBlobURL("https://myaccount.blob.core.windows.net/mycontainer/path/to/blob.gif")
	require.NoError(t, err)
	assert.Equal(t, "mycontainer", container)
	assert.Equal(t, "path/to/blob.gif", blobPath)
}

func TestIsAzureBlobHost(t *testing.T) {
	assert.True(t, IsAzureBlobHost("myaccount.blob.core.windows.net"))
	assert.True(t, IsAzureBlobHost("MyAccount.Blob.Core.Windows.Net"))
	assert.False(t, IsAzureBlobHost("example.com"))
}
