// pkg/runner/azblob.go
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-pipeline-go/pipeline"
	"github.com/Azure/azure-storage-blob-go/azblob"

	"imagefetch/pkg/models"
	"imagefetch/pkg/utils"
)

// AzureBlobOptions configures the Azure Blob RequestRunner.
type AzureBlobOptions struct {
	StorageAccount string
	AccountKey     string
	Log            *utils.Logger
}

// AzureBlob is a RequestRunner for the configured storage account. It
// accepts both the shorthand azblob://container/blobPath scheme and real
// https://<account>.blob.core.windows.net/container/blobPath URLs.
type AzureBlob struct {
	pipeline       azurePipeline
	storageAccount string
	log            *utils.Logger
}

type azurePipeline = pipeline.Pipeline

// NewAzureBlob builds an Azure Blob runner from a shared key credential.
func NewAzureBlob(opts AzureBlobOptions) (*AzureBlob, error) {
	log := opts.Log
	if log == nil {
		log = utils.NewLogger(utils.Config{})
	}
	credential, err := azblob.NewSharedKeyCredential(opts.StorageAccount, opts.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azblob runner: create credential: %w", err)
	}
	return &AzureBlob{
		pipeline:       azblob.NewPipeline(credential, azblob.PipelineOptions{}),
		storageAccount: opts.StorageAccount,
		log:            log,
	}, nil
}

// Run fetches the blob addressed by req.URL, which may be either the
// shorthand "azblob://container/blobPath" or a real Azure Blob Storage URL
// of the form "https://<account>.blob.core.windows.net/container/blobPath".
// progress, if non-nil, fires as the blob body is read.
func (r *AzureBlob) Run(ctx context.Context, req *models.Request, creds []models.Credential, progress ProgressFunc) (*models.Response, error) {
	container, blobPath, err := parseAzureBlobURL(req.URL)
	if err != nil {
		return nil, err
	}

	containerURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", r.storageAccount, container))
	if err != nil {
		return nil, fmt.Errorf("azblob runner: parse container url: %w", err)
	}
	blobURL := azblob.NewContainerURL(*containerURL, r.pipeline).NewBlobURL(blobPath)

	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, fmt.Errorf("azblob runner: download: %w", err)
	}

	bodyStream := resp.Body(azblob.RetryReaderOptions{})
	defer bodyStream.Close()

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, newProgressReader(bodyStream, resp.ContentLength(), progress)); err != nil {
		return nil, fmt.Errorf("azblob runner: read body: %w", err)
	}

	r.log.WithFunc().WithField("url", req.URL).Debug("azblob runner: fetched blob")

	return &models.Response{
		Request:    req,
		StatusCode: 200,
		Body:       buf.Bytes(),
		MIMEType:   resp.ContentType(),
	}, nil
}

// blobHostSuffix identifies a real Azure Blob Storage endpoint URL, as
// opposed to the azblob:// shorthand scheme.
const blobHostSuffix = ".blob.core.windows.net"

// IsAzureBlobHost reports whether host is a real Azure Blob Storage
// endpoint (<account>.blob.core.windows.net), for use by Multi's
// host-suffix dispatch alongside its scheme-based dispatch.
func IsAzureBlobHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), blobHostSuffix)
}

func parseAzureBlobURL(raw string) (container, blobPath string, err error) {
	u, parseErr := url.Parse(raw)
	if parseErr != nil {
		return "", "", &models.ErrInvalidURL{URL: raw, Err: parseErr}
	}

	switch {
	case u.Scheme == "azblob":
		return u.Host, strings.TrimPrefix(u.Path, "/"), nil
	case (u.Scheme == "https" || u.Scheme == "http") && IsAzureBlobHost(u.Host):
		path := strings.TrimPrefix(u.Path, "/")
		container, blobPath, ok := strings.Cut(path, "/")
		if !ok {
			return "", "", &models.ErrInvalidURL{URL: raw, Err: fmt.Errorf("missing blob path")}
		}
		return container, blobPath, nil
	default:
		return "", "", &models.ErrInvalidURL{URL: raw, Err: fmt.Errorf("not an azblob:// or *.blob.core.windows.net url")}
	}
}
