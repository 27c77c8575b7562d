// pkg/runner/gcs.go
package runner

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"imagefetch/pkg/models"
	"imagefetch/pkg/utils"
)

// GCSOptions configures the GCS RequestRunner.
type GCSOptions struct {
	CredentialsFile string
	Log             *utils.Logger
}

// GCS is a RequestRunner for gs:// URLs of the form gs://bucket/object.
type GCS struct {
	client *gcs.Client
	log    *utils.Logger
}

// NewGCS builds a GCS runner, authenticating from a service account
// credentials file.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCS, error) {
	log := opts.Log
	if log == nil {
		log = utils.NewLogger(utils.Config{})
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs runner: create client: %w", err)
	}
	return &GCS{client: client, log: log}, nil
}

// Run fetches the object addressed by req.URL ("gs://bucket/object").
// progress, if non-nil, fires as the object body is read.
func (r *GCS) Run(ctx context.Context, req *models.Request, creds []models.Credential, progress ProgressFunc) (*models.Response, error) {
	bucket, object, err := parseGSURL(req.URL)
	if err != nil {
		return nil, err
	}

	reader, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs runner: open reader: %w", err)
	}
	defer reader.Close()

	body, err := io.ReadAll(newProgressReader(reader, reader.Attrs.Size, progress))
	if err != nil {
		return nil, fmt.Errorf("gcs runner: read object: %w", err)
	}

	r.log.WithFunc().WithField("url", req.URL).Debug("gcs runner: fetched object")

	return &models.Response{
		Request:    req,
		StatusCode: 200,
		Body:       body,
		MIMEType:   reader.Attrs.ContentType,
	}, nil
}

// Close releases the underlying GCS client.
func (r *GCS) Close() error {
	return r.client.Close()
}

func parseGSURL(raw string) (bucket, object string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", &models.ErrInvalidURL{URL: raw, Err: err}
	}
	if u.Scheme != "gs" {
		return "", "", &models.ErrInvalidURL{URL: raw, Err: fmt.Errorf("not a gs:// url")}
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
