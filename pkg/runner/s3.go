// pkg/runner/s3.go
package runner

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"imagefetch/pkg/models"
	"imagefetch/pkg/utils"
)

// S3Options configures the S3 RequestRunner.
type S3Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Log             *utils.Logger
}

// S3 is a RequestRunner for s3:// URLs of the form s3://bucket/key,
// fetching objects directly from the bucket rather than over HTTP(S).
type S3 struct {
	client *s3.S3
	log    *utils.Logger
}

// NewS3 builds an S3 runner from static credentials.
func NewS3(opts S3Options) (*S3, error) {
	log := opts.Log
	if log == nil {
		log = utils.NewLogger(utils.Config{})
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(opts.Region),
		Credentials: credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 runner: create session: %w", err)
	}
	return &S3{client: s3.New(sess), log: log}, nil
}

// Run fetches the object addressed by req.URL ("s3://bucket/key"). progress,
// if non-nil, fires as the object body is read.
func (r *S3) Run(ctx context.Context, req *models.Request, creds []models.Credential, progress ProgressFunc) (*models.Response, error) {
	bucket, key, err := parseS3URL(req.URL)
	if err != nil {
		return nil, err
	}

	out, err := r.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 runner: get object: %w", err)
	}
	defer out.Body.Close()

	total := int64(-1)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}
	body, err := io.ReadAll(newProgressReader(out.Body, total, progress))
	if err != nil {
		return nil, fmt.Errorf("s3 runner: read body: %w", err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}

	r.log.WithFunc().WithField("url", req.URL).Debug("s3 runner: fetched object")

	return &models.Response{
		Request:    req,
		StatusCode: 200,
		Body:       body,
		MIMEType:   contentType,
	}, nil
}

func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", &models.ErrInvalidURL{URL: raw, Err: err}
	}
	if u.Scheme != "s3" {
		return "", "", &models.ErrInvalidURL{URL: raw, Err: fmt.Errorf("not an s3:// url")}
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
