// pkg/runner/http.go
package runner

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"imagefetch/pkg/models"
	"imagefetch/pkg/utils"
)

// HTTPOptions configures an HTTP RequestRunner.
type HTTPOptions struct {
	MaxIdleConnsPerHost int
	Timeout             time.Duration
	RetryAttempts       int
	RetryBackoff        time.Duration
	RetryMaxBackoff     time.Duration
	Log                 *utils.Logger
}

// DefaultHTTPOptions mirrors the defaults of a general-purpose fetch client:
// a handful of retries with capped exponential backoff.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		MaxIdleConnsPerHost: 100,
		Timeout:             30 * time.Second,
		RetryAttempts:       3,
		RetryBackoff:        500 * time.Millisecond,
		RetryMaxBackoff:     10 * time.Second,
	}
}

// HTTP is a RequestRunner for http(s):// URLs with retry and exponential
// backoff on 5xx and transport errors.
type HTTP struct {
	client *http.Client
	opts   HTTPOptions
	log    *utils.Logger
}

// NewHTTP builds an HTTP runner.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Timeout == 0 {
		opts = DefaultHTTPOptions()
	}
	log := opts.Log
	if log == nil {
		log = utils.NewLogger(utils.Config{})
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTP{
		client: &http.Client{Transport: transport, Timeout: opts.Timeout},
		opts:   opts,
		log:    log,
	}
}

// Run fetches req.URL, retrying on 5xx responses and transport errors.
// progress, if non-nil, fires as the response body is read.
func (h *HTTP) Run(ctx context.Context, req *models.Request, creds []models.Credential, progress ProgressFunc) (*models.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= h.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := h.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("http runner: build request: %w", err)
		}
		for k, vals := range req.Header {
			for _, v := range vals {
				httpReq.Header.Add(k, v)
			}
		}
		for _, cred := range creds {
			httpReq.Header.Set(cred.Header, cred.Value)
		}

		resp, err := h.client.Do(httpReq)
		if err != nil {
			lastErr = err
			h.log.WithFunc().WithError(err).WithField("url", req.URL).Debug("http runner: attempt failed")
			continue
		}

		body, err := io.ReadAll(newProgressReader(resp.Body, resp.ContentLength, progress))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("http runner: server error %d", resp.StatusCode)
			continue
		}

		return &models.Response{
			Request:    req,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
			MIMEType:   resp.Header.Get("Content-Type"),
		}, nil
	}

	return nil, fmt.Errorf("http runner: failed after %d attempts: %w", h.opts.RetryAttempts+1, lastErr)
}

func (h *HTTP) backoff(ctx context.Context, attempt int) error {
	wait := h.opts.RetryBackoff * time.Duration(uint(1)<<uint(attempt-1))
	if wait > h.opts.RetryMaxBackoff {
		wait = h.opts.RetryMaxBackoff
	}
	jitter := time.Duration(float64(wait) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}
