// pkg/runner/multi.go
package runner

import (
	"context"
	"fmt"
	"net/url"

	"imagefetch/pkg/models"
)

// Multi dispatches a request to a scheme-specific RequestRunner: http/https
// to the HTTP runner, s3 to S3, gs to GCS, azblob to AzureBlob. An https URL
// whose host is a real Azure Blob Storage endpoint
// (<account>.blob.core.windows.net) is routed to the registered host
// runner instead of the plain https scheme runner, so a caller supplying
// the documented real Azure URL format still gets an authenticated
// request. Unknown schemes fail fast rather than falling through to a
// default transport.
type Multi struct {
	byScheme map[string]RequestRunner
	byHost   []hostRunner
}

type hostRunner struct {
	matches func(host string) bool
	runner  RequestRunner
}

// NewMulti builds a Multi from a scheme-to-runner map, e.g.
// {"http": http1, "https": http1, "s3": s3runner}.
func NewMulti(byScheme map[string]RequestRunner) *Multi {
	return &Multi{byScheme: byScheme}
}

// RegisterHostRunner adds a host-suffix based dispatch rule, checked before
// scheme dispatch. Used to route real cloud-storage URLs (which use
// http/https schemes) to their dedicated runner instead of the plain HTTP
// runner.
func (m *Multi) RegisterHostRunner(matches func(host string) bool, runner RequestRunner) {
	m.byHost = append(m.byHost, hostRunner{matches: matches, runner: runner})
}

// Run resolves req.URL's host and scheme and delegates to the matching
// runner, preferring a host-suffix match over scheme dispatch.
func (m *Multi) Run(ctx context.Context, req *models.Request, creds []models.Credential, progress ProgressFunc) (*models.Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &models.ErrInvalidURL{URL: req.URL, Err: err}
	}

	for _, hr := range m.byHost {
		if hr.matches(u.Host) {
			return hr.runner.Run(ctx, req, creds, progress)
		}
	}

	runner, ok := m.byScheme[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("runner: no request runner registered for scheme %q", u.Scheme)
	}
	return runner.Run(ctx, req, creds, progress)
}
