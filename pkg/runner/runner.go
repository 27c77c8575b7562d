// pkg/runner/runner.go
package runner

import (
	"context"
	"io"

	"imagefetch/pkg/models"
)

// ProgressFunc receives byte-progress notifications while a runner reads a
// response body. totalBytes is -1 when the backend didn't report a length
// up front. Runners must tolerate a nil ProgressFunc.
type ProgressFunc func(bytesReceived, totalBytes int64)

// RequestRunner performs the byte-producing side effect a Request
// describes and returns a Response. It is the coordinator's only
// dependency for actually reaching a remote resource; the coordinator
// itself never opens a socket. progress may be nil.
type RequestRunner interface {
	Run(ctx context.Context, req *models.Request, creds []models.Credential, progress ProgressFunc) (*models.Response, error)
}

// progressReader wraps an io.Reader, invoking progress after every Read
// that returns bytes. A nil progress is never wrapped; see newProgressReader.
type progressReader struct {
	io.Reader
	total    int64
	read     int64
	progress ProgressFunc
}

// newProgressReader wraps r so that progress fires on every chunk read from
// it. Returns r unchanged if progress is nil, so callers can wrap
// unconditionally without a branch at every call site.
func newProgressReader(r io.Reader, total int64, progress ProgressFunc) io.Reader {
	if progress == nil {
		return r
	}
	return &progressReader{Reader: r, total: total, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.Reader.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.progress(p.read, p.total)
	}
	return n, err
}
