// pkg/coordinator/types.go
package coordinator

import (
	"context"

	"imagefetch/pkg/filter"
	"imagefetch/pkg/models"
)

// CompletionFunc receives the outcome of one subscription: exactly one of
// image or err is non-nil.
type CompletionFunc func(image *models.Image, err error)

// ProgressFunc receives byte-progress notifications for the underlying
// network attempt. Only the first subscriber to a coalesced request has
// its ProgressFunc attached — see the coalescing note in DownloadWithProgress.
type ProgressFunc func(bytesReceived, totalBytes int64)

// subscriber is one caller's stake in a shared network attempt.
type subscriber struct {
	receiptID  string
	filter     filter.Filter
	completion CompletionFunc
}

// handlerEntry is the coalescing record for one URL fingerprint: the
// pending or in-flight attempt plus everyone waiting on its result.
type handlerEntry struct {
	urlID       string
	handlerID   string
	request     *models.Request
	subscribers []subscriber
	progress    ProgressFunc

	started   bool
	cancelled bool
	cancel    context.CancelFunc
}
