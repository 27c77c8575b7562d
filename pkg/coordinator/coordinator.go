// pkg/coordinator/coordinator.go
package coordinator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"imagefetch/pkg/decoder"
	"imagefetch/pkg/filter"
	"imagefetch/pkg/imagecache"
	"imagefetch/pkg/models"
	"imagefetch/pkg/notify"
	"imagefetch/pkg/runner"
	"imagefetch/pkg/utils"
)

// Config configures a Coordinator.
type Config struct {
	MaxConcurrent  int
	Prioritization Prioritization
	Cache          *imagecache.Cache // optional; nil disables cache-hit shortcuts and inserts
	Runner         runner.RequestRunner
	Decoder        *decoder.Decoder
	Credential     *models.Credential // optional; attached to every outgoing request
	Executor       Executor           // defaults to AsyncExecutor
	Bus            notify.Bus         // optional; defaults to a no-op bus
	Log            *utils.Logger
}

// Coordinator is the Image Download Coordinator: request deduplication,
// concurrency limiting, admission queueing, receipts, and cancellation.
// All mutation of responseHandlers, the admission queue, and activeCount
// happens under mu; network I/O and decode never run while mu is held.
type Coordinator struct {
	mu sync.Mutex

	maxConcurrent  int
	prioritization Prioritization
	cache          *imagecache.Cache
	runner         runner.RequestRunner
	decoder        *decoder.Decoder
	credential     *models.Credential
	executor       Executor
	bus            notify.Bus
	log            *utils.Logger

	responseHandlers map[string]*handlerEntry
	queue            deque
	activeCount      int
}

// New builds a Coordinator. MaxConcurrent < 1 is normalized to 1.
func New(cfg Config) *Coordinator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	executor := cfg.Executor
	if executor == nil {
		executor = AsyncExecutor{}
	}
	bus := cfg.Bus
	if bus == nil {
		bus = noopBus{}
	}
	log := cfg.Log
	if log == nil {
		log = utils.NewLogger(utils.Config{})
	}
	return &Coordinator{
		maxConcurrent:    cfg.MaxConcurrent,
		prioritization:   cfg.Prioritization,
		cache:            cfg.Cache,
		runner:           cfg.Runner,
		decoder:          cfg.Decoder,
		credential:       cfg.Credential,
		executor:         executor,
		bus:              bus,
		log:              log,
		responseHandlers: make(map[string]*handlerEntry),
	}
}

type noopBus struct{}

func (noopBus) Publish(notify.Event) {}

// Download requests req, optionally through filter f, and delivers the
// outcome to completion. receiptID, if empty, is generated. Returns nil
// when the result was already available in cache and completion has
// already been scheduled — there is nothing left to cancel.
func (c *Coordinator) Download(req *models.Request, receiptID string, f filter.Filter, completion CompletionFunc) *models.Receipt {
	return c.DownloadWithProgress(req, receiptID, f, nil, completion)
}

// DownloadWithProgress is Download plus a progress callback. Per §4.3,
// progress is only ever attached for the subscriber that causes a new
// network attempt to be created; a subscriber that coalesces onto an
// existing attempt has its progress callback silently dropped.
func (c *Coordinator) DownloadWithProgress(req *models.Request, receiptID string, f filter.Filter, progress ProgressFunc, completion CompletionFunc) *models.Receipt {
	if receiptID == "" {
		receiptID = uuid.NewString()
	}
	urlID := req.Fingerprint()

	c.mu.Lock()

	if entry, ok := c.responseHandlers[urlID]; ok {
		entry.subscribers = append(entry.subscribers, subscriber{receiptID: receiptID, filter: f, completion: completion})
		c.mu.Unlock()
		return &models.Receipt{Request: req, ReceiptID: receiptID}
	}

	if c.cache != nil {
		filterID := ""
		if f != nil {
			filterID = f.Identifier()
		}
		if img, hit := c.cache.Get(models.CacheKey(urlID, filterID)); hit {
			c.mu.Unlock()
			c.executor.Schedule(func() { completion(img, nil) })
			return nil
		}
	}

	entry := &handlerEntry{
		urlID:       urlID,
		handlerID:   uuid.NewString(),
		request:     req,
		subscribers: []subscriber{{receiptID: receiptID, filter: f, completion: completion}},
		progress:    progress,
	}
	c.responseHandlers[urlID] = entry

	if c.activeCount < c.maxConcurrent {
		c.start(entry)
	} else {
		c.queue.enqueue(entry, c.prioritization)
		c.bus.Publish(notify.Event{Type: notify.EventDownloadStarted, URL: urlID, Detail: "queued"})
	}

	c.mu.Unlock()
	return &models.Receipt{Request: req, ReceiptID: receiptID}
}

// DownloadBatch applies Download to each request, returning the non-nil
// receipts in input order.
func (c *Coordinator) DownloadBatch(reqs []*models.Request, f filter.Filter, completion func(idx int, image *models.Image, err error)) []*models.Receipt {
	receipts := make([]*models.Receipt, 0, len(reqs))
	for i, req := range reqs {
		idx := i
		r := c.Download(req, "", f, func(image *models.Image, err error) { completion(idx, image, err) })
		if r != nil {
			receipts = append(receipts, r)
		}
	}
	return receipts
}

// Cancel delivers models.ErrRequestCancelled to receipt's subscription
// only. Other subscribers to the same URL are unaffected. If this was the
// last subscriber and the attempt had not yet started, the attempt is
// removed from the admission queue without ever reaching the runner; an
// already-started attempt has its context cancelled so the runner can stop
// the in-flight network call rather than running it to completion for
// nothing (the handler entry is gone by the time it would report back).
func (c *Coordinator) Cancel(receipt *models.Receipt) {
	if receipt == nil {
		return
	}
	urlID := receipt.Request.Fingerprint()

	c.mu.Lock()
	entry, ok := c.responseHandlers[urlID]
	if !ok {
		c.mu.Unlock()
		return
	}

	idx := -1
	for i, s := range entry.subscribers {
		if s.receiptID == receipt.ReceiptID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	sub := entry.subscribers[idx]
	entry.subscribers = append(entry.subscribers[:idx], entry.subscribers[idx+1:]...)

	if len(entry.subscribers) == 0 {
		delete(c.responseHandlers, urlID)
		if !entry.started {
			entry.cancelled = true
			c.queue.remove(entry)
		} else {
			entry.cancel()
		}
	}
	c.mu.Unlock()

	c.bus.Publish(notify.Event{Type: notify.EventDownloadCancelled, URL: urlID, ReceiptID: receipt.ReceiptID})
	c.executor.Schedule(func() { sub.completion(nil, &models.ErrRequestCancelled{ReceiptID: receipt.ReceiptID}) })
}

// start launches entry's network attempt and marks it active. Caller must
// hold mu.
func (c *Coordinator) start(entry *handlerEntry) {
	entry.started = true
	c.activeCount++

	ctx, cancel := context.WithCancel(context.Background())
	entry.cancel = cancel

	creds := c.credentials()
	progress := runner.ProgressFunc(entry.progress)
	go func() {
		resp, err := c.runner.Run(ctx, entry.request, creds, progress)
		c.dispatch(entry.urlID, entry.handlerID, resp, err)
	}()
}

func (c *Coordinator) credentials() []models.Credential {
	if c.credential == nil {
		return nil
	}
	return []models.Credential{*c.credential}
}

// startNextQueuedLocked admits the next eligible queued attempt if
// capacity allows. Caller must hold mu.
func (c *Coordinator) startNextQueuedLocked() {
	for c.activeCount < c.maxConcurrent {
		next := c.queue.dequeue()
		if next == nil {
			return
		}
		c.start(next)
	}
}

// dispatch is the Response Dispatch Protocol (§4.4): decode, filter, cache,
// and fan out to every subscriber of urlID's attempt. Runs outside mu
// except for the bookkeeping section at the top.
func (c *Coordinator) dispatch(urlID, handlerID string, resp *models.Response, runErr error) {
	c.mu.Lock()
	entry, ok := c.responseHandlers[urlID]
	if !ok || entry.handlerID != handlerID {
		// Stale: every subscriber already got a cancellation, or a newer
		// attempt superseded this one.
		c.activeCount--
		c.startNextQueuedLocked()
		c.mu.Unlock()
		return
	}
	delete(c.responseHandlers, urlID)
	c.activeCount--
	c.startNextQueuedLocked()
	subscribers := entry.subscribers
	c.mu.Unlock()

	if runErr != nil {
		c.bus.Publish(notify.Event{Type: notify.EventDownloadFailed, URL: urlID, Detail: runErr.Error()})
		for _, sub := range subscribers {
			s := sub
			c.executor.Schedule(func() { s.completion(nil, runErr) })
		}
		return
	}

	img, decodeErr := c.decoder.Decode(resp, 1)
	if decodeErr != nil {
		c.bus.Publish(notify.Event{Type: notify.EventDownloadFailed, URL: urlID, Detail: decodeErr.Error()})
		for _, sub := range subscribers {
			s := sub
			c.executor.Schedule(func() { s.completion(nil, decodeErr) })
		}
		return
	}

	filtered := make(map[string]*models.Image, 1)
	for _, sub := range subscribers {
		s := sub
		image := img
		filterID := ""

		if s.filter != nil {
			filterID = s.filter.Identifier()
			if cached, ok := filtered[filterID]; ok {
				image = cached
			} else {
				var ferr error
				image, ferr = s.filter.Apply(img)
				if ferr != nil {
					c.executor.Schedule(func() { s.completion(nil, ferr) })
					continue
				}
				filtered[filterID] = image
			}
		}

		if c.cache != nil {
			c.cache.Add(image, models.CacheKey(urlID, filterID), filterID)
		}
		c.executor.Schedule(func() { s.completion(image, nil) })
	}

	c.bus.Publish(notify.Event{Type: notify.EventDownloadCompleted, URL: urlID})
}

// ActiveCount returns the current number of in-flight attempts, for
// observability endpoints.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCount
}

// QueueLength returns the current number of queued (not yet started)
// attempts.
func (c *Coordinator) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}
