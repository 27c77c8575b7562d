// pkg/handlers/result_store.go
package handlers

import (
	"sync"

	"imagefetch/pkg/models"
)

// pendingResult is the outcome of one receipt, as observed by the HTTP
// layer's polling endpoint. done is false until the coordinator's
// completion callback runs.
type pendingResult struct {
	done  bool
	image *models.Image
	err   error
}

// resultStore lets the stateless HTTP handlers bridge the coordinator's
// callback-based completion model to a poll-based client protocol.
type resultStore struct {
	mu      sync.Mutex
	results map[string]*pendingResult
}

func newResultStore() *resultStore {
	return &resultStore{results: make(map[string]*pendingResult)}
}

func (s *resultStore) reserve(receiptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[receiptID]; !ok {
		s.results[receiptID] = &pendingResult{}
	}
}

func (s *resultStore) set(receiptID string, image *models.Image, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[receiptID] = &pendingResult{done: true, image: image, err: err}
}

func (s *resultStore) get(receiptID string) (*pendingResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[receiptID]
	return r, ok
}
