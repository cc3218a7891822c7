package api

import (
	"sync"

	"github.com/google/uuid"
)

// ExtractionStore keeps the summaries of past extractions so clients can
// fetch them again by id. Pixels are never stored.
type ExtractionStore struct {
	mu          sync.Mutex
	extractions map[string]ExtractionResponse
	order       []string
	limit       int
}

// DefaultStoreLimit bounds the number of summaries kept in memory.
const DefaultStoreLimit = 1024

func NewExtractionStore(limit int) *ExtractionStore {
	if limit <= 0 {
		limit = DefaultStoreLimit
	}
	return &ExtractionStore{
		extractions: make(map[string]ExtractionResponse),
		limit:       limit,
	}
}

// Save stores resp, evicting the oldest summary once the store is full.
func (s *ExtractionStore) Save(resp ExtractionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.extractions[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.extractions[resp.ID] = resp
	for len(s.order) > s.limit {
		delete(s.extractions, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *ExtractionStore) Get(id string) (ExtractionResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.extractions[id]
	return resp, ok
}

func (s *ExtractionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.extractions[id]; !ok {
		return false
	}
	delete(s.extractions, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *ExtractionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.extractions)
}

func newExtractionID() string {
	return "ext_" + uuid.NewString()
}
