package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/qview/internal/tensor"
)

// DefaultStoreCapacity bounds the number of tensors a TensorStore keeps.
const DefaultStoreCapacity = 256

type tensorRecord struct {
	ID        string
	CreatedAt time.Time
	Tensor    *tensor.Tensor
}

// TensorStore keeps quantized results so later requests can refer to them by
// id. When full, the oldest entry is evicted.
type TensorStore struct {
	mu       sync.Mutex
	capacity int
	tensors  map[string]*tensorRecord
	order    []string
}

func NewTensorStore(capacity int) *TensorStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &TensorStore{
		capacity: capacity,
		tensors:  make(map[string]*tensorRecord),
	}
}

func (s *TensorStore) Put(t *tensor.Tensor, now time.Time) *tensorRecord {
	rec := &tensorRecord{
		ID:        newTensorID(),
		CreatedAt: now,
		Tensor:    t,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.tensors, oldest)
	}
	s.tensors[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec
}

func (s *TensorStore) Get(id string) (*tensorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tensors[id]
	return rec, ok
}

func (s *TensorStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tensors[id]; !ok {
		return false
	}
	delete(s.tensors, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *TensorStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tensors)
}

func newTensorID() string {
	return "qt_" + uuid.NewString()
}
