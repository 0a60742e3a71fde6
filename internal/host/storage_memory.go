package host

import (
	"fmt"
	"sync"
)

type transcript struct {
	data    []byte
	dropped int64
}

type MemoryStorage struct {
	mu          sync.RWMutex
	transcripts map[string]*transcript
	maxSize     int
}

func NewMemoryStorage(maxSize int) *MemoryStorage {
	return &MemoryStorage{
		transcripts: make(map[string]*transcript),
		maxSize:     maxSize,
	}
}

func (s *MemoryStorage) Create(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transcripts[id]; exists {
		return fmt.Errorf("transcript %q already exists", id)
	}
	s.transcripts[id] = &transcript{}
	return nil
}

func (s *MemoryStorage) Append(id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.transcripts[id]
	if !exists {
		return fmt.Errorf("transcript %q not found", id)
	}

	t.data = append(t.data, data...)
	if s.maxSize > 0 && len(t.data) > s.maxSize {
		excess := len(t.data) - s.maxSize
		t.data = append([]byte(nil), t.data[excess:]...)
		t.dropped += int64(excess)
	}
	return nil
}

func (s *MemoryStorage) ReadFrom(id string, offset int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.transcripts[id]
	if !exists {
		return nil, fmt.Errorf("transcript %q not found", id)
	}

	rel := max(0, offset-t.dropped)
	if rel >= int64(len(t.data)) {
		return []byte{}, nil
	}
	return append([]byte{}, t.data[rel:]...), nil
}

func (s *MemoryStorage) Size(id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.transcripts[id]
	if !exists {
		return 0, fmt.Errorf("transcript %q not found", id)
	}
	return t.dropped + int64(len(t.data)), nil
}

func (s *MemoryStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.transcripts, id)
	return nil
}
