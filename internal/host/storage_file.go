package host

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// FileStorage writes one append-only transcript file per terminal.
type FileStorage struct {
	dataDir string
	mu      sync.RWMutex
}

func NewFileStorage(dataDir string) (*FileStorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	return &FileStorage{dataDir: dataDir}, nil
}

func (s *FileStorage) path(id string) string {
	return filepath.Join(s.dataDir, id+".out")
}

func (s *FileStorage) Create(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("transcript %q already exists", id)
		}
		return fmt.Errorf("create transcript file: %w", err)
	}
	return f.Close()
}

func (s *FileStorage) Append(id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(id), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("transcript %q not found", id)
		}
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock file: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (s *FileStorage) ReadFrom(id string, offset int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("transcript %q not found", id)
		}
		return nil, fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return data, nil
}

func (s *FileStorage) Size(id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("transcript %q not found", id)
		}
		return 0, fmt.Errorf("stat transcript: %w", err)
	}
	return info.Size(), nil
}

func (s *FileStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove transcript: %w", err)
	}
	return nil
}
