package magiclink

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
)

// Well-known local storage keys. The verified and degraded sessions live
// under distinct keys and must never be conflated by readers; the manager's
// Current accessor is the one place that resolves between them.
const (
	SessionKeyVerified = "magiclink.session"
	SessionKeyDegraded = "magiclink.session.degraded"
)

// FileSessionStore persists session payloads as files in a directory,
// one per key. It is the durable local device storage for a client process.
type FileSessionStore struct {
	dir string
	mu  sync.Mutex
}

var _ SessionStore = (*FileSessionStore)(nil)

// NewFileSessionStore creates the backing directory if needed.
func NewFileSessionStore(dir string) (*FileSessionStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to create session store directory").
			WithMetadata(map[string]any{"dir": dir})
	}
	return &FileSessionStore{dir: dir}, nil
}

func (s *FileSessionStore) path(key string) string {
	// keys are dotted names, keep them filesystem safe
	return filepath.Join(s.dir, strings.ReplaceAll(key, string(os.PathSeparator), "_"))
}

func (s *FileSessionStore) Read(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, errors.CategoryInternal, "unable to read stored session")
	}
	return string(data), true, nil
}

func (s *FileSessionStore) Write(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(key), []byte(value), 0o600); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to write stored session")
	}
	return nil
}

func (s *FileSessionStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CategoryInternal, "unable to delete stored session")
	}
	return nil
}

// MemorySessionStore keeps payloads in a map. Useful for tests and for
// embedded hosts that manage their own persistence.
type MemorySessionStore struct {
	mu     sync.Mutex
	values map[string]string
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{values: map[string]string{}}
}

func (s *MemorySessionStore) Read(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[key]
	return value, ok, nil
}

func (s *MemorySessionStore) Write(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *MemorySessionStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}
