package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bilancio/internal/kv"
)

type entry struct {
	blob    []byte
	version int64
}

// Store keeps blobs in process memory. Used for local runs and tests.
type Store struct {
	mu    sync.Mutex
	users map[string]map[string]entry
}

var (
	_ kv.Store      = (*Store)(nil)
	_ kv.UserLister = (*Store)(nil)
)

func New() *Store {
	return &Store{users: make(map[string]map[string]entry)}
}

func (s *Store) Get(ctx context.Context, userKey, dataKey string) ([]byte, error) {
	blob, _, err := s.GetVersioned(ctx, userKey, dataKey)
	return blob, err
}

func (s *Store) GetVersioned(_ context.Context, userKey, dataKey string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[userKey][dataKey]
	if !ok {
		return nil, 0, fmt.Errorf("%s/%s: %w", userKey, dataKey, kv.ErrNotFound)
	}
	return append([]byte(nil), e.blob...), e.version, nil
}

func (s *Store) Set(_ context.Context, userKey, dataKey string, blob []byte) error {
	if err := checkKeys(userKey, dataKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(userKey, dataKey, blob)
	return nil
}

func (s *Store) SetIfVersion(_ context.Context, userKey, dataKey string, blob []byte, version int64) (int64, error) {
	if err := checkKeys(userKey, dataKey); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if current := s.users[userKey][dataKey].version; current != version {
		return 0, fmt.Errorf("%s/%s at version %d, expected %d: %w", userKey, dataKey, current, version, kv.ErrConflict)
	}
	return s.put(userKey, dataKey, blob), nil
}

// put stores blob and returns its new version. Callers hold mu.
func (s *Store) put(userKey, dataKey string, blob []byte) int64 {
	data, ok := s.users[userKey]
	if !ok {
		data = make(map[string]entry)
		s.users[userKey] = data
	}
	e := entry{blob: append([]byte(nil), blob...), version: data[dataKey].version + 1}
	data[dataKey] = e
	return e.version
}

func (s *Store) ListByPrefix(_ context.Context, userKey, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for key, e := range s.users[userKey] {
		if strings.HasPrefix(key, prefix) {
			out[key] = append([]byte(nil), e.blob...)
		}
	}
	return out, nil
}

// Users returns every user key with stored data.
func (s *Store) Users(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func checkKeys(userKey, dataKey string) error {
	if strings.TrimSpace(userKey) == "" || strings.TrimSpace(dataKey) == "" {
		return fmt.Errorf("user and data key are required")
	}
	return nil
}
