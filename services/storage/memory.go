package storagesvc

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/trezcool/aula/core"
)

type memoryObject struct {
	Content     []byte
	ContentType string
}

// MemoryStore keeps objects in memory; for local development and tests.
// UploadErr and DeleteErr, when set, are returned instead of doing the work.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	UploadErr error
	DeleteErr error
}

var _ core.ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Upload(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if s.UploadErr != nil {
		return core.NewExternalError("storage", s.UploadErr)
	}
	content, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{Content: content, ContentType: contentType}
	return nil
}

func (s *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if !s.Has(key) {
		return "", core.NewExternalError("storage", fmt.Errorf("object %q not found", key))
	}
	q := url.Values{"expires": {core.NowFunc().Add(ttl).Format(time.RFC3339)}}
	return "memory://" + key + "?" + q.Encode(), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if s.DeleteErr != nil {
		return core.NewExternalError("storage", s.DeleteErr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Content returns the stored bytes of key.
func (s *MemoryStore) Content(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj.Content, ok
}

func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
