package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"
)

const memoryGCInterval = time.Minute

// MemoryStorage is a process-local Storage used when no shared redis is
// configured. State is not visible to other server instances, so anything
// backed by it (rate-limit counters, CSRF tokens) is best-effort only.
//
// A key holds either a whole value (Get/Set/Save) or a field map (the *Attr
// operations); callers must not mix both styles on the same key.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	value     any
	fields    map[string]int64
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (s *MemoryStorage) getEntry(key string) *memoryEntry {
	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) {
		delete(s.entries, key)
		return nil
	}
	return entry
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.getEntry(key)
	if entry == nil || entry.value == nil {
		return ErrNotFound
	}
	return assign(val, entry.value)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := &memoryEntry{value: val}
	if expiresIn > 0 {
		entry.expiresAt = time.Now().Add(expiresIn)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStorage) Save(ctx context.Context, key string, val any) error {
	return s.Set(ctx, key, val, -1)
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getEntry(key) == nil {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.getEntry(key); entry != nil {
		entry.expiresAt = expiresAt
	}
	return nil
}

func (s *MemoryStorage) SetAttr(ctx context.Context, key string, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.getEntry(key)
	if entry == nil {
		entry = &memoryEntry{fields: make(map[string]int64)}
		s.entries[key] = entry
	}
	num, ok := toInt64(val)
	if !ok {
		return fmt.Errorf("memory storage: unsupported attr type %T", val)
	}
	entry.fields[field] = num
	return nil
}

func (s *MemoryStorage) GetAttr(ctx context.Context, key, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.getEntry(key)
	if entry == nil {
		return ErrNotFound
	}
	num, ok := entry.fields[field]
	if !ok {
		return ErrNotFound
	}
	return assign(val, num)
}

func (s *MemoryStorage) IncrAttr(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.getEntry(key)
	if entry == nil {
		entry = &memoryEntry{fields: make(map[string]int64)}
		s.entries[key] = entry
	}
	entry.fields[field] += delta
	return entry.fields[field], nil
}

func (s *MemoryStorage) DelAttr(ctx context.Context, key string, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.getEntry(key); entry != nil {
		delete(entry.fields, field)
	}
	return nil
}

func (s *MemoryStorage) gcLoop() {
	for range time.Tick(memoryGCInterval) {
		now := time.Now()
		s.mu.Lock()
		for key, entry := range s.entries {
			if entry.expired(now) {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}

// assign copies src into the pointer dst, converting when needed.
func assign(dst any, src any) error {
	out := reflect.ValueOf(dst)
	if out.Kind() != reflect.Pointer || out.IsNil() {
		return fmt.Errorf("memory storage: destination must be a non-nil pointer, got %T", dst)
	}
	elem := out.Elem()
	in := reflect.ValueOf(src)
	if in.Type().AssignableTo(elem.Type()) {
		elem.Set(in)
		return nil
	}
	if in.Type().ConvertibleTo(elem.Type()) {
		elem.Set(in.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("memory storage: cannot assign %T to %T", src, dst)
}

func toInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{
		entries: make(map[string]*memoryEntry),
	}
	go s.gcLoop()
	return s
}
