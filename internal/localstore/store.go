// Package localstore is the client's persistent key/value storage.
//
// Values are JSON documents kept in a single file under the user's data
// directory. Every mutation is a read-modify-write under one mutex, and the
// file is replaced atomically, so concurrent orchestrators never lose each
// other's writes.
package localstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is safe for concurrent use. A Store opened with an empty path keeps
// everything in memory.
type Store struct {
	path string
	mu   sync.Mutex
	mem  map[string]json.RawMessage
}

func Open(path string) *Store {
	return &Store{path: path, mem: map[string]json.RawMessage{}}
}

// GetJSON decodes the value at key into v. ok is false when the key is absent.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAllLocked()
	if err != nil {
		return false, err
	}
	raw, ok := data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// GetString returns a string value, or "" when absent or not a string.
func (s *Store) GetString(key string) string {
	var v string
	if ok, err := s.GetJSON(key, &v); !ok || err != nil {
		return ""
	}
	return v
}

func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAllLocked()
	if err != nil {
		return err
	}
	data[key] = raw
	return s.writeAllLocked(data)
}

func (s *Store) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAllLocked()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(data, k)
	}
	return s.writeAllLocked(data)
}

// Update replaces the value at key with fn's result. fn receives the current
// raw value (nil when absent). Returning a nil value deletes the key.
func (s *Store) Update(key string, fn func(current json.RawMessage) (any, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAllLocked()
	if err != nil {
		return err
	}
	next, err := fn(data[key])
	if err != nil {
		return err
	}
	if next == nil {
		delete(data, key)
		return s.writeAllLocked(data)
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	data[key] = raw
	return s.writeAllLocked(data)
}

func (s *Store) readAllLocked() (map[string]json.RawMessage, error) {
	if s.path == "" {
		out := make(map[string]json.RawMessage, len(s.mem))
		for k, v := range s.mem {
			out[k] = v
		}
		return out, nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	out := map[string]json.RawMessage{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("corrupt local store %s: %w", s.path, err)
	}
	return out, nil
}

func (s *Store) writeAllLocked(data map[string]json.RawMessage) error {
	if s.path == "" {
		s.mem = data
		return nil
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-localstore-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
