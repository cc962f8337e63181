package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalStorage is a string-keyed JSON store kept in a single file. It holds
// guest state and the quote cache, the way the browser's localStorage did.
// An empty path keeps everything in memory.
type LocalStorage struct {
	path  string
	mu    sync.RWMutex
	items map[string]json.RawMessage
}

func NewLocalStorage(path string) (*LocalStorage, error) {
	ls := &LocalStorage{path: path, items: make(map[string]json.RawMessage)}
	if path == "" {
		return ls, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ls, nil
		}
		return nil, fmt.Errorf("failed to read local storage: %w", err)
	}
	if len(data) == 0 {
		return ls, nil
	}
	if err := json.Unmarshal(data, &ls.items); err != nil {
		return nil, fmt.Errorf("failed to parse local storage %s: %w", path, err)
	}
	return ls, nil
}

// GetItem decodes the value stored under key into v. ok is false when the
// key is absent.
func (ls *LocalStorage) GetItem(key string, v interface{}) (bool, error) {
	ls.mu.RLock()
	raw, ok := ls.items[key]
	ls.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode local storage item %q: %w", key, err)
	}
	return true, nil
}

func (ls *LocalStorage) SetItem(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode local storage item %q: %w", key, err)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.items[key] = raw
	return ls.flushLocked()
}

func (ls *LocalStorage) RemoveItem(key string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, ok := ls.items[key]; !ok {
		return nil
	}
	delete(ls.items, key)
	return ls.flushLocked()
}

// flushLocked rewrites the backing file through a temp file and rename.
func (ls *LocalStorage) flushLocked() error {
	if ls.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(ls.items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(ls.path), ".local_storage-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write local storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close local storage: %w", err)
	}
	if err := os.Rename(tmp.Name(), ls.path); err != nil {
		return fmt.Errorf("failed to replace local storage: %w", err)
	}
	return nil
}
