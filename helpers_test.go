package main

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(filepath.Join(t.TempDir(), "local_storage.json"))
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return storage
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

var testLogger = zap.NewNop()
