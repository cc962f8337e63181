package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local_storage.json")
	ls, err := NewLocalStorage(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := ls.SetItem("freeTrialCount:g1", 2); err != nil {
		t.Fatal(err)
	}
	if err := ls.SetItem("portfolio:g1", []Holding{{Symbol: "AAPL", Quantity: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := ls.RemoveItem("portfolio:g1"); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewLocalStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	var count int
	if ok, err := reopened.GetItem("freeTrialCount:g1", &count); !ok || err != nil || count != 2 {
		t.Errorf("count = %d, ok = %v, err = %v", count, ok, err)
	}
	var holdings []Holding
	if ok, _ := reopened.GetItem("portfolio:g1", &holdings); ok {
		t.Errorf("removed item still present")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLocalStorageInMemory(t *testing.T) {
	ls, err := NewLocalStorage("")
	if err != nil {
		t.Fatal(err)
	}
	if err := ls.SetItem("k", "v"); err != nil {
		t.Fatal(err)
	}
	var v string
	if ok, _ := ls.GetItem("k", &v); !ok || v != "v" {
		t.Errorf("GetItem = %q, %v", v, ok)
	}
}

func TestLocalStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local_storage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocalStorage(path); err == nil {
		t.Fatal("expected an error for a corrupt file")
	}

	ls, _ := NewLocalStorage(filepath.Join(t.TempDir(), "ok.json"))
	ls.SetItem("n", "text")
	var n int
	if ok, err := ls.GetItem("n", &n); !ok || err == nil {
		t.Errorf("decoding into the wrong type should fail, ok = %v", ok)
	}
}
