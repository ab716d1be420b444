package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestOpenFile_NotExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	fs, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	var got record
	found, err := fs.Get("missing", &got)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Errorf("expected missing key, got %+v", got)
	}
}

func TestFileStore_SetPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	fs, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if err := fs.Set("a", record{Name: "bench", Count: 3}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	var got record
	found, err := reopened.Get("a", &got)
	if err != nil || !found {
		t.Fatalf("Get = %v, %v; want found", found, err)
	}
	if got.Name != "bench" || got.Count != 3 {
		t.Errorf("unexpected value: %+v", got)
	}
}

func TestFileStore_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	fs, _ := OpenFile(path)
	_ = fs.Set("a", 1)
	_ = fs.Set("b", 2)

	if err := fs.Remove("a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := fs.Remove("never-set"); err != nil {
		t.Fatalf("Remove of missing key failed: %v", err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(buf, &onDisk); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := onDisk["a"]; ok {
		t.Errorf("key a still on disk: %s", buf)
	}
	if string(onDisk["b"]) != "2" {
		t.Errorf("key b = %s; want 2", onDisk["b"])
	}
}

func TestOpenFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("not-json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFile(path); err == nil {
		t.Error("expected decode error for corrupt store")
	}
}

func TestFileStore_GetTypeMismatch(t *testing.T) {
	fs, _ := OpenFile(filepath.Join(t.TempDir(), "store.json"))
	_ = fs.Set("n", "text")

	var n int
	found, err := fs.Get("n", &n)
	if err == nil || found {
		t.Errorf("Get = %v, %v; want decode error", found, err)
	}
}

func TestMemoryStore(t *testing.T) {
	ms := NewMemory()
	if err := ms.Set("k", []string{"x", "y"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !ms.Has("k") {
		t.Fatal("expected key to be present")
	}

	var got []string
	found, err := ms.Get("k", &got)
	if err != nil || !found || len(got) != 2 {
		t.Fatalf("Get = %v, %v, %v", got, found, err)
	}

	_ = ms.Remove("k")
	if ms.Has("k") {
		t.Error("expected key to be removed")
	}
}
