package storage

import (
	"os"
	"testing"

	"github.com/google/uuid"
)

// TestRedisStore runs against a live server when LIFTLOG_TEST_REDIS is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("LIFTLOG_TEST_REDIS")
	if addr == "" {
		t.Skip("LIFTLOG_TEST_REDIS not set")
	}
	store, err := NewRedisStore(addr, "", 0, "liftlog-test:"+uuid.NewString()+":")
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Set("k", record{Name: "row", Count: 1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var got record
	found, err := store.Get("k", &got)
	if err != nil || !found || got.Name != "row" {
		t.Fatalf("Get = %+v, %v, %v", got, found, err)
	}
	if err := store.Remove("k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	found, err = store.Get("k", &got)
	if err != nil || found {
		t.Errorf("Get after Remove = %v, %v; want not found", found, err)
	}
}
