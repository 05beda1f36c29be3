package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalStoragePutGetExists(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	ctx := context.Background()
	key := "webhooks/2026/01/02/abc.json"

	if ok, err := store.Exists(ctx, key); err != nil || ok {
		t.Fatalf("expected missing object, got ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, key, strings.NewReader(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, err := store.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("expected stored object, got ok=%v err=%v", ok, err)
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"a":1}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestLocalStorageMissingObject(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	if _, err := store.Get(context.Background(), "nope.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	if err := store.Put(context.Background(), "../escape.json", strings.NewReader("x"), ""); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}
