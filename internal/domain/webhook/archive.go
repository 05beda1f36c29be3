package webhook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mwork/payin-api/internal/pkg/storage"
)

// Archiver keeps raw authenticated callback bodies in object storage.
type Archiver struct {
	store storage.Store
}

func NewArchiver(store storage.Store) *Archiver {
	return &Archiver{store: store}
}

// Key is webhooks/YYYY/MM/DD/<sha256 of body>.json; identical bodies share a key.
func Key(body []byte, receivedAt time.Time) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("webhooks/%s/%s.json", receivedAt.UTC().Format("2006/01/02"), hex.EncodeToString(sum[:]))
}

// Archive stores body unless an identical one was already archived that day.
func (a *Archiver) Archive(ctx context.Context, body []byte, receivedAt time.Time) (string, error) {
	key := Key(body, receivedAt)
	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check archive: %w", err)
	}
	if exists {
		return key, nil
	}
	if err := a.store.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return "", fmt.Errorf("archive payload: %w", err)
	}
	return key, nil
}

// Load returns an archived body. Only keys under webhooks/ are served.
func (a *Archiver) Load(ctx context.Context, key string) ([]byte, error) {
	if !strings.HasPrefix(key, "webhooks/") || strings.Contains(key, "..") {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	rc, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
