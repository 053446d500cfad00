package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/types"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// File stores one JSON document per account in dir. Writes go to a temp
// file that is renamed over the old document.
type File struct {
	mu  sync.Mutex
	dir string
}

var _ interfaces.AccountStore = (*File)(nil)

func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// path keeps safe names as they are. Names that need sanitizing get a
// short hash of the original so "a b" and "a_b" stay distinct documents.
func (f *File) path(name string) string {
	base := unsafeName.ReplaceAllString(name, "_")
	if base != name {
		sum := sha256.Sum256([]byte(name))
		base += "-" + hex.EncodeToString(sum[:4])
	}
	return filepath.Join(f.dir, base+".json")
}

func (f *File) Get(ctx context.Context, name string) (types.AccountRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.AccountRecord{}, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return types.AccountRecord{}, false, nil
	}
	if err != nil {
		return types.AccountRecord{}, false, fmt.Errorf("read %s: %w", name, err)
	}
	var rec types.AccountRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return types.AccountRecord{}, false, fmt.Errorf("decode %s: %w", name, err)
	}
	if rec.Holdings == nil {
		rec.Holdings = map[string]int64{}
	}
	return rec, true, nil
}

func (f *File) Put(ctx context.Context, name string, rec types.AccountRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".account-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), f.path(name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
