package collectionrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"shiyin/internal/collection"
	"shiyin/internal/util/jsonutil"
)

// FileStore writes one indented JSON document per owner under dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("collection directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create collection directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(owner string) string {
	return filepath.Join(s.dir, owner+".json")
}

func (s *FileStore) Load(ctx context.Context, owner string) ([]collection.Item, error) {
	owner, err := normalizeOwner(owner)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(owner))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeItems(raw)
}

// Save writes to a temp file and renames it over the previous snapshot.
func (s *FileStore) Save(ctx context.Context, owner string, items []collection.Item) error {
	owner, err := normalizeOwner(owner)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if items == nil {
		items = []collection.Item{}
	}
	b, err := jsonutil.MarshalNoEscapeIndent(items, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(s.dir, owner+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(owner))
}
