package collectionrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"shiyin/internal/collection"
	"shiyin/internal/util/jsonutil"
)

// Store persists one collection snapshot per owner. Save replaces the
// previous snapshot wholesale.
type Store interface {
	Load(ctx context.Context, owner string) ([]collection.Item, error)
	Save(ctx context.Context, owner string, items []collection.Item) error
}

var (
	ErrNotFound     = errors.New("collection not found")
	ErrInvalidOwner = errors.New("invalid collection owner")
)

var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// normalizeOwner trims owner and rejects anything unsafe as a file name or
// object key segment.
func normalizeOwner(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if !ownerPattern.MatchString(owner) || strings.Contains(owner, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	}
	return owner, nil
}

func encodeItems(items []collection.Item) ([]byte, error) {
	if items == nil {
		items = []collection.Item{}
	}
	return jsonutil.MarshalNoEscape(items)
}

func decodeItems(raw []byte) ([]collection.Item, error) {
	var items []collection.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if items == nil {
		items = []collection.Item{}
	}
	return items, nil
}

func copyItems(items []collection.Item) []collection.Item {
	return append([]collection.Item{}, items...)
}
