// Package icons picks the best-fit application icon from a purchase request
// and looks it up in the remote icon cache.
package icons

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/punchamoorthee/inapppay/internal/billing"
	"github.com/punchamoorthee/inapppay/internal/domain"
)

// Cache is the part of the billing API that stores resized icons.
type Cache interface {
	GetIcon(ctx context.Context, key billing.IconKey) (billing.Icon, error)
	CreateIcon(ctx context.Context, key billing.IconKey) error
}

type Resolver struct {
	cache  Cache
	size   int
	logger *slog.Logger
}

func NewResolver(cache Cache, size int, logger *slog.Logger) *Resolver {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cache: cache, size: size, logger: logger.With("module", "icons")}
}

// Select returns the cache key for the icon closest to size. An exact match
// wins; otherwise the largest icon is used and the cache resizes it, down
// when it is bigger than size and up when every icon is smaller.
func Select(icons map[string]string, size int) (billing.IconKey, bool) {
	type candidate struct {
		size int
		url  string
	}
	var found []candidate
	for k, u := range icons {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n <= 0 || u == "" {
			continue
		}
		found = append(found, candidate{size: n, url: u})
	}
	if len(found) == 0 {
		return billing.IconKey{}, false
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].size != found[j].size {
			return found[i].size > found[j].size
		}
		return found[i].url < found[j].url
	})
	for _, c := range found {
		if c.size == size {
			return billing.IconKey{ExtURL: c.url, Size: size, ExtSize: c.size}, true
		}
	}
	largest := found[0]
	return billing.IconKey{ExtURL: largest.url, Size: size, ExtSize: largest.size}, true
}

// Resolve returns the cached icon URL, or "" when the request has no icons
// or the icon is not cached yet. A miss asks the cache to create the entry
// and does not wait for it.
func (r *Resolver) Resolve(ctx context.Context, icons map[string]string) (string, error) {
	key, ok := Select(icons, r.size)
	if !ok {
		return "", nil
	}
	icon, err := r.cache.GetIcon(ctx, key)
	if err == nil {
		return icon.URL, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	r.logger.InfoContext(ctx, "icon not cached; requesting",
		"operation", "resolve_icon",
		"outcome", "miss",
		"ext_url", key.ExtURL,
		"size", key.Size,
		"ext_size", key.ExtSize,
	)
	if err := r.cache.CreateIcon(ctx, key); err != nil {
		return "", err
	}
	return "", nil
}
