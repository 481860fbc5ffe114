// Package providers selects a buckets.Provider implementation by id.
package providers

import (
	"context"
	"sort"
	"strings"
	"sync"

	"cloudbuckets/internal/buckets"
	"cloudbuckets/internal/providers/aws"
	"cloudbuckets/internal/providers/local"
	"cloudbuckets/internal/providers/minio"
)

var (
	mu       sync.RWMutex
	registry = map[string]buckets.Factory{
		aws.ID: func(ctx context.Context, opts *buckets.ProviderOptions) (buckets.Provider, error) {
			return aws.New(ctx, opts)
		},
		minio.ID: func(ctx context.Context, opts *buckets.ProviderOptions) (buckets.Provider, error) {
			return minio.New(ctx, opts)
		},
		local.ID: func(ctx context.Context, opts *buckets.ProviderOptions) (buckets.Provider, error) {
			return local.New(ctx, opts)
		},
	}
)

// Register adds or replaces the factory for id.
func Register(id string, factory buckets.Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(strings.TrimSpace(id))] = factory
}

// IDs returns the registered provider ids in sorted order.
func IDs() []string {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve constructs the provider registered under id. Ids are matched
// case-insensitively.
func Resolve(ctx context.Context, id string, opts *buckets.ProviderOptions) (buckets.Provider, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		return nil, &buckets.ConfigError{Field: "provider", Message: "provider is required"}
	}

	mu.RLock()
	factory, ok := registry[key]
	mu.RUnlock()
	if !ok || factory == nil {
		return nil, &buckets.ConfigError{
			Field:   "provider",
			Value:   id,
			Message: "unknown provider, expected one of " + strings.Join(IDs(), ", "),
		}
	}
	if opts == nil {
		opts = &buckets.ProviderOptions{}
	}
	return factory(ctx, opts)
}
