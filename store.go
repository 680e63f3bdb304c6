package meilisync

import "context"

// Store is the relational collaborator of an index.
type Store[T any] interface {
	// FindByKeys loads records whose field value is in keys. An empty field
	// means the native identity; otherwise it is the Go field name.
	FindByKeys(ctx context.Context, field string, keys []any) ([]T, error)
	// Batches calls fn with consecutive batches of at most size records,
	// starting at offset. next is the offset following the batch.
	Batches(ctx context.Context, size, offset int, fn func(batch []T, next int) error) error
	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}

// Checkpoint persists bulk sync progress per index.
type Checkpoint interface {
	Load(ctx context.Context, index string) (offset int, ok bool, err error)
	Save(ctx context.Context, index string, offset int) error
	Clear(ctx context.Context, index string) error
}
