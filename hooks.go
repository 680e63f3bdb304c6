package meilisync

import (
	"context"
	"fmt"
	"time"
)

// Saved mirrors a created or updated instance into the index.
//
// Excluded instances and offline clients are skipped. In debug mode the
// call waits for the task and returns ErrRemoteTask if it failed.
func (i *Index[T]) Saved(ctx context.Context, item *T) (err error) {
	if !i.Includes(item) || i.client.settings.Offline {
		return nil
	}
	start := time.Now()
	defer func() { i.client.obs.observe(i.meta.IndexName, "save", start, err) }()

	doc, err := i.Document(item)
	if err != nil {
		return fmt.Errorf("save %s: %w", i.meta.IndexName, err)
	}
	info, err := i.client.remote.AddDocuments(ctx, i.meta.IndexName, []map[string]any{doc})
	if err != nil {
		return fmt.Errorf("save %s: %w", i.meta.IndexName, err)
	}
	if i.client.settings.Debug {
		if err := i.client.remote.Await(ctx, info); err != nil {
			return fmt.Errorf("save %s: %w", i.meta.IndexName, err)
		}
	}
	return nil
}

// Deleted removes the instance's document. The key is read from item
// itself; the store is not consulted.
func (i *Index[T]) Deleted(ctx context.Context, item *T) (err error) {
	if !i.Includes(item) || i.client.settings.Offline {
		return nil
	}
	start := time.Now()
	defer func() { i.client.obs.observe(i.meta.IndexName, "delete", start, err) }()

	key := keyString(i.Key(item))
	info, err := i.client.remote.DeleteDocument(ctx, i.meta.IndexName, key)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", i.meta.IndexName, key, err)
	}
	if i.client.settings.Debug {
		if err := i.client.remote.Await(ctx, info); err != nil {
			return fmt.Errorf("delete %s %s: %w", i.meta.IndexName, key, err)
		}
	}
	return nil
}
