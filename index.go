package meilisync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/meilisync/internal/meili"
)

// Index is the registered, typed view of one entity type.
type Index[T any] struct {
	client *Client
	meta   Meta
	schema *schemaMeta

	mu    sync.RWMutex
	store Store[T]
}

// Register resolves cfg for T, prepares the remote index and adds it to
// the client registry. T must be a struct; hooks receive *T.
//
// Offline clients make no remote calls. In sync mode a failed remote task
// aborts registration; otherwise failures are only visible through
// Meta().Tasks.
func Register[T any](ctx context.Context, c *Client, cfg IndexConfig) (idx *Index[T], err error) {
	schema, err := parseSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	resolved := cfg.resolve(schema.typeName)
	if err := schema.validate(resolved); err != nil {
		return nil, fmt.Errorf("register %s: %w", resolved.IndexName, err)
	}
	if err := c.checkFree(resolved.IndexName, schema.typeKey); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { c.obs.observe(resolved.IndexName, "register", start, err) }()

	var tasks []meili.TaskInfo
	if !c.settings.Offline {
		tasks, err = prepareRemote(ctx, c.remote, resolved)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", resolved.IndexName, err)
		}
	}

	idx = &Index[T]{
		client: c,
		schema: schema,
		meta: Meta{
			IndexConfig: resolved,
			TypeName:    schema.typeName,
			Tasks:       tasks,
		},
	}
	if err = c.register(idx, schema.typeKey); err != nil {
		return nil, err
	}
	return idx, nil
}

// prepareRemote creates the index if absent and applies its settings.
func prepareRemote(ctx context.Context, remote RemoteIndex, cfg IndexConfig) ([]meili.TaskInfo, error) {
	tasks := []meili.TaskInfo{}
	info, err := remote.CreateIndex(ctx, cfg.IndexName, cfg.PrimaryKey)
	if info != nil {
		tasks = append(tasks, *info)
	}
	if err != nil {
		return tasks, fmt.Errorf("create index: %w", err)
	}

	info, err = remote.UpdateSettings(ctx, cfg.IndexName, cfg.settings())
	if info != nil {
		tasks = append(tasks, *info)
	}
	if err != nil {
		return tasks, fmt.Errorf("update settings: %w", err)
	}
	return tasks, nil
}

// Name returns the remote index name.
func (i *Index[T]) Name() string { return i.meta.IndexName }

// TypeName returns the Go type name of T.
func (i *Index[T]) TypeName() string { return i.meta.TypeName }

// Meta returns a copy of the resolved configuration.
func (i *Index[T]) Meta() Meta { return i.meta.clone() }

// WithStore attaches the store used by Search and Sync.
func (i *Index[T]) WithStore(s Store[T]) *Index[T] {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.store = s
	return i
}

func (i *Index[T]) storeOrErr(op string) (Store[T], error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.store == nil {
		return nil, configErrorf("%s %s: no store attached", op, i.meta.IndexName)
	}
	return i.store, nil
}

// Document builds the engine document for item.
func (i *Index[T]) Document(item *T) (map[string]any, error) {
	if item == nil {
		return nil, fmt.Errorf("document %s: nil item", i.meta.IndexName)
	}
	return i.schema.toDocument(i.meta.IndexConfig, item)
}

// Includes reports whether item belongs in the index.
func (i *Index[T]) Includes(item *T) bool {
	return item != nil && i.schema.include(item)
}

// Key returns the index primary key value of item.
func (i *Index[T]) Key(item *T) any {
	return i.schema.value(item, i.schema.keyField(i.meta.IndexConfig))
}

// Count returns the number of documents in the remote index.
// It ignores any query state. Offline clients report zero.
func (i *Index[T]) Count(ctx context.Context) (n int64, err error) {
	if i.client.settings.Offline {
		return 0, nil
	}
	start := time.Now()
	defer func() { i.client.obs.observe(i.meta.IndexName, "count", start, err) }()

	st, err := i.client.remote.GetStats(ctx, i.meta.IndexName)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", i.meta.IndexName, err)
	}
	return st.NumberOfDocuments, nil
}

// Clear removes every document from the remote index and waits for the task.
func (i *Index[T]) Clear(ctx context.Context) (err error) {
	if i.client.settings.Offline {
		return nil
	}
	start := time.Now()
	defer func() { i.client.obs.observe(i.meta.IndexName, "clear", start, err) }()

	info, err := i.client.remote.DeleteAllDocuments(ctx, i.meta.IndexName)
	if err != nil {
		return fmt.Errorf("clear %s: %w", i.meta.IndexName, err)
	}
	if err = i.client.remote.Await(ctx, info); err != nil {
		return fmt.Errorf("clear %s: %w", i.meta.IndexName, err)
	}
	return nil
}
