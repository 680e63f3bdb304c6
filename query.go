package meilisync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilisync/internal/meili"
	"github.com/kailas-cloud/meilisync/internal/query"
)

// Positional filter predicates.
type (
	Predicate   = query.Predicate
	Radius      = query.Radius
	BoundingBox = query.BoundingBox
	Point       = query.Point
	Span        = query.Span
)

// Matching strategies.
const (
	MatchingLast = meili.MatchingLast
	MatchingAll  = meili.MatchingAll
)

// Field builds a keyword-style predicate such as Field("price__gte", 10).
func Field(lookup string, value any) Predicate {
	return query.Field(lookup, value)
}

// Query is a fluent search session. It is not safe for concurrent use and
// is meant for a single Search call.
type Query[T any] struct {
	idx   *Index[T]
	state *query.State
	err   error
}

// Query starts a search session with engine defaults.
func (i *Index[T]) Query() *Query[T] {
	return &Query[T]{idx: i, state: query.New()}
}

func (q *Query[T]) record(err error) {
	if err != nil && q.err == nil {
		q.err = err
	}
}

// Filter adds predicates. Geo predicates need a geo-enabled index.
// A malformed call adds nothing and is reported by Err and Search.
func (q *Query[T]) Filter(preds ...Predicate) *Query[T] {
	q.record(q.state.Filter(q.idx.meta.SupportsGeo, preds...))
	return q
}

// Where is shorthand for Filter(Field(lookup, value)).
func (q *Query[T]) Where(lookup string, value any) *Query[T] {
	return q.Filter(Field(lookup, value))
}

// OrderBy adds sort fields; a leading "-" sorts descending.
func (q *Query[T]) OrderBy(fields ...string) *Query[T] {
	q.record(q.state.OrderBy(fields...))
	return q
}

// Slice sets offset to start and limit to stop.
func (q *Query[T]) Slice(start, stop int) *Query[T] {
	q.record(q.state.Slice(start, stop))
	return q
}

// MatchingStrategy selects MatchingLast or MatchingAll.
func (q *Query[T]) MatchingStrategy(strategy string) *Query[T] {
	q.record(q.state.SetMatchingStrategy(strategy))
	return q
}

// AttributesToSearchOn restricts which attributes the text is matched against.
func (q *Query[T]) AttributesToSearchOn(attrs ...string) *Query[T] {
	q.record(q.state.SetAttributesToSearchOn(attrs...))
	return q
}

// Err returns the first usage error recorded by the builder.
func (q *Query[T]) Err() error { return q.err }

// Compile returns the search request that Search would send.
func (q *Query[T]) Compile(text string) (meili.SearchRequest, error) {
	if q.err != nil {
		return meili.SearchRequest{}, q.err
	}
	return q.state.Request(text), nil
}

// Search runs the query and loads the matching records from the store.
// Result order follows the store, not the engine ranking.
func (q *Query[T]) Search(ctx context.Context, text string) (items []T, err error) {
	req, err := q.Compile(text)
	if err != nil {
		return nil, err
	}
	name := q.idx.meta.IndexName
	if q.idx.client.settings.Offline {
		q.idx.client.obs.warn("search skipped: offline", zap.String("index", name))
		return []T{}, nil
	}
	store, err := q.idx.storeOrErr("search")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { q.idx.client.obs.observe(name, "search", start, err) }()

	resp, err := q.idx.client.remote.Search(ctx, name, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	keys := hitKeys(resp.Hits, q.idx.meta.PrimaryKey)
	if len(keys) == 0 {
		return []T{}, nil
	}
	items, err = store.FindByKeys(ctx, q.idx.schema.storeField(q.idx.meta.IndexConfig), keys)
	if err != nil {
		return nil, fmt.Errorf("search %s: load records: %w", name, err)
	}
	return items, nil
}

// Count returns the index document count. Filters are ignored.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	return q.idx.Count(ctx)
}

// hitKeys reads the primary key of every hit, falling back to "id".
func hitKeys(hits []map[string]any, field string) []any {
	keys := make([]any, 0, len(hits))
	for _, h := range hits {
		if v, ok := h[field]; ok && v != nil {
			keys = append(keys, v)
			continue
		}
		if v, ok := h["id"]; ok && v != nil {
			keys = append(keys, v)
		}
	}
	return keys
}
