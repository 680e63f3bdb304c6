package meilisync

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/meilisync/internal/meili"
	"github.com/kailas-cloud/meilisync/internal/meili/meilitest"
)

// --- test entities ---

type place struct {
	ID     int64   `json:"id" gorm:"primaryKey"`
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	Rating float64 `json:"rating"`
	Lat    float64 `json:"lat" meili:"lat"`
	Lng    float64 `json:"lng" meili:"lng"`
	Hidden bool    `json:"hidden" meili:"-"`
}

func (p *place) MeiliInclude() bool { return !p.Hidden }

type article struct {
	ID    uint   `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type pinned struct {
	Key   string  `json:"key" meili:"pk"`
	Label string  `json:"label"`
	X     float64 `json:"-"`
	Y     float64 `json:"-"`
}

func (p *pinned) MeiliGeo() Geo { return Geo{Lat: p.Y, Lng: p.X} }

func (p *pinned) MeiliSerialize() (map[string]any, error) {
	return map[string]any{"label": "pin:" + p.Label}, nil
}

type noIdentity struct {
	Name string
}

func places() []place {
	return []place{
		{ID: 1, Name: "Blue Cafe", Kind: "cafe", Rating: 4.5, Lat: 34.77, Lng: 32.42},
		{ID: 2, Name: "Red Bar", Kind: "bar", Rating: 3, Lat: 34.70, Lng: 32.40},
		{ID: 3, Name: "Blue Bar", Kind: "bar", Rating: 5, Lat: 40, Lng: 10},
		{ID: 4, Name: "Secret Bar", Kind: "bar", Rating: 1, Lat: 1, Lng: 1, Hidden: true},
		{ID: 5, Name: "Green Cafe", Kind: "cafe", Rating: 2, Lat: 34.8, Lng: 32.5},
	}
}

// --- memStore ---

type findCall struct {
	field string
	keys  []any
}

type memStore[T any] struct {
	mu       sync.Mutex
	items    []T
	finds    []findCall
	batches  int
	failAt   int // 1-based batch number that returns batchErr
	batchErr error
}

func newMemStore[T any](items ...T) *memStore[T] {
	return &memStore[T]{items: items}
}

func (s *memStore[T]) FindByKeys(_ context.Context, field string, keys []any) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds = append(s.finds, findCall{field: field, keys: slices.Clone(keys)})
	if field == "" {
		field = "ID"
		if reflect.TypeFor[T]().Name() == "pinned" {
			field = "Key"
		}
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[fmt.Sprint(k)] = struct{}{}
	}
	var out []T
	for _, it := range s.items {
		v := reflect.ValueOf(it).FieldByName(field)
		if _, ok := want[fmt.Sprint(v.Interface())]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *memStore[T]) Batches(ctx context.Context, size, offset int, fn func([]T, int) error) error {
	for off := offset; off < len(s.items); off += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+size, len(s.items))
		s.mu.Lock()
		s.batches++
		n := s.batches
		s.mu.Unlock()
		if s.failAt == n {
			return s.batchErr
		}
		if err := fn(slices.Clone(s.items[off:end]), end); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore[T]) Count(context.Context) (int64, error) {
	return int64(len(s.items)), nil
}

// --- memCheckpoint ---

type memCheckpoint struct {
	mu      sync.Mutex
	offsets map[string]int
	saves   []int
	cleared bool
}

func newMemCheckpoint() *memCheckpoint {
	return &memCheckpoint{offsets: make(map[string]int)}
}

func (c *memCheckpoint) Load(_ context.Context, index string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	off, ok := c.offsets[index]
	return off, ok, nil
}

func (c *memCheckpoint) Save(_ context.Context, index string, offset int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsets[index] = offset
	c.saves = append(c.saves, offset)
	return nil
}

func (c *memCheckpoint) Clear(_ context.Context, index string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.offsets, index)
	c.cleared = true
	return nil
}

// --- client helpers ---

func newTestClient(t *testing.T, srv *meilitest.Server, sync bool, opts ...Option) *Client {
	t.Helper()
	remote, err := meili.New(meili.Config{
		Host:         srv.URL,
		Sync:         sync,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("meili.New: %v", err)
	}
	c, err := New(append([]Option{WithRemote(remote), WithSync(sync)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func registerPlaces(t *testing.T, c *Client) *Index[place] {
	t.Helper()
	idx, err := Register[place](context.Background(), c, IndexConfig{
		IndexName:        "places",
		SearchableFields: []string{"name", "kind"},
		FilterableFields: []string{"kind", "rating"},
		SortableFields:   []string{"rating"},
		SupportsGeo:      true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return idx
}

func savePlaces(t *testing.T, idx *Index[place], items []place) {
	t.Helper()
	for i := range items {
		if err := idx.Saved(context.Background(), &items[i]); err != nil {
			t.Fatalf("Saved(%d): %v", items[i].ID, err)
		}
	}
}

func placeIDs(items []place) []int64 {
	out := make([]int64, len(items))
	for i, p := range items {
		out[i] = p.ID
	}
	slices.Sort(out)
	return out
}

func docIDs(docs []map[string]any) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		switch v := d["id"].(type) {
		case int64:
			out = append(out, strconv.FormatInt(v, 10))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	slices.Sort(out)
	return out
}
