package meilisync

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/kailas-cloud/meilisync/internal/meili/meilitest"
)

func TestRegister_CreatesIndexAndSettings(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv, false)
	idx := registerPlaces(t, c)

	info, settings, ok := srv.Index("places")
	if !ok {
		t.Fatal("index not created")
	}
	if info.PrimaryKey != NativeKey {
		t.Errorf("primary key = %q, want %q", info.PrimaryKey, NativeKey)
	}
	if !slices.Equal(settings.DisplayedAttributes, []string{"*"}) {
		t.Errorf("displayed = %v", settings.DisplayedAttributes)
	}
	if !slices.Equal(settings.SearchableAttributes, []string{"name", "kind"}) {
		t.Errorf("searchable = %v", settings.SearchableAttributes)
	}
	if !slices.Equal(settings.FilterableAttributes, []string{GeoField, "kind", "rating"}) {
		t.Errorf("filterable = %v", settings.FilterableAttributes)
	}
	if !slices.Equal(settings.SortableAttributes, []string{GeoField, "rating"}) {
		t.Errorf("sortable = %v", settings.SortableAttributes)
	}

	meta := idx.Meta()
	if meta.TypeName != "place" || idx.Name() != "places" {
		t.Errorf("meta = %+v", meta)
	}
	if len(meta.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(meta.Tasks))
	}
	if meta.Tasks[0].Type != "indexCreation" || meta.Tasks[1].Type != "settingsUpdate" {
		t.Errorf("task types = %s, %s", meta.Tasks[0].Type, meta.Tasks[1].Type)
	}
}

func TestRegister_Defaults(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx, err := Register[article](context.Background(), newTestClient(t, srv, false), IndexConfig{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	meta := idx.Meta()
	if meta.IndexName != "article" || meta.PrimaryKey != NativeKey {
		t.Errorf("meta = %+v", meta)
	}
	_, settings, _ := srv.Index("article")
	if len(settings.FilterableAttributes) != 0 || len(settings.SortableAttributes) != 0 {
		t.Errorf("settings = %+v", settings)
	}
}

func TestRegister_ExistingIndexSkipsCreate(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv, true)
	if _, err := c.Remote().CreateIndex(context.Background(), "places", NativeKey); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	idx := registerPlaces(t, c)

	if n := len(srv.RequestsTo("POST", "/indexes")); n != 1 {
		t.Errorf("create requests = %d, want 1", n)
	}
	if tasks := idx.Meta().Tasks; len(tasks) != 1 || tasks[0].Type != "settingsUpdate" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestRegister_Offline(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false, WithOffline(true)))
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
	if n := len(idx.Meta().Tasks); n != 0 {
		t.Errorf("tasks = %d, want 0", n)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv, false)
	registerPlaces(t, c)

	_, err := Register[place](context.Background(), c, IndexConfig{IndexName: "places"})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("same name: err = %v, want ErrConfiguration", err)
	}
	_, err = Register[place](context.Background(), c, IndexConfig{IndexName: "places_v2"})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("same type: err = %v, want ErrConfiguration", err)
	}
}

func TestRegister_Concurrent(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, false)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		placeIdx *Index[place]
		artIdx   *Index[article]
		placeErr error
		artErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		placeIdx, placeErr = Register[place](ctx, c, IndexConfig{IndexName: "places", SupportsGeo: true})
	}()
	go func() {
		defer wg.Done()
		artIdx, artErr = Register[article](ctx, c, IndexConfig{IndexName: "articles"})
	}()
	wg.Wait()
	if placeErr != nil || artErr != nil {
		t.Fatalf("Register: %v, %v", placeErr, artErr)
	}

	seen := make(map[int64]string)
	for _, meta := range []Meta{placeIdx.Meta(), artIdx.Meta()} {
		if len(meta.Tasks) != 2 {
			t.Errorf("%s tasks = %d, want 2", meta.IndexName, len(meta.Tasks))
		}
		for _, task := range meta.Tasks {
			if task.IndexUID != meta.IndexName {
				t.Errorf("%s holds task %d of %q", meta.IndexName, task.TaskUID, task.IndexUID)
			}
			if owner, dup := seen[task.TaskUID]; dup {
				t.Errorf("task %d shared by %s and %s", task.TaskUID, owner, meta.IndexName)
			}
			seen[task.TaskUID] = meta.IndexName
		}
	}

	got := c.Indexes()
	if len(got) != 2 || got[0].Name() != "articles" || got[1].Name() != "places" {
		t.Errorf("Indexes = %v", got)
	}
}

func TestRegister_InvalidConfig(t *testing.T) {
	ctx := context.Background()
	c, err := New(WithOffline(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"geo without source", func() error {
			_, err := Register[article](ctx, c, IndexConfig{SupportsGeo: true})
			return err
		}},
		{"unknown primary key", func() error {
			_, err := Register[article](ctx, c, IndexConfig{PrimaryKey: "nope"})
			return err
		}},
		{"no identity field", func() error {
			_, err := Register[noIdentity](ctx, c, IndexConfig{})
			return err
		}},
		{"not a struct", func() error {
			_, err := Register[int](ctx, c, IndexConfig{})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
	if n := len(c.Indexes()); n != 0 {
		t.Errorf("registered = %d, want 0", n)
	}
}

func TestRegister_SyncModeFailureAborts(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	srv.FailNext("settingsUpdate", "invalid_settings_filterable_attributes", "bad filterable")
	c := newTestClient(t, srv, true)

	_, err := Register[place](context.Background(), c, IndexConfig{IndexName: "places"})
	if !errors.Is(err, ErrRemoteTask) {
		t.Fatalf("err = %v, want ErrRemoteTask", err)
	}
	var tfe *TaskFailedError
	if !errors.As(err, &tfe) || tfe.Task.Error == nil || tfe.Task.Error.Code != "invalid_settings_filterable_attributes" {
		t.Errorf("task error = %+v", tfe)
	}
	if _, err := c.Lookup("places"); !errors.Is(err, ErrNotFound) {
		t.Errorf("failed registration was kept: %v", err)
	}
}

func TestRegister_AsyncFailureOnlyInTasks(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	srv.FailNext("settingsUpdate", "invalid_settings_filterable_attributes", "bad filterable")
	idx := registerPlaces(t, newTestClient(t, srv, false))

	tasks := idx.Meta().Tasks
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	err := idx.client.remote.Await(context.Background(), &tasks[1])
	if !errors.Is(err, ErrRemoteTask) {
		t.Errorf("Await = %v, want ErrRemoteTask", err)
	}
}

func TestIndex_MetaIsCopy(t *testing.T) {
	c, err := New(WithOffline(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx := registerPlaces(t, c)

	m := idx.Meta()
	m.FilterableFields[0] = "mutated"
	if idx.Meta().FilterableFields[0] != GeoField {
		t.Error("Meta exposed internal state")
	}
}
