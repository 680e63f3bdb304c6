package meilisync

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kailas-cloud/meilisync/internal/meili"
	"github.com/kailas-cloud/meilisync/internal/meili/meilitest"
)

func TestSync_AllBatches(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false))
	idx.WithStore(newMemStore(places()...))

	rep, err := idx.Sync(context.Background(), SyncOptions{BatchSize: 2})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Index != "places" || rep.Documents != 4 || rep.Skipped != 1 || rep.Batches != 3 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Tasks) != 3 {
		t.Errorf("tasks = %d, want 3", len(rep.Tasks))
	}
	for _, task := range rep.Tasks {
		if task.Status != meili.TaskSucceeded {
			t.Errorf("task %d status = %q, want %q", task.TaskUID, task.Status, meili.TaskSucceeded)
		}
	}
	if ids := docIDs(srv.Documents("places")); !slices.Equal(ids, []string{"1", "2", "3", "5"}) {
		t.Errorf("indexed = %v", ids)
	}
}

func TestSync_DefaultBatchSize(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false, WithBatchSize(10)))
	idx.WithStore(newMemStore(places()...))

	rep, err := idx.Sync(context.Background(), SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Batches != 1 {
		t.Errorf("batches = %d, want 1", rep.Batches)
	}
}

func TestSync_FailedTask(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false))
	idx.WithStore(newMemStore(places()...))

	srv.FailNext("documentAdditionOrUpdate", "invalid_document_geo_field", "bad _geo")
	_, err := idx.Sync(context.Background(), SyncOptions{BatchSize: 2})
	if !errors.Is(err, ErrRemoteTask) {
		t.Fatalf("err = %v, want ErrRemoteTask", err)
	}
}

func TestSync_Checkpoint(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false))
	idx.WithStore(newMemStore(places()...))
	cp := newMemCheckpoint()

	rep, err := idx.Sync(context.Background(), SyncOptions{BatchSize: 2, Checkpoint: cp})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.ResumedFrom != 0 || rep.Documents != 4 {
		t.Errorf("report = %+v", rep)
	}
	if !slices.Equal(cp.saves, []int{2, 4, 5}) {
		t.Errorf("saves = %v, want [2 4 5]", cp.saves)
	}
	if _, ok, _ := cp.Load(context.Background(), "places"); ok || !cp.cleared {
		t.Error("checkpoint not cleared after success")
	}
}

func TestSync_Resume(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false))
	idx.WithStore(newMemStore(places()...))
	cp := newMemCheckpoint()
	if err := cp.Save(context.Background(), "places", 2); err != nil {
		t.Fatal(err)
	}

	rep, err := idx.Sync(context.Background(), SyncOptions{BatchSize: 2, Checkpoint: cp, Resume: true})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.ResumedFrom != 2 || rep.Documents != 2 || rep.Skipped != 1 {
		t.Errorf("report = %+v", rep)
	}
	if ids := docIDs(srv.Documents("places")); !slices.Equal(ids, []string{"3", "5"}) {
		t.Errorf("indexed = %v", ids)
	}
}

func TestSync_ResumeIgnoredWithoutFlag(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false))
	idx.WithStore(newMemStore(places()...))
	cp := newMemCheckpoint()
	_ = cp.Save(context.Background(), "places", 4)

	rep, err := idx.Sync(context.Background(), SyncOptions{BatchSize: 2, Checkpoint: cp})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.ResumedFrom != 0 || rep.Documents != 4 {
		t.Errorf("report = %+v", rep)
	}
}

func TestSync_StoreErrorKeepsCheckpoint(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false))
	store := newMemStore(places()...)
	store.failAt = 2
	store.batchErr = errors.New("connection reset")
	idx.WithStore(store)
	cp := newMemCheckpoint()

	_, err := idx.Sync(context.Background(), SyncOptions{BatchSize: 2, Checkpoint: cp})
	if err == nil {
		t.Fatal("expected error")
	}
	off, ok, _ := cp.Load(context.Background(), "places")
	if !ok || off != 2 {
		t.Errorf("checkpoint = %d, %v; want 2, true", off, ok)
	}
}

func TestSync_NoStore(t *testing.T) {
	c, _ := New(WithOffline(true))
	idx := registerPlaces(t, c)
	if _, err := idx.Sync(context.Background(), SyncOptions{}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestSync_ThroughHandle(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv, false)
	registerPlaces(t, c).WithStore(newMemStore(places()...))

	h, err := c.Lookup("place")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := h.Sync(context.Background(), SyncOptions{}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	n, err := h.Count(context.Background())
	if err != nil || n != 4 {
		t.Errorf("count = %d, %v", n, err)
	}
}

func TestClear(t *testing.T) {
	srv := meilitest.NewServer()
	defer srv.Close()

	idx := registerPlaces(t, newTestClient(t, srv, false))
	savePlaces(t, idx, places())

	if err := idx.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, err := idx.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("count = %d, %v", n, err)
	}

	srv.FailNext("documentDeletion", "internal", "boom")
	if err := idx.Clear(context.Background()); !errors.Is(err, ErrRemoteTask) {
		t.Errorf("err = %v, want ErrRemoteTask", err)
	}
}
