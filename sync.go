package meilisync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilisync/internal/meili"
)

// SyncOptions controls a bulk sync.
type SyncOptions struct {
	// BatchSize defaults to Settings.BatchSize.
	BatchSize int
	// Checkpoint, when set, records the store offset after every confirmed
	// batch and is cleared when the sync completes.
	Checkpoint Checkpoint
	// Resume starts from the saved checkpoint instead of offset zero.
	Resume bool
}

// SyncReport summarizes a bulk sync.
type SyncReport struct {
	Index       string           `json:"index"`
	Documents   int              `json:"documents"`
	Skipped     int              `json:"skipped"`
	Batches     int              `json:"batches"`
	ResumedFrom int              `json:"resumed_from"`
	Tasks       []meili.TaskInfo `json:"tasks,omitempty"`
}

// Sync pushes every included store record into the index in batches.
//
// With a checkpoint each batch is confirmed before its offset is saved.
// Without one all batches are enqueued first and then awaited. Any failed
// task aborts the sync with ErrRemoteTask.
func (i *Index[T]) Sync(ctx context.Context, opts SyncOptions) (rep SyncReport, err error) {
	name := i.meta.IndexName
	rep.Index = name

	store, err := i.storeOrErr("sync")
	if err != nil {
		return rep, err
	}
	if i.client.settings.Offline {
		i.client.obs.warn("sync skipped: offline", zap.String("index", name))
		return rep, nil
	}

	size := opts.BatchSize
	if size <= 0 {
		size = i.client.settings.BatchSize
	}

	start := time.Now()
	defer func() { i.client.obs.observe(name, "sync", start, err) }()

	offset := 0
	if opts.Checkpoint != nil && opts.Resume {
		saved, ok, lerr := opts.Checkpoint.Load(ctx, name)
		if lerr != nil {
			return rep, fmt.Errorf("sync %s: load checkpoint: %w", name, lerr)
		}
		if ok {
			offset = saved
		}
	}
	rep.ResumedFrom = offset

	var acked, pending []*meili.TaskInfo
	// Copied last so the report carries statuses updated by Await.
	defer func() {
		for _, info := range acked {
			rep.Tasks = append(rep.Tasks, *info)
		}
	}()
	err = store.Batches(ctx, size, offset, func(batch []T, next int) error {
		docs := make([]map[string]any, 0, len(batch))
		for k := range batch {
			item := &batch[k]
			if !i.Includes(item) {
				rep.Skipped++
				continue
			}
			doc, derr := i.Document(item)
			if derr != nil {
				return derr
			}
			docs = append(docs, doc)
		}

		if len(docs) > 0 {
			info, aerr := i.client.remote.AddDocuments(ctx, name, docs)
			if aerr != nil {
				return aerr
			}
			if info != nil {
				acked = append(acked, info)
			}
			rep.Batches++
			rep.Documents += len(docs)
			if opts.Checkpoint == nil {
				pending = append(pending, info)
				return nil
			}
			if aerr := i.client.remote.Await(ctx, info); aerr != nil {
				return aerr
			}
		}

		if opts.Checkpoint != nil {
			if serr := opts.Checkpoint.Save(ctx, name, next); serr != nil {
				return fmt.Errorf("save checkpoint: %w", serr)
			}
		}
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("sync %s: %w", name, err)
	}

	for _, info := range pending {
		if err = i.client.remote.Await(ctx, info); err != nil {
			return rep, fmt.Errorf("sync %s: %w", name, err)
		}
	}

	if opts.Checkpoint != nil {
		if err = opts.Checkpoint.Clear(ctx, name); err != nil {
			return rep, fmt.Errorf("sync %s: clear checkpoint: %w", name, err)
		}
	}
	return rep, nil
}
