package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilisync"
	"github.com/kailas-cloud/meilisync/internal/meili/meilitest"
	"github.com/kailas-cloud/meilisync/internal/posts"
	"github.com/kailas-cloud/meilisync/internal/store"
)

type env struct {
	engine *meilitest.Server
	config string
	dsn    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	engine := meilitest.NewServer()
	t.Cleanup(engine.Close)

	u, err := url.Parse(engine.URL)
	if err != nil {
		t.Fatalf("parse engine url: %v", err)
	}
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "app.db")
	cfg := fmt.Sprintf(`
meilisearch:
  host: %s
  port: %s
  sync: true
  default_batch_size: 100
database:
  driver: sqlite
  dsn: %s
  log_level: silent
logging:
  level: error
`, u.Hostname(), u.Port(), dsn)
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return &env{engine: engine, config: path, dsn: dsn}
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env", "local", "--config", e.config))
	err := cmd.Execute()
	return out.String(), err
}

// seed inserts rows without binding callbacks, so the engine stays empty.
func (e *env) seed(t *testing.T, rows ...posts.Post) {
	t.Helper()
	db, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: e.dsn, LogLevel: "silent"}, zap.NewNop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer func() { _ = store.Close(db) }()
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMigrateSyncClear(t *testing.T) {
	e := newEnv(t)

	if _, err := e.run(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e.seed(t, posts.Post{Title: "one"}, posts.Post{Title: "two"}, posts.Post{Title: "draft", Draft: true})

	out, err := e.run(t, "sync", "posts", "--batch-size", "2")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	var rep meilisync.SyncReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if rep.Index != "posts" || rep.Documents != 2 || rep.Skipped != 1 || rep.Batches != 1 {
		t.Errorf("report = %+v", rep)
	}
	if n := len(e.engine.Documents("posts")); n != 2 {
		t.Errorf("engine holds %d posts, want 2", n)
	}

	out, err = e.run(t, "clear", "Post")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if strings.TrimSpace(out) != "cleared posts" {
		t.Errorf("clear output = %q", out)
	}
	if n := len(e.engine.Documents("posts")); n != 0 {
		t.Errorf("engine holds %d posts after clear", n)
	}
}

func TestSync_Failures(t *testing.T) {
	e := newEnv(t)
	if _, err := e.run(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e.seed(t, posts.Post{Title: "one"})

	if _, err := e.run(t, "sync", "films"); !errors.Is(err, meilisync.ErrNotFound) {
		t.Errorf("unknown index: err = %v, want ErrNotFound", err)
	}
	if _, err := e.run(t, "sync", "posts", "--batch-size", "-3"); err == nil {
		t.Error("negative batch size accepted")
	}
	if _, err := e.run(t, "sync"); err == nil {
		t.Error("missing argument accepted")
	}

	e.engine.FailNext("documentAdditionOrUpdate", "invalid_document_fields", "bad field")
	if _, err := e.run(t, "sync", "posts"); !errors.Is(err, meilisync.ErrRemoteTask) {
		t.Errorf("failed task: err = %v, want ErrRemoteTask", err)
	}
}

func TestMissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "nope.yaml")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "meilisync dev") {
		t.Errorf("version output = %q", out.String())
	}
}
