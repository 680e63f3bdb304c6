package posts

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kailas-cloud/meilisync"
	"github.com/kailas-cloud/meilisync/internal/meili"
	"github.com/kailas-cloud/meilisync/internal/meili/meilitest"
	"github.com/kailas-cloud/meilisync/internal/store"
)

func setup(t *testing.T) (*meilitest.Server, *gorm.DB, *Indexes) {
	t.Helper()
	engine := meilitest.NewServer()
	t.Cleanup(engine.Close)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.Open(store.Config{
		Driver:   store.DriverSQLite,
		DSN:      "file:" + name + "?mode=memory&cache=shared",
		LogLevel: "silent",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	remote, err := meili.New(meili.Config{Host: engine.URL, Sync: true, PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("meili.New: %v", err)
	}
	c, err := meilisync.New(meilisync.WithRemote(remote), meilisync.WithSync(true))
	if err != nil {
		t.Fatalf("meilisync.New: %v", err)
	}
	idx, err := Setup(context.Background(), c, db)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return engine, db, idx
}

func TestSetup_RegistersIndexes(t *testing.T) {
	engine, _, _ := setup(t)

	info, settings, ok := engine.Index("posts")
	if !ok {
		t.Fatal("posts index not created")
	}
	if info.UID != "posts" || len(settings.SearchableAttributes) != 3 {
		t.Errorf("posts index = %+v, settings = %+v", info, settings)
	}
	_, settings, ok = engine.Index("venues")
	if !ok {
		t.Fatal("venues index not created")
	}
	if len(settings.FilterableAttributes) == 0 || settings.FilterableAttributes[0] != meilisync.GeoField {
		t.Errorf("venues filterable = %v, want _geo first", settings.FilterableAttributes)
	}
}

func TestPosts_MirrorCreateAndDraft(t *testing.T) {
	engine, db, _ := setup(t)

	published := Post{Title: "Hello", Body: "first post"}
	draft := Post{Title: "WIP", Body: "unfinished", Draft: true}
	if err := db.Create(&published).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := db.Create(&draft).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc, ok := engine.Document("posts", "1")
	if !ok {
		t.Fatal("published post not indexed")
	}
	if doc["title"] != "Hello" {
		t.Errorf("doc = %v", doc)
	}
	if _, ok := doc["draft"]; ok {
		t.Error("excluded field draft present in document")
	}
	if _, ok := engine.Document("posts", "2"); ok {
		t.Error("draft post indexed")
	}
}

func TestPosts_DeleteByIDRemovesDocument(t *testing.T) {
	engine, db, idx := setup(t)
	ctx := context.Background()

	p := Post{Title: "Short lived", Body: "gone soon"}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := db.Delete(&Post{}, p.ID).Error; err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := engine.Document("posts", fmt.Sprint(p.ID)); ok {
		t.Error("document still indexed after delete by id")
	}
	got, err := idx.Posts.Query().Search(ctx, "short")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("search after delete = %+v", got)
	}
}

func TestVenues_SlugKeyAndGeoSearch(t *testing.T) {
	engine, db, idx := setup(t)
	ctx := context.Background()

	venues := []Venue{
		{Name: "Harbour Cafe", Kind: "cafe", Rating: 4, Lat: 34.77, Lng: 32.42},
		{Name: "Hill Bar", Kind: "bar", Rating: 3, Lat: 40, Lng: 10},
		{Name: "Old Mill", Kind: "cafe", Rating: 5, Lat: 34.76, Lng: 32.41, Closed: true},
	}
	if err := db.Create(&venues).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := venues[0]
	if _, err := uuid.Parse(first.Slug); err != nil {
		t.Fatalf("slug %q is not a uuid: %v", first.Slug, err)
	}
	doc, ok := engine.Document("venues", first.Slug)
	if !ok {
		t.Fatalf("venue not indexed under slug %s", first.Slug)
	}
	if fmt.Sprint(doc["pk"]) != fmt.Sprint(first.ID) {
		t.Errorf("pk = %v (%T), want native id %d", doc["pk"], doc["pk"], first.ID)
	}

	got, err := idx.Venues.Query().
		Filter(meilisync.Radius{Lat: 34.77, Lng: 32.42, Meters: 5000}).
		Search(ctx, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Slug != first.Slug {
		t.Errorf("radius search = %+v, want only %s", got, first.Name)
	}
}

func TestPosts_SyncBackfill(t *testing.T) {
	engine, db, idx := setup(t)
	ctx := context.Background()

	rows := []Post{{Title: "a"}, {Title: "b"}, {Title: "c", Draft: true}}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := idx.Posts.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n := len(engine.Documents("posts")); n != 0 {
		t.Fatalf("Clear left %d documents", n)
	}

	rep, err := idx.Posts.Sync(ctx, meilisync.SyncOptions{BatchSize: 2})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Documents != 2 || rep.Skipped != 1 {
		t.Errorf("report = %+v", rep)
	}
	n, err := idx.Posts.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count = %d, %v", n, err)
	}
}
