// Package posts is the demo application wired to meilisync: blog posts
// indexed by their row id and venues indexed by a generated uuid slug
// with coordinates.
package posts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kailas-cloud/meilisync"
	"github.com/kailas-cloud/meilisync/internal/store"
)

// Post is a blog post. Drafts stay out of the index.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255" json:"title"`
	Body      string    `json:"body"`
	Draft     bool      `json:"draft" meili:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// MeiliInclude implements meilisync.Includer.
func (p *Post) MeiliInclude() bool { return !p.Draft }

// Venue is a place a post can be about. It is indexed under its slug.
type Venue struct {
	ID     uint    `gorm:"primaryKey" json:"id"`
	Slug   string  `gorm:"size:36;uniqueIndex" json:"slug"`
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	Rating float64 `json:"rating"`
	Lat    float64 `json:"lat" meili:"lat"`
	Lng    float64 `json:"lng" meili:"lng"`
	Closed bool    `json:"closed" meili:"-"`
}

// MeiliInclude implements meilisync.Includer.
func (v *Venue) MeiliInclude() bool { return !v.Closed }

// BeforeCreate assigns a slug to new venues.
func (v *Venue) BeforeCreate(*gorm.DB) error {
	if v.Slug == "" {
		v.Slug = uuid.NewString()
	}
	return nil
}

// PostIndex mirrors posts into the "posts" index.
var PostIndex = meilisync.IndexConfig{
	IndexName:        "posts",
	DisplayedFields:  []string{"id", "title", "body"},
	SearchableFields: []string{"id", "title", "body"},
	FilterableFields: []string{"title"},
	SortableFields:   []string{"created_at"},
}

// VenueIndex mirrors venues into the "venues" index keyed by slug.
var VenueIndex = meilisync.IndexConfig{
	IndexName:        "venues",
	PrimaryKey:       "slug",
	SearchableFields: []string{"name", "kind"},
	FilterableFields: []string{"kind", "rating"},
	SortableFields:   []string{"rating"},
	SupportsGeo:      true,
}

// Models lists the tables owned by the demo application.
func Models() []any { return []any{&Post{}, &Venue{}} }

// Migrate creates or updates the demo tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate posts: %w", err)
	}
	return nil
}

// Indexes holds the registered demo indexes.
type Indexes struct {
	Posts  *meilisync.Index[Post]
	Venues *meilisync.Index[Venue]
}

// Setup registers both indexes, attaches their repositories and binds
// the gorm callbacks that keep them in sync.
func Setup(ctx context.Context, c *meilisync.Client, db *gorm.DB) (*Indexes, error) {
	posts, err := register[Post](ctx, c, db, PostIndex)
	if err != nil {
		return nil, err
	}
	venues, err := register[Venue](ctx, c, db, VenueIndex)
	if err != nil {
		return nil, err
	}
	return &Indexes{Posts: posts, Venues: venues}, nil
}

func register[T any](ctx context.Context, c *meilisync.Client, db *gorm.DB, cfg meilisync.IndexConfig) (*meilisync.Index[T], error) {
	idx, err := meilisync.Register[T](ctx, c, cfg)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", cfg.IndexName, err)
	}
	repo, err := store.NewRepository[T](db)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", cfg.IndexName, err)
	}
	idx.WithStore(repo)
	if err := store.Bind[T](db, idx); err != nil {
		return nil, fmt.Errorf("bind %s: %w", cfg.IndexName, err)
	}
	return idx, nil
}
