package meilisync

import (
	"slices"

	"github.com/kailas-cloud/meilisync/internal/meili"
)

// NativeKey selects the store's own identity as the index primary key.
const NativeKey = "pk"

// GeoField is the document attribute holding coordinates.
const GeoField = "_geo"

// IndexConfig declares how an entity type is mirrored into the engine.
type IndexConfig struct {
	// IndexName defaults to the Go type name.
	IndexName string
	// PrimaryKey is NativeKey (default) or the document name of a field.
	PrimaryKey string

	DisplayedFields  []string // nil means every attribute
	SearchableFields []string // ordered by relevance; nil means every attribute
	FilterableFields []string
	SortableFields   []string

	SupportsGeo bool
	// IncludePKInSearch keeps the native identity field in the document
	// under its own name, making it searchable.
	IncludePKInSearch bool
}

// Meta is the frozen, resolved configuration of a registered index.
type Meta struct {
	IndexConfig
	TypeName string
	// Tasks acknowledged during registration. Empty offline.
	Tasks []meili.TaskInfo
}

func (m Meta) clone() Meta {
	out := m
	out.DisplayedFields = slices.Clone(m.DisplayedFields)
	out.SearchableFields = slices.Clone(m.SearchableFields)
	out.FilterableFields = slices.Clone(m.FilterableFields)
	out.SortableFields = slices.Clone(m.SortableFields)
	out.Tasks = slices.Clone(m.Tasks)
	return out
}

// Geo is a coordinate pair stored under the _geo attribute.
type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Includer decides whether an instance belongs in the index.
// Instances of types without it are always included.
type Includer interface {
	MeiliInclude() bool
}

// Serializer replaces the default JSON projection of an instance.
type Serializer interface {
	MeiliSerialize() (map[string]any, error)
}

// GeoLocator returns the coordinates of a geo-enabled instance.
type GeoLocator interface {
	MeiliGeo() Geo
}

// resolve fills defaults and prepends the geo attribute.
func (cfg IndexConfig) resolve(typeName string) IndexConfig {
	out := cfg
	if out.IndexName == "" {
		out.IndexName = typeName
	}
	if out.PrimaryKey == "" {
		out.PrimaryKey = NativeKey
	}
	out.DisplayedFields = slices.Clone(cfg.DisplayedFields)
	out.SearchableFields = slices.Clone(cfg.SearchableFields)
	out.FilterableFields = slices.Clone(cfg.FilterableFields)
	out.SortableFields = slices.Clone(cfg.SortableFields)
	if out.SupportsGeo {
		out.FilterableFields = withGeo(out.FilterableFields)
		out.SortableFields = withGeo(out.SortableFields)
	}
	return out
}

func withGeo(fields []string) []string {
	if slices.Contains(fields, GeoField) {
		return fields
	}
	return append([]string{GeoField}, fields...)
}

func (cfg IndexConfig) settings() meili.Settings {
	return meili.Settings{
		DisplayedAttributes:  cfg.DisplayedFields,
		SearchableAttributes: cfg.SearchableFields,
		FilterableAttributes: cfg.FilterableFields,
		SortableAttributes:   cfg.SortableFields,
	}
}
