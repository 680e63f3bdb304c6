package meilisync

import (
	"errors"
	"testing"
)

func TestDocument_Default(t *testing.T) {
	c, _ := New(WithOffline(true))
	idx := registerPlaces(t, c)

	p := places()[0]
	doc, err := idx.Document(&p)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["id"] != int64(1) || doc[NativeKey] != int64(1) {
		t.Errorf("id/pk = %v/%v", doc["id"], doc[NativeKey])
	}
	if doc["name"] != "Blue Cafe" || doc["rating"] != 4.5 {
		t.Errorf("fields = %v", doc)
	}
	if _, ok := doc["hidden"]; ok {
		t.Error("excluded field serialized")
	}
	geo, ok := doc[GeoField].(Geo)
	if !ok || geo.Lat != 34.77 || geo.Lng != 32.42 {
		t.Errorf("_geo = %#v", doc[GeoField])
	}
}

func TestDocument_CustomPrimaryKey(t *testing.T) {
	c, _ := New(WithOffline(true))
	idx, err := Register[article](t.Context(), c, IndexConfig{PrimaryKey: "slug"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	a := article{ID: 7, Slug: "hello-world", Title: "Hello"}
	doc, err := idx.Document(&a)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["id"] != "hello-world" || doc["slug"] != "hello-world" {
		t.Errorf("key fields = %v", doc)
	}
	if doc[NativeKey] != uint(7) {
		t.Errorf("pk = %#v, want native identity", doc[NativeKey])
	}
	if idx.Key(&a) != "hello-world" {
		t.Errorf("Key = %v", idx.Key(&a))
	}
	if f := idx.schema.storeField(idx.meta.IndexConfig); f != "Slug" {
		t.Errorf("store field = %q, want Slug", f)
	}
}

func TestDocument_NativeFieldNameAsPrimaryKey(t *testing.T) {
	c, _ := New(WithOffline(true))
	idx, err := Register[article](t.Context(), c, IndexConfig{PrimaryKey: "id"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if f := idx.schema.storeField(idx.meta.IndexConfig); f != "" {
		t.Errorf("store field = %q, want native", f)
	}
	a := article{ID: 3, Slug: "s"}
	if idx.Key(&a) != uint(3) {
		t.Errorf("Key = %#v", idx.Key(&a))
	}
}

func TestDocument_IncludePKInSearch(t *testing.T) {
	c, _ := New(WithOffline(true))
	idx, err := Register[pinned](t.Context(), c, IndexConfig{IncludePKInSearch: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	doc, err := idx.Document(&pinned{Key: "k9", Label: "x"})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["key"] != "k9" {
		t.Errorf("key = %#v, want identity kept in document", doc["key"])
	}

	plain, err := Register[place](t.Context(), c, IndexConfig{})
	if err != nil {
		t.Fatalf("Register place: %v", err)
	}
	p := places()[1]
	doc, err = plain.Document(&p)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["id"] != int64(2) {
		t.Errorf("id = %#v", doc["id"])
	}
}

func TestDocument_IncludePKKeepsResolvedID(t *testing.T) {
	c, _ := New(WithOffline(true))
	idx, err := Register[article](t.Context(), c, IndexConfig{PrimaryKey: "slug", IncludePKInSearch: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	doc, err := idx.Document(&article{ID: 4, Slug: "four"})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["id"] != "four" || doc[NativeKey] != uint(4) {
		t.Errorf("id/pk = %#v/%#v", doc["id"], doc[NativeKey])
	}
}

func TestDocument_SerializerAndGeoLocator(t *testing.T) {
	c, _ := New(WithOffline(true))
	idx, err := Register[pinned](t.Context(), c, IndexConfig{SupportsGeo: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	doc, err := idx.Document(&pinned{Key: "k1", Label: "home", X: 2, Y: 1})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["label"] != "pin:home" {
		t.Errorf("label = %v", doc["label"])
	}
	if doc["id"] != "k1" || doc[NativeKey] != "k1" {
		t.Errorf("id/pk = %v/%v", doc["id"], doc[NativeKey])
	}
	if geo := doc[GeoField].(Geo); geo.Lat != 1 || geo.Lng != 2 {
		t.Errorf("_geo = %+v", geo)
	}
}

func TestIncludes(t *testing.T) {
	c, _ := New(WithOffline(true))
	idx := registerPlaces(t, c)

	all := places()
	if !idx.Includes(&all[0]) {
		t.Error("visible place excluded")
	}
	if idx.Includes(&all[3]) {
		t.Error("hidden place included")
	}
	if idx.Includes(nil) {
		t.Error("nil included")
	}
}

type badTag struct {
	ID   int
	Name string `meili:"search"`
}

type onlyLat struct {
	ID  int
	Lat float64 `meili:"lat"`
}

type twoPKs struct {
	A int `meili:"pk"`
	B int `meili:"pk"`
}

func TestParseSchema_Errors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"unknown tag", func() error { _, err := parseSchema[badTag](); return err }},
		{"lat without lng", func() error { _, err := parseSchema[onlyLat](); return err }},
		{"duplicate pk", func() error { _, err := parseSchema[twoPKs](); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestParseSchema_IdentityPrecedence(t *testing.T) {
	type tagged struct {
		ID   int
		Code string `meili:"pk"`
	}
	type byGorm struct {
		ID  int
		Ref int `gorm:"column:ref;primaryKey"`
	}

	m, err := parseSchema[tagged]()
	if err != nil {
		t.Fatalf("parseSchema: %v", err)
	}
	if m.native.goName != "Code" {
		t.Errorf("tagged native = %s, want Code", m.native.goName)
	}
	m, err = parseSchema[byGorm]()
	if err != nil {
		t.Fatalf("parseSchema: %v", err)
	}
	if m.native.goName != "Ref" {
		t.Errorf("gorm native = %s, want Ref", m.native.goName)
	}
}
