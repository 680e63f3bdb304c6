package meilisync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/kailas-cloud/meilisync/internal/meili"
)

const tagKey = "meili"

// schemaMeta holds struct metadata parsed once per registered type.
type schemaMeta struct {
	typ      reflect.Type
	typeName string
	typeKey  string // package path qualified

	fields   []fieldInfo
	native   *fieldInfo // store identity
	lat, lng *fieldInfo // nil unless tagged
	excluded map[string]struct{}

	hasIncluder   bool
	hasSerializer bool
	hasGeoLocator bool
}

type fieldInfo struct {
	goName  string
	docName string
	index   []int
}

// parseSchema reflects on T and extracts meili/json/gorm tag metadata.
func parseSchema[T any]() (*schemaMeta, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, configErrorf("type %s is not a struct", t)
	}

	ptr := reflect.PointerTo(t)
	meta := &schemaMeta{
		typ:           t,
		typeName:      t.Name(),
		typeKey:       t.PkgPath() + "." + t.Name(),
		excluded:      make(map[string]struct{}),
		hasIncluder:   ptr.Implements(reflect.TypeFor[Includer]()),
		hasSerializer: ptr.Implements(reflect.TypeFor[Serializer]()),
		hasGeoLocator: ptr.Implements(reflect.TypeFor[GeoLocator]()),
	}

	tagged, byGorm, byName, lat, lng := -1, -1, -1, -1, -1
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		i := len(meta.fields)
		meta.fields = append(meta.fields, fieldInfo{goName: f.Name, docName: jsonName(f), index: f.Index})

		switch tag := f.Tag.Get(tagKey); tag {
		case "":
		case "pk":
			if tagged != -1 {
				return nil, configErrorf("duplicate meili:\"pk\" tag on field %s", f.Name)
			}
			tagged = i
		case "lat":
			if lat != -1 {
				return nil, configErrorf("duplicate meili:\"lat\" tag on field %s", f.Name)
			}
			lat = i
		case "lng":
			if lng != -1 {
				return nil, configErrorf("duplicate meili:\"lng\" tag on field %s", f.Name)
			}
			lng = i
		case "-":
			meta.excluded[meta.fields[i].docName] = struct{}{}
		default:
			return nil, configErrorf("unknown meili tag %q on field %s", tag, f.Name)
		}

		if byGorm == -1 && strings.Contains(strings.ToLower(f.Tag.Get("gorm")), "primarykey") {
			byGorm = i
		}
		if byName == -1 && f.Name == "ID" {
			byName = i
		}
	}

	meta.native = meta.at(tagged)
	if meta.native == nil {
		meta.native = meta.at(byGorm)
	}
	if meta.native == nil {
		meta.native = meta.at(byName)
	}
	meta.lat, meta.lng = meta.at(lat), meta.at(lng)

	if (meta.lat == nil) != (meta.lng == nil) {
		return nil, configErrorf("meili lat and lng tags must both be present in %s", t)
	}
	return meta, nil
}

func (m *schemaMeta) at(i int) *fieldInfo {
	if i < 0 {
		return nil
	}
	return &m.fields[i]
}

// jsonName mirrors encoding/json field naming.
func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// field finds a field by document name or Go name.
func (m *schemaMeta) field(name string) *fieldInfo {
	for i := range m.fields {
		if m.fields[i].docName == name {
			return &m.fields[i]
		}
	}
	for i := range m.fields {
		if m.fields[i].goName == name {
			return &m.fields[i]
		}
	}
	return nil
}

// validate checks cfg against the parsed type.
func (m *schemaMeta) validate(cfg IndexConfig) error {
	if m.native == nil {
		return configErrorf("%s has no identity field (tag one with meili:\"pk\")", m.typ)
	}
	if cfg.PrimaryKey != NativeKey && m.field(cfg.PrimaryKey) == nil {
		return configErrorf("primary key %q is not a field of %s", cfg.PrimaryKey, m.typ)
	}
	if cfg.SupportsGeo && !m.hasGeoLocator && m.lat == nil {
		return configErrorf("%s supports geo but has neither MeiliGeo nor meili lat/lng tags", m.typ)
	}
	return nil
}

// keyField returns the field holding the index primary key value.
func (m *schemaMeta) keyField(cfg IndexConfig) *fieldInfo {
	if cfg.PrimaryKey == NativeKey {
		return m.native
	}
	return m.field(cfg.PrimaryKey)
}

// storeField is the Go field name used to look records up by key, or ""
// for the native identity.
func (m *schemaMeta) storeField(cfg IndexConfig) string {
	kf := m.keyField(cfg)
	if kf == nil || kf == m.native {
		return ""
	}
	return kf.goName
}

func (m *schemaMeta) value(item any, f *fieldInfo) any {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v.FieldByIndex(f.index).Interface()
}

func (m *schemaMeta) isZero(item any, f *fieldInfo) bool {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v.FieldByIndex(f.index).IsZero()
}

// include applies the Includer capability.
func (m *schemaMeta) include(item any) bool {
	if !m.hasIncluder {
		return true
	}
	return item.(Includer).MeiliInclude()
}

// toDocument builds the engine document for item, which must be a *T.
func (m *schemaMeta) toDocument(cfg IndexConfig, item any) (map[string]any, error) {
	var (
		doc map[string]any
		err error
	)
	if m.hasSerializer {
		doc, err = item.(Serializer).MeiliSerialize()
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", m.typeName, err)
		}
		if doc == nil {
			doc = make(map[string]any)
		}
	} else {
		doc, err = m.defaultSerialize(item)
		if err != nil {
			return nil, err
		}
	}

	native := m.value(item, m.native)
	key := m.value(item, m.keyField(cfg))
	if cfg.IncludePKInSearch {
		doc[m.native.docName] = native
	}
	doc["id"] = key
	doc[NativeKey] = native
	doc[cfg.PrimaryKey] = key

	if cfg.SupportsGeo {
		geo, err := m.geo(item)
		if err != nil {
			return nil, err
		}
		doc[GeoField] = geo
	}
	return doc, nil
}

// defaultSerialize projects item through encoding/json, dropping excluded
// fields and the native identity.
func (m *schemaMeta) defaultSerialize(item any) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", m.typeName, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("serialize %s: %w", m.typeName, err)
	}
	meili.Normalize(doc)

	for name := range m.excluded {
		delete(doc, name)
	}
	delete(doc, m.native.docName)
	return doc, nil
}

func (m *schemaMeta) geo(item any) (Geo, error) {
	if m.hasGeoLocator {
		return item.(GeoLocator).MeiliGeo(), nil
	}
	if m.lat == nil {
		return Geo{}, configErrorf("%s has no geo source", m.typ)
	}
	lat, ok1 := toFloat64(reflect.ValueOf(m.value(item, m.lat)))
	lng, ok2 := toFloat64(reflect.ValueOf(m.value(item, m.lng)))
	if !ok1 || !ok2 {
		return Geo{}, configErrorf("%s lat/lng fields must be numeric", m.typ)
	}
	return Geo{Lat: lat, Lng: lng}, nil
}

func toFloat64(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	default:
		return 0, false
	}
}

// keyString renders a primary key value for a document URL.
func keyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
