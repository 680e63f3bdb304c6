package meilitest

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/meilisync/internal/meili"
)

type searchError struct {
	code string
	msg  string
}

func filterError(format string, args ...any) *searchError {
	return &searchError{code: "invalid_search_filter", msg: fmt.Sprintf(format, args...)}
}

func sortError(format string, args ...any) *searchError {
	return &searchError{code: "invalid_search_sort", msg: fmt.Sprintf(format, args...)}
}

type predicate func(doc map[string]any) bool

const num = `(-?\d+(?:\.\d+)?)`

var (
	reGeoRadius = regexp.MustCompile(`^_geoRadius\(\s*` + num + `\s*,\s*` + num + `\s*,\s*` + num + `\s*\)$`)
	reGeoBox    = regexp.MustCompile(`^_geoBoundingBox\(\s*\[\s*` + num + `\s*,\s*` + num +
		`\s*\]\s*,\s*\[\s*` + num + `\s*,\s*` + num + `\s*\]\s*\)$`)
	reIsNotNull = regexp.MustCompile(`^(\S+) IS NOT NULL$`)
	reIsNull    = regexp.MustCompile(`^(\S+) IS NULL$`)
	reIsEmpty   = regexp.MustCompile(`^(\S+) IS EMPTY$`)
	reNotExists = regexp.MustCompile(`^(\S+) NOT EXISTS$`)
	reExists    = regexp.MustCompile(`^(\S+) EXISTS$`)
	reIn        = regexp.MustCompile(`^(\S+) IN \[(.*)\]$`)
	reRange     = regexp.MustCompile(`^(\S+) ` + num + ` TO ` + num + `$`)
	reCompare   = regexp.MustCompile(`^(\S+) (>=|<=|!=|>|<|=) (.+)$`)
	reGeoPoint  = regexp.MustCompile(`^_geoPoint\(\s*` + num + `\s*,\s*` + num + `\s*\):(asc|desc)$`)
)

func runSearch(docs []map[string]any, settings meili.Settings, req meili.SearchRequest) ([]map[string]any, *searchError) {
	preds := make([]predicate, 0, len(req.Filter))
	for _, expr := range req.Filter {
		p, err := compileFilter(expr, settings.FilterableAttributes)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	less, serr := compileSort(req.Sort, settings.SortableAttributes)
	if serr != nil {
		return nil, serr
	}

	attrs := searchAttributes(settings.SearchableAttributes, req.AttributesToSearchOn)
	terms := strings.Fields(strings.ToLower(req.Q))

	var hits []map[string]any
	for _, d := range docs {
		if !matchAll(preds, d) {
			continue
		}
		if !matchTerms(d, attrs, terms, req.MatchingStrategy) {
			continue
		}
		hits = append(hits, d)
	}
	if less != nil {
		sort.SliceStable(hits, func(i, j int) bool { return less(hits[i], hits[j]) })
	}
	if hits == nil {
		hits = []map[string]any{}
	}
	return hits, nil
}

func matchAll(preds []predicate, d map[string]any) bool {
	for _, p := range preds {
		if !p(d) {
			return false
		}
	}
	return true
}

// searchAttributes intersects the index searchable attributes with the
// per-request restriction. A nil result means every attribute.
func searchAttributes(searchable, restrict []string) []string {
	base := searchable
	if slices.Contains(base, "*") {
		base = nil
	}
	if len(restrict) == 0 || slices.Contains(restrict, "*") {
		return base
	}
	if base == nil {
		return restrict
	}
	var out []string
	for _, a := range restrict {
		if slices.Contains(base, a) {
			out = append(out, a)
		}
	}
	return out
}

func matchTerms(d map[string]any, attrs, terms []string, strategy string) bool {
	if len(terms) == 0 {
		return true
	}
	var words []string
	collect := func(v any) {
		words = append(words, strings.Fields(strings.ToLower(fmt.Sprint(v)))...)
	}
	if attrs == nil {
		for _, v := range d {
			collect(v)
		}
	} else {
		for _, a := range attrs {
			if v, ok := d[a]; ok {
				collect(v)
			}
		}
	}

	found := 0
	for _, t := range terms {
		if slices.ContainsFunc(words, func(w string) bool { return strings.HasPrefix(w, t) }) {
			found++
		}
	}
	if strategy == meili.MatchingAll {
		return found == len(terms)
	}
	return found > 0
}

func compileFilter(expr string, filterable []string) (predicate, *searchError) {
	expr = strings.TrimSpace(expr)
	allowed := func(field string) *searchError {
		if !slices.Contains(filterable, field) {
			return filterError("Attribute `%s` is not filterable.", field)
		}
		return nil
	}

	if m := reGeoRadius.FindStringSubmatch(expr); m != nil {
		if err := allowed("_geo"); err != nil {
			return nil, err
		}
		lat, lng, r := atof(m[1]), atof(m[2]), atof(m[3])
		return func(d map[string]any) bool {
			plat, plng, ok := geoOf(d)
			return ok && haversine(lat, lng, plat, plng) <= r
		}, nil
	}
	if m := reGeoBox.FindStringSubmatch(expr); m != nil {
		if err := allowed("_geo"); err != nil {
			return nil, err
		}
		topLat, topLng, botLat, botLng := atof(m[1]), atof(m[2]), atof(m[3]), atof(m[4])
		return func(d map[string]any) bool {
			plat, plng, ok := geoOf(d)
			return ok && plat <= topLat && plat >= botLat && plng <= topLng && plng >= botLng
		}, nil
	}

	type unary struct {
		re *regexp.Regexp
		fn func(v any, present bool) bool
	}
	for _, u := range []unary{
		{reIsNotNull, func(v any, present bool) bool { return present && v != nil }},
		{reIsNull, func(v any, present bool) bool { return present && v == nil }},
		{reIsEmpty, func(v any, present bool) bool { return present && isEmpty(v) }},
		{reNotExists, func(_ any, present bool) bool { return !present }},
		{reExists, func(_ any, present bool) bool { return present }},
	} {
		if m := u.re.FindStringSubmatch(expr); m != nil {
			if err := allowed(m[1]); err != nil {
				return nil, err
			}
			field, fn := m[1], u.fn
			return func(d map[string]any) bool {
				v, ok := d[field]
				return fn(v, ok)
			}, nil
		}
	}

	if m := reIn.FindStringSubmatch(expr); m != nil {
		if err := allowed(m[1]); err != nil {
			return nil, err
		}
		var lits []any
		for _, part := range splitList(m[2]) {
			lit, err := parseLiteral(part)
			if err != nil {
				return nil, filterError("%s in `%s`", err, expr)
			}
			lits = append(lits, lit)
		}
		field := m[1]
		return func(d map[string]any) bool {
			return anyValue(d[field], func(v any) bool {
				return slices.ContainsFunc(lits, func(l any) bool { return equal(v, l) })
			})
		}, nil
	}

	if m := reRange.FindStringSubmatch(expr); m != nil {
		if err := allowed(m[1]); err != nil {
			return nil, err
		}
		field, lo, hi := m[1], atof(m[2]), atof(m[3])
		return func(d map[string]any) bool {
			return anyValue(d[field], func(v any) bool {
				f, ok := toFloat(v)
				return ok && f >= lo && f <= hi
			})
		}, nil
	}

	if m := reCompare.FindStringSubmatch(expr); m != nil {
		if err := allowed(m[1]); err != nil {
			return nil, err
		}
		lit, err := parseLiteral(m[3])
		if err != nil {
			return nil, filterError("%s in `%s`", err, expr)
		}
		field, op := m[1], m[2]
		return func(d map[string]any) bool {
			return anyValue(d[field], func(v any) bool { return compare(v, op, lit) })
		}, nil
	}

	return nil, filterError("Was expecting an operation in `%s`.", expr)
}

func compare(v any, op string, lit any) bool {
	switch op {
	case "=":
		return equal(v, lit)
	case "!=":
		return !equal(v, lit)
	}
	a, ok1 := toFloat(v)
	b, ok2 := toFloat(lit)
	if !ok1 || !ok2 {
		return false
	}
	switch op {
	case ">=":
		return a >= b
	case ">":
		return a > b
	case "<=":
		return a <= b
	case "<":
		return a < b
	}
	return false
}

func equal(v, lit any) bool {
	if a, ok := toFloat(v); ok {
		if b, ok := toFloat(lit); ok {
			return a == b
		}
	}
	return strings.EqualFold(fmt.Sprint(v), fmt.Sprint(lit))
}

func anyValue(v any, fn func(any) bool) bool {
	if arr, ok := v.([]any); ok {
		return slices.ContainsFunc(arr, fn)
	}
	if v == nil {
		return false
	}
	return fn(v)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// splitList splits a comma-separated literal list, honouring quotes.
func splitList(s string) []string {
	var (
		parts   []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
			continue
		case r == '\\' && quoted:
			escaped = true
		case r == '\'':
			quoted = !quoted
		case r == ',' && !quoted:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if strings.TrimSpace(cur.String()) != "" {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}
	return parts
}

func parseLiteral(s string) (any, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		inner := s[1 : len(s)-1]
		var b strings.Builder
		escaped := false
		for _, r := range inner {
			if escaped {
				b.WriteRune(r)
				escaped = false
				continue
			}
			if r == '\\' {
				escaped = true
				continue
			}
			b.WriteRune(r)
		}
		return b.String(), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return nil, fmt.Errorf("invalid literal %q", s)
}

func compileSort(specs, sortable []string) (func(a, b map[string]any) bool, *searchError) {
	if len(specs) == 0 {
		return nil, nil
	}
	type key struct {
		value func(d map[string]any) (any, bool)
		desc  bool
	}
	keys := make([]key, 0, len(specs))
	for _, spec := range specs {
		if m := reGeoPoint.FindStringSubmatch(spec); m != nil {
			if !slices.Contains(sortable, "_geo") {
				return nil, sortError("Attribute `_geo` is not sortable.")
			}
			lat, lng := atof(m[1]), atof(m[2])
			keys = append(keys, key{
				value: func(d map[string]any) (any, bool) {
					plat, plng, ok := geoOf(d)
					if !ok {
						return nil, false
					}
					return haversine(lat, lng, plat, plng), true
				},
				desc: m[3] == "desc",
			})
			continue
		}
		field, dir, ok := strings.Cut(spec, ":")
		if !ok || (dir != "asc" && dir != "desc") {
			return nil, sortError("Invalid syntax for the sort parameter `%s`.", spec)
		}
		if !slices.Contains(sortable, field) {
			return nil, sortError("Attribute `%s` is not sortable.", field)
		}
		keys = append(keys, key{
			value: func(d map[string]any) (any, bool) {
				v, ok := d[field]
				return v, ok && v != nil
			},
			desc: dir == "desc",
		})
	}

	return func(a, b map[string]any) bool {
		for _, k := range keys {
			va, oka := k.value(a)
			vb, okb := k.value(b)
			switch {
			case !oka && !okb:
				continue
			case !oka:
				return false
			case !okb:
				return true
			}
			c := cmpValues(va, vb)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	}, nil
}

func cmpValues(a, b any) int {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	switch {
	case oka && okb:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case oka:
		return -1
	case okb:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func geoOf(d map[string]any) (float64, float64, bool) {
	g, ok := d["_geo"].(map[string]any)
	if !ok {
		return 0, 0, false
	}
	lat, ok1 := toFloat(g["lat"])
	lng, ok2 := toFloat(g["lng"])
	return lat, lng, ok1 && ok2
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

const earthRadiusMeters = 6371008.8

func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
