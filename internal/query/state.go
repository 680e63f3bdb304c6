// Package query compiles chained filter and sort calls into the engine's
// textual search grammar. It performs no I/O.
package query

import (
	"slices"
	"strings"

	"github.com/kailas-cloud/meilisync/internal/meili"
)

// Defaults of a fresh State.
const (
	DefaultLimit            = 20
	DefaultMatchingStrategy = meili.MatchingLast
)

// State accumulates one search session.
type State struct {
	Offset               int
	Limit                int
	Filters              []string
	Sort                 []string
	MatchingStrategy     string
	AttributesToSearchOn []string

	searchOnSet bool
}

// New returns a State with engine defaults.
func New() *State {
	return &State{
		Limit:                DefaultLimit,
		MatchingStrategy:     DefaultMatchingStrategy,
		AttributesToSearchOn: []string{"*"},
	}
}

// Filter compiles every predicate and appends them only if all succeed.
// geo reports whether the index accepts geo predicates.
func (s *State) Filter(geo bool, preds ...Predicate) error {
	out := make([]string, 0, len(preds))
	for _, p := range preds {
		if p == nil {
			return usagef("filter", "nil predicate")
		}
		expr, err := p.expression(geo)
		if err != nil {
			return err
		}
		out = append(out, expr)
	}
	s.Filters = append(s.Filters, out...)
	return nil
}

// OrderBy appends sort clauses. A leading "-" sorts descending; names
// containing "geoPoint" are prefixed with "_" when needed.
func (s *State) OrderBy(fields ...string) error {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		dir := "asc"
		if name, ok := strings.CutPrefix(f, "-"); ok {
			f, dir = name, "desc"
		}
		if f == "" {
			return usagef("order_by", "empty sort field")
		}
		if strings.Contains(f, "geoPoint") && !strings.HasPrefix(f, "_") {
			f = "_" + f
		}
		out = append(out, f+":"+dir)
	}
	s.Sort = append(s.Sort, out...)
	return nil
}

// Slice sets offset to start and limit to stop.
func (s *State) Slice(start, stop int) error {
	if start < 0 || stop < 0 {
		return usagef("slice", "negative bounds [%d:%d]", start, stop)
	}
	s.Offset = start
	s.Limit = stop
	return nil
}

// SetMatchingStrategy accepts "last" or "all".
func (s *State) SetMatchingStrategy(strategy string) error {
	switch strategy {
	case meili.MatchingLast, meili.MatchingAll:
		s.MatchingStrategy = strategy
		return nil
	default:
		return usagef("matching_strategy", "unknown strategy %q", strategy)
	}
}

// SetAttributesToSearchOn restricts the searched attributes. The first call
// replaces the wildcard default; later calls append.
func (s *State) SetAttributesToSearchOn(attrs ...string) error {
	if slices.Contains(attrs, "") {
		return usagef("attributes_to_search_on", "empty attribute name")
	}
	if !s.searchOnSet {
		s.AttributesToSearchOn = nil
		s.searchOnSet = true
	}
	s.AttributesToSearchOn = append(s.AttributesToSearchOn, attrs...)
	return nil
}

// Request builds the search body for the query text q.
func (s *State) Request(q string) meili.SearchRequest {
	return meili.SearchRequest{
		Q:                    q,
		Offset:               s.Offset,
		Limit:                s.Limit,
		Filter:               slices.Clone(s.Filters),
		Sort:                 slices.Clone(s.Sort),
		MatchingStrategy:     s.MatchingStrategy,
		AttributesToSearchOn: slices.Clone(s.AttributesToSearchOn),
	}
}
