package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUsage marks a malformed query built by the caller.
var ErrUsage = errors.New("invalid query usage")

// UsageError describes which builder call was misused.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string { return e.Op + ": " + e.Msg }
func (e *UsageError) Unwrap() error { return ErrUsage }

func usagef(op, format string, args ...any) error {
	return &UsageError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Operator is the comparison selected by a lookup suffix.
type Operator int

// Supported lookup operators.
const (
	Exact Operator = iota
	Gte
	Gt
	Lte
	Lt
	In
	Range
	Exists
	IsNull
)

var operatorNames = map[Operator]string{
	Exact:  "exact",
	Gte:    "gte",
	Gt:     "gt",
	Lte:    "lte",
	Lt:     "lt",
	In:     "in",
	Range:  "range",
	Exists: "exists",
	IsNull: "isnull",
}

func (o Operator) String() string {
	if n, ok := operatorNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// suffixes in match precedence.
var suffixes = []struct {
	suffix string
	op     Operator
}{
	{"__exact", Exact},
	{"__gte", Gte},
	{"__gt", Gt},
	{"__lte", Lte},
	{"__lt", Lt},
	{"__in", In},
	{"__range", Range},
	{"__exists", Exists},
	{"__isnull", IsNull},
}

// Lookup is a parsed "field__operator" key.
type Lookup struct {
	Field string
	Op    Operator
}

// ParseLookup splits a lookup key. The field is the text before the first
// "__"; a key without "__" is an exact match.
func ParseLookup(key string) (Lookup, error) {
	field, _, hasOp := strings.Cut(key, "__")
	if field == "" {
		return Lookup{}, usagef("filter", "empty field in lookup %q", key)
	}
	if !hasOp {
		return Lookup{Field: field, Op: Exact}, nil
	}
	for _, s := range suffixes {
		if strings.HasSuffix(key, s.suffix) {
			return Lookup{Field: field, Op: s.op}, nil
		}
	}
	return Lookup{}, usagef("filter", "unsupported lookup %q", key)
}
