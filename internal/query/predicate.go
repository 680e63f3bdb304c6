package query

import (
	"reflect"
	"strconv"
	"strings"
)

// Predicate is one positional argument of Filter.
// Only the types of this package implement it.
type Predicate interface {
	expression(geo bool) (string, error)
}

// Point is a geographic coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Radius selects documents within Meters of the center.
type Radius struct {
	Lat    float64
	Lng    float64
	Meters int
}

func (r Radius) expression(geo bool) (string, error) {
	if !geo {
		return "", usagef("filter", "geo radius on an index without geo support")
	}
	if r.Meters < 0 {
		return "", usagef("filter", "negative geo radius %d", r.Meters)
	}
	return "_geoRadius(" + formatFloat(r.Lat) + ", " + formatFloat(r.Lng) + ", " +
		strconv.Itoa(r.Meters) + ")", nil
}

// BoundingBox selects documents inside the rectangle.
type BoundingBox struct {
	TopRight   Point
	BottomLeft Point
}

func (b BoundingBox) expression(geo bool) (string, error) {
	if !geo {
		return "", usagef("filter", "geo bounding box on an index without geo support")
	}
	return "_geoBoundingBox([" + formatFloat(b.TopRight.Lat) + ", " + formatFloat(b.TopRight.Lng) + "], [" +
		formatFloat(b.BottomLeft.Lat) + ", " + formatFloat(b.BottomLeft.Lng) + "])", nil
}

// Span is an inclusive numeric range for the "__range" lookup.
type Span struct {
	Low  any
	High any
}

// Cond is a keyword-style condition such as Field("price__gte", 10).
type Cond struct {
	Lookup string
	Value  any
}

// Field builds a keyword-style condition.
func Field(lookup string, value any) Cond {
	return Cond{Lookup: lookup, Value: value}
}

func (c Cond) expression(_ bool) (string, error) {
	l, err := ParseLookup(c.Lookup)
	if err != nil {
		return "", err
	}
	return Compile(l, c.Value)
}

// Compile renders a single lookup and value in the engine filter grammar.
func Compile(l Lookup, value any) (string, error) {
	f := l.Field
	switch l.Op {
	case Exact:
		return compileExact(f, value)
	case Gte, Gt, Lte, Lt:
		n, ok := number(value)
		if !ok {
			return "", usagef("filter", "%s__%s needs a number, got %T", f, l.Op, value)
		}
		return f + " " + comparators[l.Op] + " " + n, nil
	case In:
		return compileIn(f, value)
	case Range:
		lo, hi, err := rangeBounds(f, value)
		if err != nil {
			return "", err
		}
		return f + " " + lo + " TO " + hi, nil
	case Exists:
		b, ok := value.(bool)
		if !ok {
			return "", usagef("filter", "%s__exists needs a bool, got %T", f, value)
		}
		if b {
			return f + " EXISTS", nil
		}
		return f + " NOT EXISTS", nil
	case IsNull:
		b, ok := value.(bool)
		if !ok {
			return "", usagef("filter", "%s__isnull needs a bool, got %T", f, value)
		}
		if b {
			return f + " IS NULL", nil
		}
		return f + " IS NOT NULL", nil
	default:
		return "", usagef("filter", "unknown operator %s", l.Op)
	}
}

var comparators = map[Operator]string{
	Gte: ">=",
	Gt:  ">",
	Lte: "<=",
	Lt:  "<",
}

func compileExact(f string, value any) (string, error) {
	v := deref(value)
	if !v.IsValid() {
		return f + " IS NULL", nil
	}
	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return f + " IS EMPTY", nil
		}
		return f + " = " + quote(v.String()), nil
	case reflect.Slice, reflect.Array, reflect.Map:
		if v.Len() == 0 {
			return f + " IS EMPTY", nil
		}
		return "", usagef("filter", "%s: exact match on a non-empty %s, use __in", f, v.Kind())
	case reflect.Bool:
		return f + " = " + strconv.FormatBool(v.Bool()), nil
	}
	if n, ok := number(value); ok {
		return f + " = " + n, nil
	}
	return "", usagef("filter", "%s: unsupported value type %T", f, value)
}

func compileIn(f string, value any) (string, error) {
	v := deref(value)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return "", usagef("filter", "%s__in needs a list, got %T", f, value)
	}
	items := make([]string, v.Len())
	for i := range v.Len() {
		lit, err := literal(f, v.Index(i).Interface())
		if err != nil {
			return "", err
		}
		items[i] = lit
	}
	return f + " IN [" + strings.Join(items, ", ") + "]", nil
}

func rangeBounds(f string, value any) (string, string, error) {
	var lo, hi any
	switch t := value.(type) {
	case Span:
		lo, hi = t.Low, t.High
	case *Span:
		if t == nil {
			return "", "", usagef("filter", "%s__range needs two bounds", f)
		}
		lo, hi = t.Low, t.High
	default:
		v := deref(value)
		if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) || v.Len() != 2 {
			return "", "", usagef("filter", "%s__range needs two bounds, got %T", f, value)
		}
		lo, hi = v.Index(0).Interface(), v.Index(1).Interface()
	}
	l, ok1 := number(lo)
	h, ok2 := number(hi)
	if !ok1 || !ok2 {
		return "", "", usagef("filter", "%s__range bounds must be numbers", f)
	}
	return l, h, nil
}

// literal renders a list element: quoted string, number or bool.
func literal(f string, value any) (string, error) {
	v := deref(value)
	if !v.IsValid() {
		return "", usagef("filter", "%s: null inside a list", f)
	}
	switch v.Kind() {
	case reflect.String:
		return quote(v.String()), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	}
	if n, ok := number(v.Interface()); ok {
		return n, nil
	}
	return "", usagef("filter", "%s: unsupported list element %T", f, value)
}

// number renders integer and float kinds. Bools are not numbers.
func number(value any) (string, bool) {
	v := deref(value)
	if !v.IsValid() {
		return "", false
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return formatFloat(v.Float()), true
	default:
		return "", false
	}
}

func deref(value any) reflect.Value {
	v := reflect.ValueOf(value)
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var quoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quote(s string) string {
	return "'" + quoter.Replace(s) + "'"
}
