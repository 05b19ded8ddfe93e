package qframe

import "math"

// Kind identifies the concrete storage type backing a column.
type Kind int

const (
	KindInt64 Kind = iota
	KindFloat64
	KindString
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// column is the storage for one named vector of values. Every column
// implementation is a fixed-length, independently owned slice; the
// capability set (comparisons, aggregation, filter masking, bitwise ops)
// is implemented per-type by the filter/select/update evaluators via type
// switches on the concrete type, per spec.md's "one interface per column
// type" design note.
type column interface {
	Len() int
	Kind() Kind
	// Take returns a new column containing only the rows at idx, in the
	// given order. Used by filtering, sorting, distinct and grouping.
	Take(idx []int) column
	// ByteSize estimates the resident memory of this column.
	ByteSize() int64
	// Clone returns an independent copy (same values, new backing array).
	Clone() column
}

// int64Column stores whole numbers. Nulls are not representable in this
// column type (spec.md §3: null permitted only for float and string).
type int64Column struct {
	data []int64
}

func newInt64Column(data []int64) *int64Column { return &int64Column{data: data} }

func (c *int64Column) Len() int   { return len(c.data) }
func (c *int64Column) Kind() Kind { return KindInt64 }
func (c *int64Column) ByteSize() int64 {
	return int64(len(c.data)) * 8
}
func (c *int64Column) Clone() column {
	cp := make([]int64, len(c.data))
	copy(cp, c.data)
	return &int64Column{data: cp}
}
func (c *int64Column) Take(idx []int) column {
	out := make([]int64, len(idx))
	for i, j := range idx {
		out[i] = c.data[j]
	}
	return &int64Column{data: out}
}

// float64Column stores floating point numbers; NaN represents null.
type float64Column struct {
	data []float64
}

func newFloat64Column(data []float64) *float64Column { return &float64Column{data: data} }

func (c *float64Column) Len() int   { return len(c.data) }
func (c *float64Column) Kind() Kind { return KindFloat64 }
func (c *float64Column) ByteSize() int64 {
	return int64(len(c.data)) * 8
}
func (c *float64Column) Clone() column {
	cp := make([]float64, len(c.data))
	copy(cp, c.data)
	return &float64Column{data: cp}
}
func (c *float64Column) Take(idx []int) column {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = c.data[j]
	}
	return &float64Column{data: out}
}

func isNaN(f float64) bool { return math.IsNaN(f) }

func nan() float64 { return math.NaN() }

// stringColumn stores UTF-8 text. Null is tracked explicitly (separately
// from the empty string, which is a valid non-null value per spec.md's
// resolved Open Question).
type stringColumn struct {
	data []string
	null []bool // nil means no nulls present
}

func newStringColumn(data []string, null []bool) *stringColumn {
	return &stringColumn{data: data, null: null}
}

func (c *stringColumn) Len() int   { return len(c.data) }
func (c *stringColumn) Kind() Kind { return KindString }
func (c *stringColumn) ByteSize() int64 {
	var n int64
	for _, s := range c.data {
		n += int64(len(s))
	}
	return n
}
func (c *stringColumn) Clone() column {
	cp := make([]string, len(c.data))
	copy(cp, c.data)
	var null []bool
	if c.null != nil {
		null = make([]bool, len(c.null))
		copy(null, c.null)
	}
	return &stringColumn{data: cp, null: null}
}
func (c *stringColumn) Take(idx []int) column {
	out := make([]string, len(idx))
	var null []bool
	if c.null != nil {
		null = make([]bool, len(idx))
	}
	for i, j := range idx {
		out[i] = c.data[j]
		if c.null != nil {
			null[i] = c.null[j]
		}
	}
	return &stringColumn{data: out, null: null}
}

func (c *stringColumn) isNull(i int) bool {
	return c.null != nil && c.null[i]
}

// enumColumn is a dictionary-encoded string column: a small string
// dictionary plus an int32 code per row. Supports equality comparisons
// only (spec.md's resolved Open Question: ordered comparison is
// malformed).
type enumColumn struct {
	dict []string
	code []int32 // index into dict, -1 means null
}

func newEnumColumn(values []string, null []bool) *enumColumn {
	idx := make(map[string]int32)
	dict := make([]string, 0)
	codes := make([]int32, len(values))
	for i, v := range values {
		if null != nil && null[i] {
			codes[i] = -1
			continue
		}
		c, ok := idx[v]
		if !ok {
			c = int32(len(dict))
			dict = append(dict, v)
			idx[v] = c
		}
		codes[i] = c
	}
	return &enumColumn{dict: dict, code: codes}
}

func (c *enumColumn) Len() int   { return len(c.code) }
func (c *enumColumn) Kind() Kind { return KindEnum }
func (c *enumColumn) ByteSize() int64 {
	var n int64
	for _, s := range c.dict {
		n += int64(len(s))
	}
	return n + int64(len(c.code))*4
}
func (c *enumColumn) Clone() column {
	dict := make([]string, len(c.dict))
	copy(dict, c.dict)
	code := make([]int32, len(c.code))
	copy(code, c.code)
	return &enumColumn{dict: dict, code: code}
}
func (c *enumColumn) Take(idx []int) column {
	code := make([]int32, len(idx))
	for i, j := range idx {
		code[i] = c.code[j]
	}
	return &enumColumn{dict: c.dict, code: code}
}

func (c *enumColumn) valueAt(i int) (string, bool) {
	code := c.code[i]
	if code < 0 {
		return "", true
	}
	return c.dict[code], false
}

func (c *enumColumn) codeFor(value string) (int32, bool) {
	for i, v := range c.dict {
		if v == value {
			return int32(i), true
		}
	}
	return 0, false
}
