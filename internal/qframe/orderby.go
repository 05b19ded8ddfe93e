package qframe

import "strings"

// applyOrderBy stably sorts f by the named columns; a column prefixed with
// '-' sorts descending. Nulls and NaN sort after every non-null value,
// regardless of direction.
func applyOrderBy(f *Frame, raw any) (*Frame, error) {
	if raw == nil {
		return f, nil
	}
	names, err := asStringSlice("order_by", raw)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return f, nil
	}

	type key struct {
		col  column
		desc bool
	}
	keys := make([]key, len(names))
	for i, raw := range names {
		desc := strings.HasPrefix(raw, "-")
		name := strings.TrimPrefix(raw, "-")
		col, ok := f.column(name)
		if !ok {
			return nil, malformed("Unknown order_by column", name)
		}
		keys[i] = key{col: col, desc: desc}
	}

	idx := sortStableIndices(f.Len(), func(i, j int) bool {
		for _, k := range keys {
			c := compareCells(k.col, i, j, k.desc)
			if c == 0 {
				continue
			}
			return c < 0
		}
		return false
	})
	return f.take(idx), nil
}

// compareCells returns -1, 0 or 1 comparing row i to row j within a single
// column; desc reverses the order of non-null values. A null/NaN value
// always compares greater than a non-null value, in either direction.
func compareCells(c column, i, j int, desc bool) int {
	dir := 1
	if desc {
		dir = -1
	}
	switch cc := c.(type) {
	case *int64Column:
		return dir * cmpInt64(cc.data[i], cc.data[j])
	case *float64Column:
		ni, nj := isNaN(cc.data[i]), isNaN(cc.data[j])
		if ni && nj {
			return 0
		}
		if ni {
			return 1
		}
		if nj {
			return -1
		}
		return dir * cmpFloat64(cc.data[i], cc.data[j])
	case *stringColumn:
		ni, nj := cc.isNull(i), cc.isNull(j)
		if ni && nj {
			return 0
		}
		if ni {
			return 1
		}
		if nj {
			return -1
		}
		return dir * strings.Compare(cc.data[i], cc.data[j])
	case *enumColumn:
		vi, ni := cc.valueAt(i)
		vj, nj := cc.valueAt(j)
		if ni && nj {
			return 0
		}
		if ni {
			return 1
		}
		if nj {
			return -1
		}
		return dir * strings.Compare(vi, vj)
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
