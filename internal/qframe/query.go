package qframe

import "sort"

var queryClauses = map[string]bool{
	"where": true, "from": true, "group_by": true, "distinct": true,
	"select": true, "order_by": true, "offset": true, "limit": true,
	"update": true,
}

// evalContext carries the ambient frame a subquery ('in' with a nested
// query, or 'from') resolves against, threaded explicitly through the
// evaluator instead of relying on process-global state (spec.md §9).
type evalContext struct {
	ambient *Frame
}

// Result is the outcome of the SELECT-path query pipeline: the resulting
// frame plus the row count after ORDER_BY but before OFFSET/LIMIT, used by
// callers for pagination (spec.md §4.3.2).
type Result struct {
	Frame          *Frame
	UnslicedLength int
}

// Query runs the fixed-order SELECT-path pipeline (from, where, group_by,
// distinct, select, order_by, offset, limit) against f. Query-time
// stand-ins are applied to a derived working frame; f itself is never
// mutated by Query.
func (f *Frame) Query(raw map[string]any, standIns []StandIn) (*Result, error) {
	working := applyStandIns(f, standIns)
	return evalQuery(working, raw)
}

func evalQuery(f *Frame, raw map[string]any) (*Result, error) {
	for k := range raw {
		if !queryClauses[k] {
			return nil, malformed("Unknown query clause", k)
		}
	}

	source := f
	if fromRaw, ok := raw["from"]; ok {
		fromQ, ok := fromRaw.(map[string]any)
		if !ok {
			return nil, malformed("from clause must be a query object", fromRaw)
		}
		sub, err := evalQuery(f, fromQ)
		if err != nil {
			return nil, err
		}
		source = sub.Frame
	}

	filtered, err := applyWhere(source, raw["where"], &evalContext{ambient: source})
	if err != nil {
		return nil, err
	}

	grouped, groups, err := applyGroupBy(filtered, raw["group_by"])
	if err != nil {
		return nil, err
	}

	distinctFrame, err := applyDistinct(grouped, groups, raw["distinct"])
	if err != nil {
		return nil, err
	}

	projected, err := applySelect(distinctFrame, groups, raw["select"])
	if err != nil {
		return nil, err
	}

	ordered, err := applyOrderBy(projected, raw["order_by"])
	if err != nil {
		return nil, err
	}

	unsliced := ordered.Len()

	sliced, err := applySlice(ordered, raw["offset"], raw["limit"])
	if err != nil {
		return nil, err
	}

	return &Result{Frame: sliced, UnslicedLength: unsliced}, nil
}

func applySlice(f *Frame, offsetRaw, limitRaw any) (*Frame, error) {
	start := 0
	end := f.Len()

	if offsetRaw != nil {
		off, err := asNonNegativeInt("offset", offsetRaw)
		if err != nil {
			return nil, err
		}
		if off < start {
			off = start
		}
		start = off
		if start > end {
			start = end
		}
	}

	if limitRaw != nil {
		lim, err := asNonNegativeInt("limit", limitRaw)
		if err != nil {
			return nil, err
		}
		if start+lim < end {
			end = start + lim
		}
	}

	idx := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		idx = append(idx, i)
	}
	return f.take(idx), nil
}

func asNonNegativeInt(name string, raw any) (int, error) {
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != float64(int(v)) {
			return 0, malformed("Invalid "+name, raw)
		}
		return int(v), nil
	case int:
		if v < 0 {
			return 0, malformed("Invalid "+name, raw)
		}
		return v, nil
	default:
		return 0, malformed("Invalid "+name+", must be a non-negative integer", raw)
	}
}

func asStringSlice(name string, raw any) ([]string, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, malformed("Invalid format for "+name, raw)
	}
	out := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, malformed("Invalid format for "+name, raw)
		}
		out[i] = s
	}
	return out, nil
}

func sortStableIndices(n int, less func(i, j int) bool) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })
	return idx
}
