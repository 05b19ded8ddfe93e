package qframe

import "math"

var aggFuncs = map[string]bool{
	"sum": true, "mean": true, "max": true, "min": true,
	"count": true, "std": true, "var": true,
}

var scalarFuncs = map[string]bool{
	"sqrt": true, "abs": true, "sin": true, "cos": true, "tan": true,
	"log": true, "exp": true,
}

var arithOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true,
}

type selectItem struct {
	kind   string // "bare", "alias", "agg"
	name   string // bare column name, or alias target
	fn     string // aggregation function name
	column string // aggregated/expr source column, "" for count with no arg
	expr   any    // raw arithmetic expression for alias items
}

// applySelect projects f according to the decoded SELECT clause. With no
// select clause the frame passes through unchanged. Every item is either a
// bare column reference, an alias assignment ['=', target, expr], or an
// aggregation [fn, col] / [fn]. Aliases and aggregations cannot be mixed;
// bare columns may accompany aliases, and accompany aggregations only as
// grouping columns under group_by (enforced below).
func applySelect(f *Frame, g *groups, raw any) (*Frame, error) {
	if raw == nil {
		return f, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, malformed("select must be a list", raw)
	}

	items := make([]selectItem, 0, len(list))
	for _, rawItem := range list {
		item, err := parseSelectItem(rawItem)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	hasAgg := false
	hasAlias := false
	for _, it := range items {
		switch it.kind {
		case "agg":
			hasAgg = true
		case "alias":
			hasAlias = true
		}
	}
	if hasAgg && hasAlias {
		return nil, malformed("select cannot mix column aliasing and aggregation", raw)
	}

	if g.active {
		for _, it := range items {
			if it.kind == "alias" {
				return nil, malformed("select cannot alias-assign with group_by active", raw)
			}
			if it.kind == "bare" && !g.isKeyColumn(it.name) {
				return nil, malformed("select column must be a grouping column or an aggregation with group_by", it.name)
			}
		}
		return buildGroupedSelect(f, g, items)
	}

	if hasAgg {
		for _, it := range items {
			if it.kind != "agg" {
				return nil, malformed("select must be all aggregations without group_by", raw)
			}
		}
		return buildUngroupedAggSelect(f, items)
	}

	return buildPlainSelect(f, items)
}

func parseSelectItem(raw any) (selectItem, error) {
	switch v := raw.(type) {
	case string:
		return selectItem{kind: "bare", name: v}, nil
	case []any:
		if len(v) == 0 {
			return selectItem{}, malformed("Invalid select item", raw)
		}
		head, ok := v[0].(string)
		if !ok {
			return selectItem{}, malformed("select item operator must be a string", v[0])
		}
		switch {
		case head == "=":
			if len(v) != 3 {
				return selectItem{}, malformed("'=' select item takes a target and an expression", raw)
			}
			target, ok := v[1].(string)
			if !ok {
				return selectItem{}, malformed("'=' target must be a column name", v[1])
			}
			return selectItem{kind: "alias", name: target, expr: v[2]}, nil
		case aggFuncs[head]:
			switch len(v) {
			case 1:
				return selectItem{kind: "agg", fn: head, name: head}, nil
			case 2:
				col, ok := v[1].(string)
				if !ok {
					return selectItem{}, malformed("aggregation argument must be a column name", v[1])
				}
				return selectItem{kind: "agg", fn: head, column: col, name: head + "_" + col}, nil
			default:
				return selectItem{}, malformed("aggregation takes zero or one argument", raw)
			}
		default:
			return selectItem{}, malformed("Unknown select item", raw)
		}
	default:
		return selectItem{}, malformed("Invalid select item", raw)
	}
}

func buildPlainSelect(f *Frame, items []selectItem) (*Frame, error) {
	names := make([]string, 0, len(items))
	cols := make([]column, 0, len(items))
	for _, it := range items {
		switch it.kind {
		case "bare":
			col, ok := f.column(it.name)
			if !ok {
				return nil, malformed("Selected columns not in table", it.name)
			}
			names = append(names, it.name)
			cols = append(cols, col)
		case "alias":
			valCol, err := evalArith(f, it.expr)
			if err != nil {
				return nil, err
			}
			names = append(names, it.name)
			cols = append(cols, valCol)
		default:
			return nil, malformed("Unsupported select item without group_by", it.name)
		}
	}
	return newFrame(names, cols)
}

func buildUngroupedAggSelect(f *Frame, items []selectItem) (*Frame, error) {
	names := make([]string, len(items))
	cols := make([]column, len(items))
	allRows := make([]int, f.Len())
	for i := range allRows {
		allRows[i] = i
	}
	for i, it := range items {
		v, err := aggregate(f, it.fn, it.column, allRows)
		if err != nil {
			return nil, err
		}
		names[i] = it.name
		cols[i] = newFloat64Column([]float64{v})
	}
	return newFrame(names, cols)
}

func buildGroupedSelect(f *Frame, g *groups, items []selectItem) (*Frame, error) {
	names := make([]string, len(items))
	cols := make([]column, len(items))
	for i, it := range items {
		names[i] = it.name
		if it.kind == "bare" {
			col, ok := f.column(it.name)
			if !ok {
				return nil, malformed("Selected columns not in table", it.name)
			}
			cols[i] = col
			continue
		}
		values := make([]float64, len(g.rowsOf))
		for gi, rows := range g.rowsOf {
			v, err := aggregate(g.source, it.fn, it.column, rows)
			if err != nil {
				return nil, err
			}
			values[gi] = v
		}
		cols[i] = newFloat64Column(values)
	}
	return newFrame(names, cols)
}

// aggregate computes fn over the named column (or row count, when col is
// empty) restricted to rows. Aggregation ignores nulls/NaN except count,
// which counts non-null values (or all rows, for bare count).
func aggregate(f *Frame, fn string, col string, rows []int) (float64, error) {
	if fn == "count" && col == "" {
		return float64(len(rows)), nil
	}

	c, ok := f.column(col)
	if !ok {
		return 0, malformed("Unknown aggregation column", col)
	}

	values := make([]float64, 0, len(rows))
	nonNull := 0
	switch cc := c.(type) {
	case *int64Column:
		for _, r := range rows {
			values = append(values, float64(cc.data[r]))
			nonNull++
		}
	case *float64Column:
		for _, r := range rows {
			if isNaN(cc.data[r]) {
				continue
			}
			values = append(values, cc.data[r])
			nonNull++
		}
	case *stringColumn:
		if fn != "count" {
			return 0, malformed(fn+" is not supported on string columns", col)
		}
		for _, r := range rows {
			if !cc.isNull(r) {
				nonNull++
			}
		}
	case *enumColumn:
		if fn != "count" {
			return 0, malformed(fn+" is not supported on enum columns", col)
		}
		for _, r := range rows {
			if _, null := cc.valueAt(r); !null {
				nonNull++
			}
		}
	default:
		return 0, malformed("Unsupported column type for aggregation", col)
	}

	switch fn {
	case "count":
		return float64(nonNull), nil
	case "sum":
		var s float64
		for _, v := range values {
			s += v
		}
		return s, nil
	case "mean":
		if len(values) == 0 {
			return nan(), nil
		}
		var s float64
		for _, v := range values {
			s += v
		}
		return s / float64(len(values)), nil
	case "max":
		if len(values) == 0 {
			return nan(), nil
		}
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m, nil
	case "min":
		if len(values) == 0 {
			return nan(), nil
		}
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m, nil
	case "var", "std":
		if len(values) == 0 {
			return nan(), nil
		}
		var mean float64
		for _, v := range values {
			mean += v
		}
		mean /= float64(len(values))
		var sq float64
		for _, v := range values {
			d := v - mean
			sq += d * d
		}
		v := sq / float64(len(values))
		if fn == "std" {
			return math.Sqrt(v), nil
		}
		return v, nil
	default:
		return 0, malformed("Unknown aggregation function", fn)
	}
}

// evalArith evaluates an alias-assignment expression (arithmetic on
// columns/literals, or a unary scalar function) into a float64 column.
func evalArith(f *Frame, node any) (*float64Column, error) {
	switch v := node.(type) {
	case float64:
		data := make([]float64, f.Len())
		for i := range data {
			data[i] = v
		}
		return newFloat64Column(data), nil

	case string:
		if isQuoted(v) {
			return nil, malformed("Arithmetic expression cannot use a string literal", v)
		}
		col, ok := f.column(v)
		if !ok {
			return nil, malformed("Unknown column in arithmetic expression", v)
		}
		switch c := col.(type) {
		case *int64Column:
			data := make([]float64, len(c.data))
			for i, x := range c.data {
				data[i] = float64(x)
			}
			return newFloat64Column(data), nil
		case *float64Column:
			data := make([]float64, len(c.data))
			copy(data, c.data)
			return newFloat64Column(data), nil
		default:
			return nil, malformed("Arithmetic expression requires a numeric column", v)
		}

	case []any:
		if len(v) == 0 {
			return nil, malformed("Invalid arithmetic expression", node)
		}
		op, ok := v[0].(string)
		if !ok {
			return nil, malformed("Arithmetic operator must be a string", v[0])
		}
		switch {
		case scalarFuncs[op]:
			if len(v) != 2 {
				return nil, malformed(op+" takes exactly one argument", node)
			}
			arg, err := evalArith(f, v[1])
			if err != nil {
				return nil, err
			}
			data := make([]float64, len(arg.data))
			for i, x := range arg.data {
				data[i] = applyScalarFunc(op, x)
			}
			return newFloat64Column(data), nil

		case arithOps[op]:
			if len(v) != 3 {
				return nil, malformed(op+" takes exactly two arguments", node)
			}
			lhs, err := evalArith(f, v[1])
			if err != nil {
				return nil, err
			}
			rhs, err := evalArith(f, v[2])
			if err != nil {
				return nil, err
			}
			data := make([]float64, len(lhs.data))
			for i := range data {
				data[i] = applyArithOp(op, lhs.data[i], rhs.data[i])
			}
			return newFloat64Column(data), nil

		default:
			return nil, malformed("Unknown arithmetic operator", op)
		}

	default:
		return nil, malformed("Invalid arithmetic operand", node)
	}
}

func applyScalarFunc(fn string, x float64) float64 {
	switch fn {
	case "sqrt":
		return math.Sqrt(x)
	case "abs":
		return math.Abs(x)
	case "sin":
		return math.Sin(x)
	case "cos":
		return math.Cos(x)
	case "tan":
		return math.Tan(x)
	case "log":
		return math.Log(x)
	case "exp":
		return math.Exp(x)
	default:
		return nan()
	}
}

func applyArithOp(op string, a, b float64) float64 {
	switch op {
	case "+":
		return a + b
	case "-":
		return a - b
	case "*":
		return a * b
	case "/":
		return a / b
	case "%":
		return math.Mod(a, b)
	default:
		return nan()
	}
}
