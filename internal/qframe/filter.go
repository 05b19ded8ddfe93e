package qframe

import (
	"strings"
)

// applyWhere filters f's rows according to the decoded WHERE AST (nil means
// no filtering). ctx carries the ambient frame that a nested 'in' subquery
// resolves against, per spec.md §9's explicit-context-over-global-state
// design note.
func applyWhere(f *Frame, where any, ctx *evalContext) (*Frame, error) {
	if where == nil {
		return f, nil
	}

	mask, err := evalFilter(f, where, ctx)
	if err != nil {
		return nil, err
	}

	idx := make([]int, 0, f.Len())
	for i, keep := range mask {
		if keep {
			idx = append(idx, i)
		}
	}
	return f.take(idx), nil
}

// evalFilter evaluates a WHERE node into a per-row boolean mask.
func evalFilter(f *Frame, node any, ctx *evalContext) ([]bool, error) {
	list, ok := node.([]any)
	if !ok || len(list) == 0 {
		return nil, malformed("Invalid filter expression", node)
	}

	op, ok := list[0].(string)
	if !ok {
		return nil, malformed("Filter operator must be a string", list[0])
	}
	args := list[1:]

	switch op {
	case "!":
		if len(args) != 1 {
			return nil, malformed("'!' takes exactly one argument", node)
		}
		sub, err := evalFilter(f, args[0], ctx)
		if err != nil {
			return nil, err
		}
		out := make([]bool, len(sub))
		for i, v := range sub {
			out[i] = !v
		}
		return out, nil

	case "&", "|":
		if len(args) < 1 {
			return nil, malformed(op+" requires at least one argument", node)
		}
		acc, err := evalFilter(f, args[0], ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			sub, err := evalFilter(f, a, ctx)
			if err != nil {
				return nil, err
			}
			for i := range acc {
				if op == "&" {
					acc[i] = acc[i] && sub[i]
				} else {
					acc[i] = acc[i] || sub[i]
				}
			}
		}
		return acc, nil

	case "isnull":
		if len(args) != 1 {
			return nil, malformed("'isnull' takes exactly one argument", node)
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, malformed("'isnull' argument must be a column name", args[0])
		}
		return evalIsNull(f, name)

	case "==", "!=", "<", "<=", ">", ">=":
		if len(args) != 2 {
			return nil, malformed(op+" takes exactly two arguments", node)
		}
		return evalComparison(f, op, args[0], args[1])

	case "in":
		if len(args) != 2 {
			return nil, malformed("'in' takes exactly two arguments", node)
		}
		return evalIn(f, args[0], args[1], ctx)

	case "like", "ilike":
		if len(args) != 2 {
			return nil, malformed(op+" takes exactly two arguments", node)
		}
		return evalLike(f, args[0], args[1], op == "ilike")

	case "any_bits", "all_bits":
		if len(args) != 2 {
			return nil, malformed(op+" takes exactly two arguments", node)
		}
		return evalBits(f, op, args[0], args[1])

	default:
		return nil, malformed("Unknown filter operator", op)
	}
}

func evalIsNull(f *Frame, name string) ([]bool, error) {
	col, ok := f.column(name)
	if !ok {
		return nil, malformed("Unknown column", name)
	}
	out := make([]bool, col.Len())
	switch c := col.(type) {
	case *int64Column:
		// never null
	case *float64Column:
		for i := range out {
			out[i] = isNaN(c.data[i])
		}
	case *stringColumn:
		for i := range out {
			out[i] = c.isNull(i)
		}
	case *enumColumn:
		for i := range out {
			_, null := c.valueAt(i)
			out[i] = null
		}
	}
	return out, nil
}

// operand resolves a filter argument to either a column reference or a
// literal value. Bare unquoted strings that match a column name are column
// references; everything else (quoted strings, numbers) is a literal.
type operand struct {
	col     column
	isCol   bool
	litStr  string
	litNum  float64
	isNum   bool
	isQuote bool
}

func resolveOperand(f *Frame, raw any) (operand, error) {
	switch v := raw.(type) {
	case string:
		if isQuoted(v) {
			return operand{litStr: unquote(v), isQuote: true}, nil
		}
		if c, ok := f.column(v); ok {
			return operand{col: c, isCol: true}, nil
		}
		return operand{litStr: v, isQuote: true}, nil
	case float64:
		return operand{litNum: v, isNum: true}, nil
	case int:
		return operand{litNum: float64(v), isNum: true}, nil
	case nil:
		return operand{litStr: "", isQuote: false}, nil
	default:
		return operand{}, malformed("Unsupported literal in filter", raw)
	}
}

// evalComparison enforces the strict type-mismatch policy: comparing a
// numeric column against a string literal (or vice versa) is a malformed
// query, never a silently-empty or lenient coercion.
func evalComparison(f *Frame, op string, lhsRaw, rhsRaw any) ([]bool, error) {
	lhs, err := resolveOperand(f, lhsRaw)
	if err != nil {
		return nil, err
	}
	rhs, err := resolveOperand(f, rhsRaw)
	if err != nil {
		return nil, err
	}

	// Exactly one side must be a column; comparing two literals or two
	// columns directly is not part of the supported grammar.
	if lhs.isCol == rhs.isCol {
		return nil, malformed("Comparison requires exactly one column operand", []any{lhsRaw, rhsRaw})
	}
	col, other := lhs.col, rhs
	flip := false
	if rhs.isCol {
		col, other = rhs.col, lhs
		flip = true
	}

	switch c := col.(type) {
	case *int64Column:
		if !other.isNum {
			return nil, malformed("Type mismatch comparing int64 column to non-numeric literal", rhsRaw)
		}
		return compareInt64(c, op, other.litNum, flip)
	case *float64Column:
		if !other.isNum {
			return nil, malformed("Type mismatch comparing float64 column to non-numeric literal", rhsRaw)
		}
		return compareFloat64(c, op, other.litNum, flip)
	case *stringColumn:
		if other.isNum {
			return nil, malformed("Type mismatch comparing string column to numeric literal", rhsRaw)
		}
		return compareString(c, op, other.litStr, flip)
	case *enumColumn:
		if op != "==" && op != "!=" {
			return nil, malformed("Ordered comparison is not supported on enum columns", op)
		}
		if other.isNum {
			return nil, malformed("Type mismatch comparing enum column to numeric literal", rhsRaw)
		}
		return compareEnum(c, op, other.litStr, flip)
	default:
		return nil, malformed("Unsupported column type for comparison", nil)
	}
}

func cmp(a, b float64, op string, flip bool) bool {
	if flip {
		a, b = b, a
	}
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func cmpStr(a, b string, op string, flip bool) bool {
	if flip {
		a, b = b, a
	}
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func compareInt64(c *int64Column, op string, lit float64, flip bool) ([]bool, error) {
	out := make([]bool, c.Len())
	for i, v := range c.data {
		out[i] = cmp(float64(v), lit, op, flip)
	}
	return out, nil
}

func compareFloat64(c *float64Column, op string, lit float64, flip bool) ([]bool, error) {
	out := make([]bool, c.Len())
	for i, v := range c.data {
		if isNaN(v) {
			out[i] = false
			continue
		}
		out[i] = cmp(v, lit, op, flip)
	}
	return out, nil
}

func compareString(c *stringColumn, op string, lit string, flip bool) ([]bool, error) {
	out := make([]bool, c.Len())
	for i, v := range c.data {
		if c.isNull(i) {
			out[i] = false
			continue
		}
		out[i] = cmpStr(v, lit, op, flip)
	}
	return out, nil
}

func compareEnum(c *enumColumn, op string, lit string, flip bool) ([]bool, error) {
	out := make([]bool, c.Len())
	for i := range c.code {
		v, null := c.valueAt(i)
		if null {
			out[i] = false
			continue
		}
		eq := v == lit
		if op == "!=" {
			eq = !eq
		}
		out[i] = eq
	}
	return out, nil
}

// evalIn supports both a literal list and a subquery dict as the second
// argument. A subquery is evaluated against the ambient frame and must
// project exactly one column, whose values become the membership set.
func evalIn(f *Frame, colRaw, setRaw any, ctx *evalContext) ([]bool, error) {
	name, ok := colRaw.(string)
	if !ok {
		return nil, malformed("'in' first argument must be a column name", colRaw)
	}
	col, ok := f.column(name)
	if !ok {
		return nil, malformed("Unknown column", name)
	}

	var members []operand
	switch v := setRaw.(type) {
	case []any:
		for _, item := range v {
			op, err := resolveLiteralOnly(item)
			if err != nil {
				return nil, err
			}
			members = append(members, op)
		}
	case map[string]any:
		if ctx == nil || ctx.ambient == nil {
			return nil, malformed("'in' subquery has no ambient frame to evaluate against", nil)
		}
		res, err := evalQuery(ctx.ambient, v)
		if err != nil {
			return nil, err
		}
		if len(res.Frame.names) != 1 {
			return nil, malformed("'in' subquery must project exactly one column", v)
		}
		sub := res.Frame.cols[0]
		for i := 0; i < sub.Len(); i++ {
			op, err := operandFromColumnValue(sub, i)
			if err != nil {
				return nil, err
			}
			members = append(members, op)
		}
	default:
		return nil, malformed("'in' second argument must be a list or a query object", setRaw)
	}

	return membershipMask(col, members)
}

func resolveLiteralOnly(raw any) (operand, error) {
	switch v := raw.(type) {
	case string:
		if isQuoted(v) {
			return operand{litStr: unquote(v), isQuote: true}, nil
		}
		return operand{litStr: v, isQuote: true}, nil
	case float64:
		return operand{litNum: v, isNum: true}, nil
	default:
		return operand{}, malformed("Unsupported literal in 'in' list", raw)
	}
}

func operandFromColumnValue(col column, row int) (operand, error) {
	switch c := col.(type) {
	case *int64Column:
		return operand{litNum: float64(c.data[row]), isNum: true}, nil
	case *float64Column:
		return operand{litNum: c.data[row], isNum: true}, nil
	case *stringColumn:
		return operand{litStr: c.data[row], isQuote: true}, nil
	case *enumColumn:
		v, _ := c.valueAt(row)
		return operand{litStr: v, isQuote: true}, nil
	default:
		return operand{}, malformed("Unsupported subquery column type", nil)
	}
}

func membershipMask(col column, members []operand) ([]bool, error) {
	out := make([]bool, col.Len())
	switch c := col.(type) {
	case *int64Column:
		set := make(map[int64]bool)
		for _, m := range members {
			if !m.isNum {
				return nil, malformed("Type mismatch in 'in' against int64 column", m.litStr)
			}
			set[int64(m.litNum)] = true
		}
		for i, v := range c.data {
			out[i] = set[v]
		}
	case *float64Column:
		set := make(map[float64]bool)
		for _, m := range members {
			if !m.isNum {
				return nil, malformed("Type mismatch in 'in' against float64 column", m.litStr)
			}
			set[m.litNum] = true
		}
		for i, v := range c.data {
			if isNaN(v) {
				continue
			}
			out[i] = set[v]
		}
	case *stringColumn:
		set := make(map[string]bool)
		for _, m := range members {
			if m.isNum {
				return nil, malformed("Type mismatch in 'in' against string column", m.litNum)
			}
			set[m.litStr] = true
		}
		for i, v := range c.data {
			if c.isNull(i) {
				continue
			}
			out[i] = set[v]
		}
	case *enumColumn:
		set := make(map[string]bool)
		for _, m := range members {
			if m.isNum {
				return nil, malformed("Type mismatch in 'in' against enum column", m.litNum)
			}
			set[m.litStr] = true
		}
		for i := range c.code {
			v, null := c.valueAt(i)
			if null {
				continue
			}
			out[i] = set[v]
		}
	default:
		return nil, malformed("Unsupported column type for 'in'", nil)
	}
	return out, nil
}

// evalLike implements SQL-style '%' wildcard matching; ilike is
// case-insensitive. Only applies to string and enum columns.
func evalLike(f *Frame, colRaw, patRaw any, insensitive bool) ([]bool, error) {
	name, ok := colRaw.(string)
	if !ok {
		return nil, malformed("like/ilike first argument must be a column name", colRaw)
	}
	patRawStr, ok := patRaw.(string)
	if !ok {
		return nil, malformed("like/ilike pattern must be a string", patRaw)
	}
	pattern := patRawStr
	if isQuoted(pattern) {
		pattern = unquote(pattern)
	}

	col, ok := f.column(name)
	if !ok {
		return nil, malformed("Unknown column", name)
	}

	matcher := likeMatcher(pattern, insensitive)
	out := make([]bool, col.Len())
	switch c := col.(type) {
	case *stringColumn:
		for i, v := range c.data {
			if c.isNull(i) {
				continue
			}
			out[i] = matcher(v)
		}
	case *enumColumn:
		for i := range c.code {
			v, null := c.valueAt(i)
			if null {
				continue
			}
			out[i] = matcher(v)
		}
	default:
		return nil, malformed("like/ilike only supported on string or enum columns", name)
	}
	return out, nil
}

func likeMatcher(pattern string, insensitive bool) func(string) bool {
	parts := strings.Split(pattern, "%")
	if insensitive {
		pattern = strings.ToLower(pattern)
		for i := range parts {
			parts[i] = strings.ToLower(parts[i])
		}
	}
	anchoredStart := !strings.HasPrefix(pattern, "%")
	anchoredEnd := !strings.HasSuffix(pattern, "%")

	return func(s string) bool {
		v := s
		if insensitive {
			v = strings.ToLower(s)
		}
		if len(parts) == 1 {
			return v == parts[0]
		}
		pos := 0
		for i, part := range parts {
			if part == "" {
				continue
			}
			if i == 0 && anchoredStart {
				if !strings.HasPrefix(v[pos:], part) {
					return false
				}
				pos += len(part)
				continue
			}
			if i == len(parts)-1 && anchoredEnd {
				return strings.HasSuffix(v[pos:], part)
			}
			idx := strings.Index(v[pos:], part)
			if idx < 0 {
				return false
			}
			pos += idx + len(part)
		}
		return true
	}
}

// evalBits supports bitwise-AND membership tests against an int64 column:
// any_bits is true when any masked bit is set, all_bits when every masked
// bit is set.
func evalBits(f *Frame, op string, colRaw, maskRaw any) ([]bool, error) {
	name, ok := colRaw.(string)
	if !ok {
		return nil, malformed(op+" first argument must be a column name", colRaw)
	}
	maskNum, ok := maskRaw.(float64)
	if !ok {
		return nil, malformed(op+" mask must be a number", maskRaw)
	}
	mask := int64(maskNum)

	col, ok := f.column(name)
	if !ok {
		return nil, malformed("Unknown column", name)
	}
	c, ok := col.(*int64Column)
	if !ok {
		return nil, malformed(op+" only supported on int64 columns", name)
	}

	out := make([]bool, c.Len())
	for i, v := range c.data {
		and := v & mask
		if op == "any_bits" {
			out[i] = and != 0
		} else {
			out[i] = and == mask
		}
	}
	return out, nil
}
