package qframe

var updateOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "**": true,
	"<<": true, ">>": true, "&": true, "|": true, "^": true,
}

// Update applies an in-place UPDATE query `{'update': [items...], 'where':
// <filter>}` to f. Consecutive simple [column, value] items are applied as
// a batch; a self-referring [op, column, value] item flushes any pending
// batch first. Update does not return data.
func (f *Frame) Update(raw map[string]any) error {
	for k := range raw {
		if k != "update" && k != "where" {
			return malformed("Unknown update clause", k)
		}
	}

	itemsRaw, ok := raw["update"]
	if !ok {
		return malformed("update query requires an 'update' clause", raw)
	}
	items, ok := itemsRaw.([]any)
	if !ok {
		return malformed("'update' must be a list of items", itemsRaw)
	}

	mask, err := updateMask(f, raw["where"])
	if err != nil {
		return err
	}
	rows := make([]int, 0, len(mask))
	for i, keep := range mask {
		if keep {
			rows = append(rows, i)
		}
	}

	var batch []simpleAssign
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		for _, a := range batch {
			if err := applySimpleAssign(f, a, rows); err != nil {
				return err
			}
		}
		batch = batch[:0]
		return nil
	}

	for _, rawItem := range items {
		list, ok := rawItem.([]any)
		if !ok || len(list) < 2 {
			return malformed("Invalid update item", rawItem)
		}

		if len(list) == 2 {
			col, ok := list[0].(string)
			if !ok {
				return malformed("update item column must be a string", list[0])
			}
			batch = append(batch, simpleAssign{column: col, value: list[1]})
			continue
		}

		if len(list) == 3 {
			op, ok := list[0].(string)
			if ok && updateOps[op] {
				if err := flush(); err != nil {
					return err
				}
				col, ok := list[1].(string)
				if !ok {
					return malformed("update item column must be a string", list[1])
				}
				if err := applySelfRefAssign(f, op, col, list[2], rows); err != nil {
					return err
				}
				continue
			}
		}

		return malformed("Invalid update item", rawItem)
	}

	return flush()
}

type simpleAssign struct {
	column string
	value  any
}

// updateMask evaluates the UPDATE filter AST, a subset of the WHERE
// grammar: isnull, in and the six comparison operators, optionally combined
// with '!', '&' and '|'. like, ilike, any_bits and all_bits are rejected.
func updateMask(f *Frame, where any) ([]bool, error) {
	if where == nil {
		mask := make([]bool, f.Len())
		for i := range mask {
			mask[i] = true
		}
		return mask, nil
	}
	if err := validateUpdateFilter(where); err != nil {
		return nil, err
	}
	return evalFilter(f, where, &evalContext{ambient: f})
}

func validateUpdateFilter(node any) error {
	list, ok := node.([]any)
	if !ok || len(list) == 0 {
		return malformed("Invalid filter expression", node)
	}
	op, ok := list[0].(string)
	if !ok {
		return malformed("Filter operator must be a string", list[0])
	}
	switch op {
	case "isnull", "in", "==", "!=", "<", "<=", ">", ">=":
		return nil
	case "!", "&", "|":
		for _, a := range list[1:] {
			if err := validateUpdateFilter(a); err != nil {
				return err
			}
		}
		return nil
	default:
		return malformed("Operator not supported in update filter", op)
	}
}

// resolveAssignValue interprets an assignment's right-hand side: a bare
// column name means that column's elementwise value, anything else is a
// literal broadcast to every selected row.
func resolveAssignValue(f *Frame, raw any, rows []int) (column, error) {
	if name, ok := raw.(string); ok && !isQuoted(name) {
		if c, ok := f.column(name); ok {
			return c, nil
		}
	}
	op, err := resolveOperand(f, raw)
	if err != nil {
		return nil, err
	}
	switch {
	case op.isNum:
		data := make([]float64, f.Len())
		for i := range data {
			data[i] = op.litNum
		}
		return newFloat64Column(data), nil
	default:
		data := make([]string, f.Len())
		for i := range data {
			data[i] = op.litStr
		}
		return newStringColumn(data, nil), nil
	}
}

func applySimpleAssign(f *Frame, a simpleAssign, rows []int) error {
	target, ok := f.column(a.column)
	if !ok {
		return malformed("Unknown update target column", a.column)
	}
	rhs, err := resolveAssignValue(f, a.value, rows)
	if err != nil {
		return err
	}
	return assignInto(f, a.column, target, rhs, rows)
}

// assignInto writes rhs[row] into target column a.column at every row in
// rows, coercing as needed, and swaps the rebuilt column back into f.
func assignInto(f *Frame, name string, target column, rhs column, rows []int) error {
	switch tc := target.(type) {
	case *int64Column:
		data := append([]int64(nil), tc.data...)
		for _, r := range rows {
			v, err := numericAt(rhs, r)
			if err != nil {
				return err
			}
			data[r] = int64(v)
		}
		f.withColumnInPlace(name, newInt64Column(data))
	case *float64Column:
		data := append([]float64(nil), tc.data...)
		for _, r := range rows {
			v, err := numericAt(rhs, r)
			if err != nil {
				return err
			}
			data[r] = v
		}
		f.withColumnInPlace(name, newFloat64Column(data))
	case *stringColumn:
		data := append([]string(nil), tc.data...)
		var null []bool
		if tc.null != nil {
			null = append([]bool(nil), tc.null...)
		}
		for _, r := range rows {
			s, err := stringAt(rhs, r)
			if err != nil {
				return err
			}
			data[r] = s
			if null != nil {
				null[r] = false
			}
		}
		f.withColumnInPlace(name, newStringColumn(data, null))
	case *enumColumn:
		values := make([]string, tc.Len())
		null := make([]bool, tc.Len())
		for i := 0; i < tc.Len(); i++ {
			v, n := tc.valueAt(i)
			values[i] = v
			null[i] = n
		}
		for _, r := range rows {
			s, err := stringAt(rhs, r)
			if err != nil {
				return err
			}
			values[r] = s
			null[r] = false
		}
		f.withColumnInPlace(name, newEnumColumn(values, null))
	default:
		return malformed("Unsupported column type for update", name)
	}
	return nil
}

func numericAt(c column, row int) (float64, error) {
	switch cc := c.(type) {
	case *int64Column:
		return float64(cc.data[row]), nil
	case *float64Column:
		return cc.data[row], nil
	default:
		return 0, malformed("Expected a numeric value in update assignment", nil)
	}
}

func stringAt(c column, row int) (string, error) {
	switch cc := c.(type) {
	case *stringColumn:
		return cc.data[row], nil
	case *enumColumn:
		v, _ := cc.valueAt(row)
		return v, nil
	case *int64Column:
		return "", malformed("Expected a string value in update assignment", nil)
	default:
		return "", malformed("Expected a string value in update assignment", nil)
	}
}

func applySelfRefAssign(f *Frame, op string, name string, valueRaw any, rows []int) error {
	target, ok := f.column(name)
	if !ok {
		return malformed("Unknown update target column", name)
	}
	tc, ok := target.(*int64Column)
	isInt := ok
	var fc *float64Column
	if !isInt {
		fc, ok = target.(*float64Column)
		if !ok {
			return malformed(op+" self-referring update requires a numeric column", name)
		}
	}

	rhs, err := resolveAssignValue(f, valueRaw, rows)
	if err != nil {
		return err
	}

	if isInt {
		data := append([]int64(nil), tc.data...)
		for _, r := range rows {
			v, err := numericAt(rhs, r)
			if err != nil {
				return err
			}
			data[r] = applyIntOp(op, data[r], int64(v))
		}
		f.withColumnInPlace(name, newInt64Column(data))
		return nil
	}

	data := append([]float64(nil), fc.data...)
	for _, r := range rows {
		v, err := numericAt(rhs, r)
		if err != nil {
			return err
		}
		data[r] = applyFloatOp(op, data[r], v)
	}
	f.withColumnInPlace(name, newFloat64Column(data))
	return nil
}

func applyIntOp(op string, a, b int64) int64 {
	switch op {
	case "+":
		return a + b
	case "-":
		return a - b
	case "*":
		return a * b
	case "/":
		if b == 0 {
			return 0
		}
		return a / b
	case "%":
		if b == 0 {
			return 0
		}
		return a % b
	case "**":
		result := int64(1)
		for i := int64(0); i < b; i++ {
			result *= a
		}
		return result
	case "<<":
		return a << uint(b)
	case ">>":
		return a >> uint(b)
	case "&":
		return a & b
	case "|":
		return a | b
	case "^":
		return a ^ b
	default:
		return a
	}
}

func applyFloatOp(op string, a, b float64) float64 {
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
		return applyArithOp("%", a, b)
	case "**":
		r := 1.0
		for i := 0; i < int(b); i++ {
			r *= a
		}
		return r
	default:
		return nan()
	}
}
