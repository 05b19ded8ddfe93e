package qframe

import (
	"encoding/json"
	"errors"
	"testing"
)

func decodeQuery(raw string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func frameFromJSON(t *testing.T, data string) *Frame {
	t.Helper()
	f, err := FromJSON([]byte(data), nil, nil)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	return f
}

func q(t *testing.T, raw string) map[string]any {
	t.Helper()
	m, err := decodeQuery(raw)
	if err != nil {
		t.Fatalf("decodeQuery: %v", err)
	}
	return m
}

func TestWhereComparisonFiltersRows(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1,"name":"x"},{"a":2,"name":"y"},{"a":3,"name":"z"}]`)
	res, err := f.Query(q(t, `{"where": [">", "a", 1]}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Frame.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", res.Frame.Len())
	}
}

func TestWhereStrictTypeMismatchIsMalformed(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1}]`)
	_, err := f.Query(q(t, `{"where": ["==", "a", "'foo'"]}`), nil)
	if err == nil {
		t.Fatalf("expected malformed-query error for type mismatch")
	}
	var me *MalformedQueryError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedQueryError, got %T: %v", err, err)
	}
}

func TestWhereEnumOrderedComparisonIsMalformed(t *testing.T) {
	f := frameFromJSON(t, `[{"a":"x"},{"a":"y"}]`)
	f2, err := FromJSON([]byte(`[{"a":"x"},{"a":"y"}]`), map[string]string{"a": "enum"}, nil)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	_ = f
	_, err = f2.Query(q(t, `{"where": ["<", "a", "'y'"]}`), nil)
	if err == nil {
		t.Fatalf("expected malformed-query error for ordered comparison on enum column")
	}
}

func TestWhereInWithLiteralList(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1},{"a":2},{"a":3}]`)
	res, err := f.Query(q(t, `{"where": ["in", "a", [1, 3]]}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Frame.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", res.Frame.Len())
	}
}

func TestWhereInWithSubquery(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1,"grp":"x"},{"a":2,"grp":"y"},{"a":3,"grp":"x"}]`)
	res, err := f.Query(q(t, `{"where": ["in", "grp", {"select": ["grp"], "where": ["==", "a", 1]}]}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Frame.Len() != 2 {
		t.Fatalf("expected 2 rows (a=1 and a=3 share grp 'x'), got %d", res.Frame.Len())
	}
}

func TestWhereLikeWildcard(t *testing.T) {
	f := frameFromJSON(t, `[{"name":"alice"},{"name":"bob"},{"name":"alfred"}]`)
	res, err := f.Query(q(t, `{"where": ["like", "name", "'al%'"]}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Frame.Len() != 2 {
		t.Fatalf("expected 2 rows matching al%%, got %d", res.Frame.Len())
	}
}

func TestGroupByAggregation(t *testing.T) {
	f := frameFromJSON(t, `[{"grp":"a","v":1},{"grp":"a","v":2},{"grp":"b","v":10}]`)
	res, err := f.Query(q(t, `{"group_by": ["grp"], "select": ["grp", ["sum", "v"]]}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Frame.Len() != 2 {
		t.Fatalf("expected 2 groups, got %d", res.Frame.Len())
	}
}

func TestGroupBySelectNonGroupingBareColumnIsMalformed(t *testing.T) {
	f := frameFromJSON(t, `[{"grp":"a","v":1},{"grp":"b","v":2}]`)
	_, err := f.Query(q(t, `{"group_by": ["grp"], "select": ["v"]}`), nil)
	if err == nil {
		t.Fatalf("expected malformed-query error for non-grouping bare column under group_by")
	}
}

func TestSelectCountStar(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1},{"a":2},{"a":3}]`)
	res, err := f.Query(q(t, `{"select": [["count"]]}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Frame.Len() != 1 {
		t.Fatalf("expected single row result, got %d rows", res.Frame.Len())
	}
	col, ok := res.Frame.column("count")
	if !ok {
		t.Fatalf("expected a 'count' column")
	}
	fc := col.(*float64Column)
	if fc.data[0] != 3 {
		t.Errorf("expected count 3, got %v", fc.data[0])
	}
}

func TestSelectCannotMixAliasAndAggregation(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1}]`)
	_, err := f.Query(q(t, `{"select": [["=", "b", ["+", "a", 1]], ["sum", "a"]]}`), nil)
	if err == nil {
		t.Fatalf("expected malformed-query error mixing alias and aggregation")
	}
}

func TestSelectAliasArithmetic(t *testing.T) {
	f := frameFromJSON(t, `[{"a":2},{"a":4}]`)
	res, err := f.Query(q(t, `{"select": ["a", ["=", "doubled", ["*", "a", 2]]]}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	col, ok := res.Frame.column("doubled")
	if !ok {
		t.Fatalf("expected alias column 'doubled'")
	}
	fc := col.(*float64Column)
	if fc.data[0] != 4 || fc.data[1] != 8 {
		t.Errorf("unexpected alias values: %v", fc.data)
	}
}

func TestOrderByDescending(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1},{"a":3},{"a":2}]`)
	res, err := f.Query(q(t, `{"order_by": ["-a"]}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	col, _ := res.Frame.column("a")
	ic := col.(*int64Column)
	want := []int64{3, 2, 1}
	for i, v := range want {
		if ic.data[i] != v {
			t.Fatalf("expected order %v, got %v", want, ic.data)
		}
	}
}

func TestUnslicedLengthReflectsPreSliceRowCount(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1},{"a":2},{"a":3},{"a":4},{"a":5}]`)
	res, err := f.Query(q(t, `{"order_by": ["a"], "offset": 1, "limit": 2}`), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Frame.Len() != 2 {
		t.Fatalf("expected 2 sliced rows, got %d", res.Frame.Len())
	}
	if res.UnslicedLength != 5 {
		t.Fatalf("expected unsliced length 5, got %d", res.UnslicedLength)
	}
}

func TestStandInSkippedWhenTargetAlreadyExists(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1,"b":"present"}]`)
	res, err := f.Query(q(t, `{}`), []StandIn{{Target: "b", Source: "'should-not-apply'"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	col, _ := res.Frame.column("b")
	sc := col.(*stringColumn)
	if sc.data[0] != "present" {
		t.Errorf("expected existing column value to win over stand-in, got %q", sc.data[0])
	}
}

func TestUpdateSimpleAssignment(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1,"flag":"no"},{"a":2,"flag":"no"}]`)
	err := f.Update(q(t, `{"update": [["flag", "'yes'"]], "where": [">", "a", 1]}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	col, _ := f.column("flag")
	sc := col.(*stringColumn)
	if sc.data[0] != "no" || sc.data[1] != "yes" {
		t.Errorf("unexpected update result: %v", sc.data)
	}
}

func TestUpdateSelfReferringOp(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1},{"a":2},{"a":3}]`)
	err := f.Update(q(t, `{"update": [["+", "a", 10]], "where": [">", "a", 1]}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	col, _ := f.column("a")
	ic := col.(*int64Column)
	want := []int64{1, 12, 13}
	for i, v := range want {
		if ic.data[i] != v {
			t.Fatalf("expected %v, got %v", want, ic.data)
		}
	}
}

func TestUpdateFilterRejectsUnsupportedOperator(t *testing.T) {
	f := frameFromJSON(t, `[{"a":1,"name":"x"}]`)
	err := f.Update(q(t, `{"update": [["name", "'z'"]], "where": ["like", "name", "'x%'"]}`))
	if err == nil {
		t.Fatalf("expected malformed-query error: 'like' is not part of the update filter grammar")
	}
}
