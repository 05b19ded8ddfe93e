package qframe

import (
	"strings"
	"testing"
)

func TestFromCSVTypeInference(t *testing.T) {
	data := []byte("a,b,c\n1,1.5,x\n2,2.5,y\n")
	f, err := FromCSV(data, nil, nil)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", f.Len())
	}
	if k, _ := f.kindOf("a"); k != KindInt64 {
		t.Errorf("column a: expected int64, got %v", k)
	}
	if k, _ := f.kindOf("b"); k != KindFloat64 {
		t.Errorf("column b: expected float64, got %v", k)
	}
	if k, _ := f.kindOf("c"); k != KindString {
		t.Errorf("column c: expected string, got %v", k)
	}
}

func TestFromCSVEmptyCellInIntColumnWidensToFloat(t *testing.T) {
	data := []byte("a,b\n1,x\n,y\n3,z\n")
	f, err := FromCSV(data, nil, nil)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if k, _ := f.kindOf("a"); k != KindFloat64 {
		t.Fatalf("expected widened float64 column, got %v", k)
	}
	col, _ := f.column("a")
	fc := col.(*float64Column)
	if !isNaN(fc.data[1]) {
		t.Errorf("expected NaN for blank cell, got %v", fc.data[1])
	}
}

func TestFromCSVEmptyStringIsNotNull(t *testing.T) {
	data := []byte("a,b\nfoo,1\n,2\nbar,3\n")
	f, err := FromCSV(data, nil, nil)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	col, _ := f.column("a")
	sc := col.(*stringColumn)
	if sc.isNull(1) {
		t.Errorf("empty string cell should not be null")
	}
	if sc.data[1] != "" {
		t.Errorf("expected empty string, got %q", sc.data[1])
	}
}

func TestFromCSVTypeHintForcesEnum(t *testing.T) {
	data := []byte("a\nred\ngreen\nred\n")
	f, err := FromCSV(data, map[string]string{"a": "enum"}, nil)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if k, _ := f.kindOf("a"); k != KindEnum {
		t.Fatalf("expected enum column, got %v", k)
	}
}

func TestFromCSVRejectsNASentinelsAsLiteralStrings(t *testing.T) {
	data := []byte("a\nNA\nnull\n1\n")
	f, err := FromCSV(data, nil, nil)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if k, _ := f.kindOf("a"); k != KindString {
		t.Fatalf("expected string column (NA sentinels are not numeric), got %v", k)
	}
	col, _ := f.column("a")
	sc := col.(*stringColumn)
	if sc.isNull(0) || sc.data[0] != "NA" {
		t.Errorf("expected literal 'NA' string, got null=%v value=%q", sc.isNull(0), sc.data[0])
	}
}

func TestToCSVRoundTrip(t *testing.T) {
	data := []byte("a,b,c\n1,1.5,x\n2,2.5,y\n")
	f, err := FromCSV(data, nil, nil)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	out, err := f.ToCSV()
	if err != nil {
		t.Fatalf("ToCSV: %v", err)
	}
	back, err := FromCSV(out, nil, nil)
	if err != nil {
		t.Fatalf("FromCSV round-trip: %v", err)
	}
	if back.Len() != f.Len() {
		t.Fatalf("round trip row count mismatch: %d vs %d", back.Len(), f.Len())
	}
	if !strings.Contains(string(out), "a,b,c") {
		t.Errorf("expected header row in CSV output, got %q", out)
	}
}

func TestFromCSVStandIns(t *testing.T) {
	data := []byte("a\n1\n2\n")
	f, err := FromCSV(data, nil, []StandIn{{Target: "b", Source: "'const'"}, {Target: "c", Source: "a"}})
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if !f.HasColumn("b") || !f.HasColumn("c") {
		t.Fatalf("expected stand-in columns to be present")
	}
	bc := mustStringColumn(t, f, "b")
	if bc.data[0] != "const" {
		t.Errorf("expected constant stand-in value, got %q", bc.data[0])
	}
}

func mustStringColumn(t *testing.T, f *Frame, name string) *stringColumn {
	t.Helper()
	c, ok := f.column(name)
	if !ok {
		t.Fatalf("missing column %q", name)
	}
	sc, ok := c.(*stringColumn)
	if !ok {
		t.Fatalf("column %q is not a string column", name)
	}
	return sc
}
