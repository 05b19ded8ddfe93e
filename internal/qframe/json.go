package qframe

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FromJSON parses a top-level JSON array of objects into a Frame. Columns
// are the union of keys across all objects, in insertion order of first
// occurrence; a key missing from a given object becomes null for that row.
// column_type_hints force "string" or "enum"; stand-ins are applied after
// construction.
func FromJSON(data []byte, hints map[string]string, standIns []StandIn) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, malformed("Invalid JSON", err.Error())
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, malformed("JSON input must be an array of objects", nil)
	}

	var order []string
	seen := make(map[string]bool)
	var rows []map[string]any

	for dec.More() {
		row, rowOrder, err := decodeJSONObject(dec)
		if err != nil {
			return nil, err
		}
		for _, k := range rowOrder {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
		rows = append(rows, row)
	}

	if _, err := dec.Token(); err != nil { // closing ']'
		return nil, malformed("Invalid JSON", err.Error())
	}

	cols := make([]column, len(order))
	for ci, name := range order {
		hint := hints[name]
		cols[ci] = buildJSONColumn(rows, name, hint)
	}

	frame, err := newFrame(append([]string(nil), order...), cols)
	if err != nil {
		return nil, err
	}
	return applyStandIns(frame, standIns), nil
}

func decodeJSONObject(dec *json.Decoder) (map[string]any, []string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, malformed("Invalid JSON", err.Error())
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, malformed("Expected a JSON object in array", nil)
	}

	row := make(map[string]any)
	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, malformed("Invalid JSON", err.Error())
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, malformed("Expected string object key", keyTok)
		}

		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, nil, malformed("Invalid JSON", err.Error())
		}
		row[key] = val
		order = append(order, key)
	}

	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, nil, malformed("Invalid JSON", err.Error())
	}

	return row, order, nil
}

func buildJSONColumn(rows []map[string]any, name string, hint string) column {
	n := len(rows)

	if hint == "string" || hint == "enum" {
		data := make([]string, n)
		null := make([]bool, n)
		anyNull := false
		for i, row := range rows {
			v, present := row[name]
			if !present || v == nil {
				null[i] = true
				anyNull = true
				continue
			}
			data[i] = stringify(v)
		}
		if !anyNull {
			null = nil
		}
		if hint == "enum" {
			return newEnumColumn(data, null)
		}
		return newStringColumn(data, null)
	}

	sawNumber, sawString, sawNull, allInt := false, false, false, true
	for _, row := range rows {
		v, present := row[name]
		if !present || v == nil {
			sawNull = true
			continue
		}
		switch vv := v.(type) {
		case json.Number:
			sawNumber = true
			if _, err := vv.Int64(); err != nil {
				allInt = false
			}
		default:
			sawString = true
		}
	}

	switch {
	case sawString:
		data := make([]string, n)
		null := make([]bool, n)
		anyNull := false
		for i, row := range rows {
			v, present := row[name]
			if !present || v == nil {
				null[i] = true
				anyNull = true
				continue
			}
			data[i] = stringify(v)
		}
		if !anyNull {
			null = nil
		}
		return newStringColumn(data, null)

	case sawNumber && allInt && !sawNull:
		data := make([]int64, n)
		for i, row := range rows {
			v := row[name].(json.Number)
			iv, _ := v.Int64()
			data[i] = iv
		}
		return newInt64Column(data)

	case sawNumber:
		data := make([]float64, n)
		for i, row := range rows {
			v, present := row[name]
			if !present || v == nil {
				data[i] = nan()
				continue
			}
			f, _ := v.(json.Number).Float64()
			data[i] = f
		}
		return newFloat64Column(data)

	default:
		// All-null column: default to string-typed nulls.
		null := make([]bool, n)
		for i := range null {
			null[i] = true
		}
		return newStringColumn(make([]string, n), null)
	}
}

func stringify(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case json.Number:
		return vv.String()
	case bool:
		if vv {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", vv)
	}
}
