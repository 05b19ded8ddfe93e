package qframe

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
)

// FromCSV parses CSV bytes (UTF-8, comma-separated, header row first) into
// a Frame. column_type_hints force a column to "string" or "enum"
// (anything else is inferred by probing numeric-ness); stand-ins are
// applied after construction.
func FromCSV(data []byte, hints map[string]string, standIns []StandIn) (*Frame, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, malformed("Empty CSV input", nil)
		}
		return nil, malformed("Invalid CSV", err.Error())
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed("Invalid CSV", err.Error())
		}
		rows = append(rows, rec)
	}

	cols := make([]column, len(header))
	for ci, name := range header {
		cellAt := func(ri int) string {
			if ci < len(rows[ri]) {
				return rows[ri][ci]
			}
			return ""
		}

		hint := hints[name]
		switch hint {
		case "string":
			cols[ci] = buildStringColumn(rows, ci)
		case "enum":
			sc := buildStringColumn(rows, ci)
			cols[ci] = newEnumColumn(sc.data, sc.null)
		default:
			switch probeCSVColumnType(rows, ci) {
			case KindInt64:
				data := make([]int64, len(rows))
				for ri := range rows {
					v, _ := strconv.ParseInt(cellAt(ri), 10, 64)
					data[ri] = v
				}
				cols[ci] = newInt64Column(data)
			case KindFloat64:
				data := make([]float64, len(rows))
				for ri := range rows {
					cell := cellAt(ri)
					if cell == "" {
						data[ri] = nan()
						continue
					}
					v, _ := strconv.ParseFloat(cell, 64)
					data[ri] = v
				}
				cols[ci] = newFloat64Column(data)
			default:
				cols[ci] = buildStringColumn(rows, ci)
			}
		}
	}

	names := append([]string(nil), header...)
	frame, err := newFrame(names, cols)
	if err != nil {
		return nil, err
	}
	return applyStandIns(frame, standIns), nil
}

func buildStringColumn(rows [][]string, ci int) *stringColumn {
	data := make([]string, len(rows))
	for ri := range rows {
		if ci < len(rows[ri]) {
			data[ri] = rows[ri][ci]
		}
	}
	return newStringColumn(data, nil)
}

// probeCSVColumnType infers a column's type by checking whether every
// non-empty cell parses as an integer, then as a float; an empty cell
// never disqualifies a numeric column (it becomes NaN), but the NA-style
// sentinels ("NA", "null", "NaN") are rejected as literal strings per
// spec.md §4.3.1.
func probeCSVColumnType(rows [][]string, ci int) Kind {
	sawAny := false
	sawEmpty := false
	allInt := true
	allFloat := true
	for _, row := range rows {
		var cell string
		if ci < len(row) {
			cell = row[ci]
		}
		if cell == "" {
			sawEmpty = true
			continue
		}
		sawAny = true
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			allInt = false
		}
		if v, err := strconv.ParseFloat(cell, 64); err != nil || isNaN(v) {
			allFloat = false
		}
	}

	if !sawAny {
		return KindString
	}
	// int64 cannot represent null, so a column that is otherwise
	// all-integer but has a blank cell is widened to float64 (blank -> NaN).
	if allInt && !sawEmpty {
		return KindInt64
	}
	if allFloat {
		return KindFloat64
	}
	return KindString
}
