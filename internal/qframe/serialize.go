package qframe

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
)

// ToCSV renders the frame as UTF-8 CSV with a header row and no row index.
func (f *Frame) ToCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(f.names); err != nil {
		return nil, err
	}

	for row := 0; row < f.nrows; row++ {
		record := make([]string, len(f.cols))
		for ci, c := range f.cols {
			record[ci] = csvCell(c, row)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvCell(c column, row int) string {
	switch cc := c.(type) {
	case *int64Column:
		return strconv.FormatInt(cc.data[row], 10)
	case *float64Column:
		if isNaN(cc.data[row]) {
			return ""
		}
		return strconv.FormatFloat(cc.data[row], 'g', -1, 64)
	case *stringColumn:
		if cc.isNull(row) {
			return ""
		}
		return cc.data[row]
	case *enumColumn:
		v, null := cc.valueAt(row)
		if null {
			return ""
		}
		return v
	default:
		return ""
	}
}

// ToJSON renders the frame as a JSON array of objects, one per row, with
// column keys in frame order. Float NaN and explicit string/enum nulls
// serialize as JSON null.
func (f *Frame) ToJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for row := 0; row < f.nrows; row++ {
		if row > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for ci, name := range f.names {
			if ci > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(name)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := jsonCell(f.cols[ci], row)
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func jsonCell(c column, row int) ([]byte, error) {
	switch cc := c.(type) {
	case *int64Column:
		return json.Marshal(cc.data[row])
	case *float64Column:
		if isNaN(cc.data[row]) {
			return []byte("null"), nil
		}
		return json.Marshal(cc.data[row])
	case *stringColumn:
		if cc.isNull(row) {
			return []byte("null"), nil
		}
		return json.Marshal(cc.data[row])
	case *enumColumn:
		v, null := cc.valueAt(row)
		if null {
			return []byte("null"), nil
		}
		return json.Marshal(v)
	default:
		return []byte("null"), nil
	}
}
