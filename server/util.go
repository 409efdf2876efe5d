package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mscno/sheetlog/pkg/sheet"
)

const (
	dateModified    = "Date Modified"
	timestampLayout = "01/02/2006 15:04:05"
	firstDataRow    = 2
)

// cellString renders a cell or parameter value the way ids are compared.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// sameValue matches a cell against an id by string or numeric equality.
func sameValue(cell, id any) bool {
	if sheet.IsEmpty(cell) || sheet.IsEmpty(id) {
		return false
	}
	if cellString(cell) == cellString(id) {
		return true
	}
	a, okA := toNumber(cell)
	b, okB := toNumber(id)
	return okA && okB && a == b
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// toCell converts a payload value into something a cell can hold.
func toCell(v any) any {
	switch v.(type) {
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return v
}

// readHeaders returns row 1 up to its last non-empty cell.
func readHeaders(ctx context.Context, sh sheet.Sheet) ([]string, error) {
	lastCol, err := sh.LastColumn(ctx)
	if err != nil {
		return nil, err
	}
	if lastCol == 0 {
		return nil, nil
	}
	values, err := sh.Values(ctx, sheet.Range{Row: 1, Col: 1, NumRows: 1, NumCols: lastCol})
	if err != nil {
		return nil, err
	}
	headers := make([]string, len(values[0]))
	for i, v := range values[0] {
		headers[i] = cellString(v)
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	return headers, nil
}

func headerIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

func hasDateModified(headers []string) bool {
	return len(headers) > 0 && headers[0] == dateModified
}

// rowObject maps a row onto the headers. It returns nil for an empty row.
// An id of 0 leaves out the _id field.
func rowObject(row []any, id int, headers []string) map[string]any {
	if sheet.IsEmptyRow(row) {
		return nil
	}
	obj := make(map[string]any, len(headers)+1)
	if id > 0 {
		obj["_id"] = id
	}
	for i, h := range headers {
		if h == "" {
			continue
		}
		if i < len(row) {
			obj[h] = row[i]
		} else {
			obj[h] = ""
		}
	}
	return obj
}

// rowValues lays obj out along the headers. When the first header is Date
// Modified it receives stamp instead of a payload value.
func rowValues(obj map[string]any, headers []string, stamp string) []any {
	row := make([]any, len(headers))
	for i, h := range headers {
		switch {
		case i == 0 && h == dateModified:
			row[i] = stamp
		case h == "":
			row[i] = ""
		default:
			row[i] = toCell(obj[h])
		}
	}
	return row
}

// addMissingColumns appends a header for every payload key not yet present,
// in first-seen order, and returns the resulting headers.
func addMissingColumns(ctx context.Context, sh sheet.Sheet, headers []string, objs ...map[string]any) ([]string, error) {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	var added []any
	for _, obj := range objs {
		for _, key := range sortedKeys(obj) {
			if !known[key] {
				known[key] = true
				added = append(added, key)
			}
		}
	}
	if len(added) == 0 {
		return headers, nil
	}
	if err := sh.InsertColumnsAfter(ctx, len(headers), len(added)); err != nil {
		return nil, err
	}
	if err := sh.SetValues(ctx, 1, len(headers)+1, [][]any{added}); err != nil {
		return nil, err
	}
	out := append([]string{}, headers...)
	for _, a := range added {
		out = append(out, a.(string))
	}
	return out, nil
}

// dataRows reads rows [from, to] in full header width.
func dataRows(ctx context.Context, sh sheet.Sheet, from, to, width int) ([][]any, error) {
	if to < from || width == 0 {
		return [][]any{}, nil
	}
	return sh.Values(ctx, sheet.Range{Row: from, Col: 1, NumRows: to - from + 1, NumCols: width})
}

func objects(values []any) ([]map[string]any, bool) {
	out := make([]map[string]any, 0, len(values))
	for _, v := range values {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, obj)
	}
	return out, true
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
