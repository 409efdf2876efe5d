package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"net/http"
	"slices"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/mscno/sheetlog/pkg/sheet"
)

func (s *Server) handleGet(ctx context.Context, req *request) (*Response, error) {
	if req.rowID > 0 {
		return s.getRow(ctx, req.sheet, req.rowID)
	}
	return s.listRows(ctx, req)
}

func (s *Server) getRow(ctx context.Context, sh sheet.Sheet, id int) (*Response, error) {
	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	lastCol, err := sh.LastColumn(ctx)
	if err != nil {
		return nil, err
	}
	if lastCol == 0 {
		return notFound(CodeRowNotFound, Details{"_id": id}), nil
	}
	values, err := sh.Values(ctx, sheet.Range{Row: id, Col: 1, NumRows: 1, NumCols: lastCol})
	if err != nil {
		return nil, err
	}
	obj := rowObject(values[0], id, headers)
	if obj == nil {
		return notFound(CodeRowNotFound, Details{"_id": id}), nil
	}
	return respond(http.StatusOK, obj), nil
}

func (s *Server) listRows(ctx context.Context, req *request) (*Response, error) {
	sh := req.sheet
	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	lastRow, lastCol, err := sh.Extent(ctx)
	if err != nil {
		return nil, err
	}

	total := max(lastRow-firstDataRow+1, 0)
	limit, err := req.params.Int("limit", total)
	if err != nil || limit < 0 {
		return notFound(CodeInvalidLimit, Details{"limit": req.params["limit"]}), nil
	}
	asc := !strings.EqualFold(req.params.String("order"), "desc")

	first := firstDataRow
	if !asc {
		first = lastRow - limit + 1
	}
	if req.params.Has("start_id") {
		start, err := req.params.Int("start_id", 0)
		if err != nil || start < firstDataRow || start > lastRow {
			return notFound(CodeStartIDOutOfRange, Details{"start_id": req.params["start_id"]}), nil
		}
		first = start
		if !asc {
			first = start - limit + 1
		}
	}
	last := min(first+limit-1, lastRow)
	first = max(first, firstDataRow)
	if first > last {
		return respond(http.StatusOK, []any{}), nil
	}

	values, err := dataRows(ctx, sh, first, last, lastCol)
	if err != nil {
		return nil, err
	}
	if req.params.Bool("raw") {
		if !asc {
			slices.Reverse(values)
		}
		return respond(http.StatusOK, map[string]any{"headers": headers, "values": values}), nil
	}

	rows := mapRows(values, first, headers)
	if !asc {
		slices.Reverse(rows)
	}
	extra := map[string]any{}
	next := last + 1
	if !asc {
		next = first - 1
	}
	if next >= firstDataRow && next <= lastRow {
		extra["next"] = next
	}
	return respondWith(http.StatusOK, rows, extra), nil
}

func (s *Server) handleGetLast(ctx context.Context, req *request) (*Response, error) {
	sh := req.sheet
	limit, err := req.params.Int("limit", 10)
	if err != nil || limit < 0 {
		return badRequest(CodeInvalidLimit, Details{"limit": req.params["limit"]}), nil
	}
	raw := req.params.Bool("raw")
	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	lastRow, lastCol, err := sh.Extent(ctx)
	if err != nil {
		return nil, err
	}
	if lastRow < firstDataRow {
		if raw {
			return respond(http.StatusOK, map[string]any{"headers": headers, "values": []any{}}), nil
		}
		return respond(http.StatusOK, []any{}), nil
	}

	start := max(firstDataRow, lastRow-limit+1)
	values, err := dataRows(ctx, sh, start, lastRow, lastCol)
	if err != nil {
		return nil, err
	}
	total := lastRow - 1
	if raw {
		return respond(http.StatusOK, map[string]any{
			"headers":  headers,
			"values":   values,
			"startRow": start,
			"endRow":   lastRow,
			"total":    total,
		}), nil
	}
	return respondWith(http.StatusOK, mapRows(values, start, headers), map[string]any{
		"startRow": start,
		"endRow":   lastRow,
		"total":    total,
	}), nil
}

func (s *Server) handleFind(ctx context.Context, req *request) (*Response, error) {
	sh := req.sheet
	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	idColumn := req.params.String("idColumn")
	col := headerIndex(headers, idColumn) + 1
	if col < 1 {
		return badRequest(CodeIDColumnNotFound, Details{"idColumn": idColumn}), nil
	}
	if !req.params.Has("id") {
		return badRequest(CodeIDMissing, Details{"idColumn": idColumn}), nil
	}
	id := req.params["id"]
	all := req.params.Bool("returnAllMatches")

	lastRow, lastCol, err := sh.Extent(ctx)
	if err != nil {
		return nil, err
	}
	if lastRow < firstDataRow {
		return notFound(CodeNoMatchesFound, Details{}), nil
	}
	ids, err := sh.Values(ctx, sheet.Range{Row: firstDataRow, Col: col, NumRows: lastRow - 1, NumCols: 1})
	if err != nil {
		return nil, err
	}

	var matched []int
	for i := len(ids) - 1; i >= 0; i-- {
		if sameValue(ids[i][0], id) {
			matched = append(matched, i+firstDataRow)
			if !all {
				break
			}
		}
	}
	if len(matched) == 0 {
		return notFound(CodeNoMatchesFound, Details{}), nil
	}
	slices.Reverse(matched)

	lo, hi := matched[0], matched[len(matched)-1]
	values, err := dataRows(ctx, sh, lo, hi, lastCol)
	if err != nil {
		return nil, err
	}
	matches := make([]map[string]any, 0, len(matched))
	for _, row := range matched {
		if obj := rowObject(values[row-lo], row, headers); obj != nil {
			matches = append(matches, obj)
		}
	}
	if !all {
		if len(matches) == 0 {
			return notFound(CodeNoMatchesFound, Details{}), nil
		}
		return respond(http.StatusOK, matches[0]), nil
	}
	return respond(http.StatusOK, matches), nil
}

func (s *Server) handlePaginatedGet(ctx context.Context, req *request) (*Response, error) {
	sh := req.sheet
	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	sortBy := dateModified
	if req.params.Has("sortBy") {
		sortBy = req.params.String("sortBy")
	}
	if headerIndex(headers, sortBy) < 0 {
		return badRequest(CodeSortColumnNotFound, Details{"sortBy": sortBy}), nil
	}
	limit, err := req.params.Int("limit", 10)
	if err != nil || limit < 1 {
		return badRequest(CodeInvalidLimit, Details{"limit": req.params["limit"]}), nil
	}
	desc := !strings.EqualFold(req.params.String("sortDir"), "asc")

	lastRow, lastCol, err := sh.Extent(ctx)
	if err != nil {
		return nil, err
	}
	cursor := firstDataRow
	if desc {
		cursor = lastRow
	}
	if req.params.Has("cursor") {
		if cursor, err = req.params.Int("cursor", cursor); err != nil {
			return badRequest(CodeInvalidCursor, Details{"cursor": req.params["cursor"]}), nil
		}
	}
	empty := map[string]any{"cursor": nil, "hasMore": false}
	if cursor < firstDataRow || cursor > lastRow {
		return respondWith(http.StatusOK, []any{}, empty), nil
	}

	from, to := cursor, min(cursor+limit-1, lastRow)
	if desc {
		from, to = max(cursor-limit+1, firstDataRow), cursor
	}
	values, err := dataRows(ctx, sh, from, to, lastCol)
	if err != nil {
		return nil, err
	}
	rows := mapRows(values, from, headers)

	var next any
	hasMore := to < lastRow
	if hasMore {
		next = to + 1
	}
	if desc {
		slices.Reverse(rows)
		hasMore = from > firstDataRow
		next = nil
		if hasMore {
			next = from - 1
		}
	}
	return respondWith(http.StatusOK, rows, map[string]any{"cursor": next, "hasMore": hasMore}), nil
}

func (s *Server) handleExport(ctx context.Context, req *request) (*Response, error) {
	sh := req.sheet
	format := "json"
	if req.params.Has("format") {
		format = strings.ToLower(req.params.String("format"))
	}
	if format != "json" && format != "csv" && format != "xlsx" {
		return badRequest(CodeInvalidFormat, Details{"format": format}), nil
	}

	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	lastRow, lastCol, err := sh.Extent(ctx)
	if err != nil {
		return nil, err
	}
	values, err := dataRows(ctx, sh, firstDataRow, lastRow, lastCol)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for _, v := range values {
		if obj := rowObject(v, 0, headers); obj != nil {
			rows = append(rows, obj)
		}
	}

	switch format {
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write(headers)
		for _, obj := range rows {
			record := make([]string, len(headers))
			for i, h := range headers {
				record[i] = cellString(obj[h])
			}
			_ = w.Write(record)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return respondWith(http.StatusOK, buf.String(), map[string]any{"format": "csv"}), nil
	case "xlsx":
		grid := make([][]any, 0, len(rows)+1)
		head := make([]any, len(headers))
		for i, h := range headers {
			head[i] = h
		}
		grid = append(grid, head)
		for _, obj := range rows {
			line := make([]any, len(headers))
			for i, h := range headers {
				line[i] = obj[h]
			}
			grid = append(grid, line)
		}
		b, err := sheet.EncodeWorkbook(sh.Name(), grid)
		if err != nil {
			return nil, err
		}
		return respondWith(http.StatusOK, base64.StdEncoding.EncodeToString(b), map[string]any{
			"format":   "xlsx",
			"encoding": "base64",
		}), nil
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return respond(http.StatusOK, rows), nil
}

func (s *Server) handleAggregate(ctx context.Context, req *request) (*Response, error) {
	sh := req.sheet
	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	column := req.params.String("column")
	col := headerIndex(headers, column)
	if col < 0 {
		return badRequest(CodeColumnNotFound, Details{"column": column}), nil
	}
	operation := strings.ToLower(req.params.String("operation"))
	switch operation {
	case "sum", "avg", "min", "max", "count":
	default:
		return badRequest(CodeInvalidOperation, Details{"operation": req.params.String("operation")}), nil
	}
	where, _ := req.params.Object("where")
	for _, k := range sortedKeys(where) {
		if headerIndex(headers, k) < 0 {
			return badRequest(CodeColumnNotFound, Details{"column": k}), nil
		}
	}

	lastRow, lastCol, err := sh.Extent(ctx)
	if err != nil {
		return nil, err
	}
	values, err := dataRows(ctx, sh, firstDataRow, lastRow, lastCol)
	if err != nil {
		return nil, err
	}
	var data stats.Float64Data
	for _, row := range values {
		if !matchesWhere(row, headers, where) {
			continue
		}
		if f, ok := row[col].(float64); ok {
			data = append(data, f)
		}
	}

	var result any
	switch {
	case operation == "count":
		result = len(data)
	case operation == "sum" && len(data) == 0:
		result = 0
	case len(data) == 0:
		result = nil
	default:
		var r float64
		switch operation {
		case "sum":
			r, err = stats.Sum(data)
		case "avg":
			r, err = stats.Mean(data)
		case "min":
			r, err = stats.Min(data)
		case "max":
			r, err = stats.Max(data)
		}
		if err != nil {
			return nil, err
		}
		result = r
	}
	return respond(http.StatusOK, map[string]any{"result": result}), nil
}

func matchesWhere(row []any, headers []string, where map[string]any) bool {
	for k, want := range where {
		i := headerIndex(headers, k)
		if i < 0 || i >= len(row) {
			return false
		}
		if !sameValue(row[i], want) && !(sheet.IsEmpty(row[i]) && sheet.IsEmpty(want)) {
			return false
		}
	}
	return true
}

// mapRows maps values read from row first onwards, dropping empty rows.
func mapRows(values [][]any, first int, headers []string) []map[string]any {
	rows := make([]map[string]any, 0, len(values))
	for i, v := range values {
		if obj := rowObject(v, first+i, headers); obj != nil {
			rows = append(rows, obj)
		}
	}
	return rows
}
