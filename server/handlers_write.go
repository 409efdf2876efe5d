package server

import (
	"context"
	"net/http"

	"github.com/mscno/sheetlog/pkg/sheet"
)

func (s *Server) handlePost(ctx context.Context, req *request) (*Response, error) {
	payload, ok := req.params.Object("payload")
	if !ok {
		return badRequest(CodeInvalidPayload, Details{"message": "payload must be an object"}), nil
	}
	headers, err := readHeaders(ctx, req.sheet)
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return respond(http.StatusCreated, nil), nil
	}
	if err := req.sheet.AppendRows(ctx, [][]any{rowValues(payload, headers, s.timestamp())}); err != nil {
		return nil, err
	}
	return respond(http.StatusCreated, nil), nil
}

func (s *Server) handleDynamicPost(ctx context.Context, req *request) (*Response, error) {
	var items []map[string]any
	if obj, ok := req.params.Object("payload"); ok {
		items = []map[string]any{obj}
	} else if arr, ok := req.params.Array("payload"); ok {
		if items, ok = objects(arr); !ok {
			return badRequest(CodeInvalidPayload, Details{"message": "payload items must be objects"}), nil
		}
	} else {
		return badRequest(CodeInvalidPayload, Details{"message": "payload must be an object or an array"}), nil
	}

	headers, err := readHeaders(ctx, req.sheet)
	if err != nil {
		return nil, err
	}
	if headers, err = addMissingColumns(ctx, req.sheet, headers, items...); err != nil {
		return nil, err
	}
	stamp := s.timestamp()
	rows := make([][]any, 0, len(items))
	for _, item := range items {
		rows = append(rows, rowValues(item, headers, stamp))
	}
	if len(rows) > 0 && len(headers) > 0 {
		if err := req.sheet.AppendRows(ctx, rows); err != nil {
			return nil, err
		}
	}
	return respond(http.StatusCreated, nil), nil
}

func (s *Server) handleUpsert(ctx context.Context, req *request) (*Response, error) {
	sh := req.sheet
	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	idColumn := req.params.String("idColumn")
	col := headerIndex(headers, idColumn)
	if col < 0 {
		return badRequest(CodeIDColumnNotFound, Details{"idColumn": idColumn}), nil
	}
	payload, ok := req.params.Object("payload")
	if !ok {
		return badRequest(CodeInvalidPayload, Details{"message": "payload must be an object"}), nil
	}
	id := payload[idColumn]
	if req.params.Has("id") {
		id = req.params["id"]
	}
	if sheet.IsEmpty(id) {
		return badRequest(CodeIDMissing, Details{"idColumn": idColumn}), nil
	}

	row, err := findRow(ctx, sh, col+1, id)
	if err != nil {
		return nil, err
	}
	stamp := s.timestamp()

	if row > 0 {
		var values []any
		if req.params.Bool("partialUpdate") {
			if values, err = readRow(ctx, sh, row, len(headers)); err != nil {
				return nil, err
			}
			mergeRow(values, payload, headers, stamp)
		} else {
			values = rowValues(payload, headers, stamp)
			if _, has := payload[idColumn]; !has {
				values[col] = toCell(id)
			}
		}
		if err := sh.SetValues(ctx, row, 1, [][]any{values}); err != nil {
			return nil, err
		}
		return respond(http.StatusOK, map[string]any{"message": "Row updated", "_id": row}), nil
	}

	if headers, err = addMissingColumns(ctx, sh, headers, payload); err != nil {
		return nil, err
	}
	values := rowValues(payload, headers, stamp)
	if _, has := payload[idColumn]; !has {
		values[col] = toCell(id)
	}
	if err := sh.AppendRows(ctx, [][]any{values}); err != nil {
		return nil, err
	}
	inserted, err := sh.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusCreated, map[string]any{"message": "Row inserted", "_id": inserted}), nil
}

func (s *Server) handleBatchUpsert(ctx context.Context, req *request) (*Response, error) {
	sh := req.sheet
	arr, ok := req.params.Array("payload")
	if !ok {
		return badRequest(CodePayloadMustBeArray, Details{}), nil
	}
	items, ok := objects(arr)
	if !ok {
		return badRequest(CodePayloadMustBeArray, Details{"message": "payload items must be objects"}), nil
	}

	headers, err := readHeaders(ctx, sh)
	if err != nil {
		return nil, err
	}
	if headers, err = addMissingColumns(ctx, sh, headers, items...); err != nil {
		return nil, err
	}
	idColumn := req.params.String("idColumn")
	col := headerIndex(headers, idColumn)
	if col < 0 {
		return badRequest(CodeIDColumnNotFound, Details{"idColumn": idColumn}), nil
	}

	lastRow, err := sh.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := dataRows(ctx, sh, firstDataRow, lastRow, len(headers))
	if err != nil {
		return nil, err
	}
	rowByID := make(map[string]int, len(existing))
	for i, values := range existing {
		if key := cellString(values[col]); key != "" {
			if _, seen := rowByID[key]; !seen {
				rowByID[key] = i + firstDataRow
			}
		}
	}

	stamp := s.timestamp()
	partial := req.params.Bool("partialUpdate")
	var (
		updated int
		order   []string
		pending = make(map[string]map[string]any)
		dirty   = make(map[int]bool)
	)
	for _, item := range items {
		id := item[idColumn]
		if sheet.IsEmpty(id) {
			continue
		}
		key := cellString(id)
		row, found := rowByID[key]
		if !found {
			if _, queued := pending[key]; !queued {
				order = append(order, key)
			}
			pending[key] = item
			continue
		}
		values := existing[row-firstDataRow]
		if partial {
			mergeRow(values, item, headers, stamp)
		} else {
			existing[row-firstDataRow] = rowValues(item, headers, stamp)
		}
		dirty[row] = true
		updated++
	}

	for i := range existing {
		row := i + firstDataRow
		if !dirty[row] {
			continue
		}
		if err := sh.SetValues(ctx, row, 1, [][]any{existing[i]}); err != nil {
			return nil, err
		}
	}
	if len(order) > 0 {
		rows := make([][]any, 0, len(order))
		for _, key := range order {
			rows = append(rows, rowValues(pending[key], headers, stamp))
		}
		if err := sh.AppendRows(ctx, rows); err != nil {
			return nil, err
		}
	}
	return respond(http.StatusOK, map[string]any{"inserted": len(order), "updated": updated}), nil
}

func (s *Server) handlePut(ctx context.Context, req *request) (*Response, error) {
	payload, ok := req.params.Object("payload")
	if !ok {
		return badRequest(CodeInvalidPayload, Details{"message": "payload must be an object"}), nil
	}
	headers, err := readHeaders(ctx, req.sheet)
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return respond(http.StatusCreated, nil), nil
	}
	values, err := readRow(ctx, req.sheet, req.rowID, len(headers))
	if err != nil {
		return nil, err
	}
	for k, v := range payload {
		if i := headerIndex(headers, k); i >= 0 {
			values[i] = toCell(v)
		}
	}
	if err := req.sheet.SetValues(ctx, req.rowID, 1, [][]any{values}); err != nil {
		return nil, err
	}
	return respond(http.StatusCreated, nil), nil
}

func (s *Server) handleDelete(ctx context.Context, req *request) (*Response, error) {
	if err := req.sheet.ClearRows(ctx, []int{req.rowID}); err != nil {
		return nil, err
	}
	return respond(http.StatusNoContent, nil), nil
}

func (s *Server) handleBulkDelete(ctx context.Context, req *request) (*Response, error) {
	ids, ok := req.params.Array("ids")
	if !ok {
		return badRequest(CodeInvalidIDs, Details{"message": "ids must be an array"}), nil
	}
	rows := make([]int, 0, len(ids))
	for _, raw := range ids {
		id, err := Params{"id": raw}.Int("id", 0)
		if err != nil || id < firstDataRow || id > sheet.MaxRows {
			return badRequest(CodeRowIndexInvalid, Details{"_id": raw}), nil
		}
		rows = append(rows, id)
	}
	if len(rows) > 0 {
		if err := req.sheet.ClearRows(ctx, rows); err != nil {
			return nil, err
		}
	}
	return respond(http.StatusOK, map[string]any{"deleted": len(rows)}), nil
}

func (s *Server) handleBatchUpdate(ctx context.Context, req *request) (*Response, error) {
	arr, ok := req.params.Array("payload")
	if !ok {
		return badRequest(CodePayloadMustBeArray, Details{}), nil
	}
	headers, err := readHeaders(ctx, req.sheet)
	if err != nil {
		return nil, err
	}
	stamp := s.timestamp()
	updated := 0
	for _, raw := range arr {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, err := Params(item).Int("_id", 0)
		if err != nil || id < firstDataRow {
			continue
		}
		values, err := readRow(ctx, req.sheet, id, len(headers))
		if err != nil {
			return nil, err
		}
		fields := make(map[string]any, len(item))
		for k, v := range item {
			if k != "_id" {
				fields[k] = v
			}
		}
		mergeRow(values, fields, headers, stamp)
		if err := req.sheet.SetValues(ctx, id, 1, [][]any{values}); err != nil {
			return nil, err
		}
		updated++
	}
	return respond(http.StatusOK, map[string]any{"updated": updated}), nil
}

// findRow returns the first data row whose cell in col equals id, or 0.
func findRow(ctx context.Context, sh sheet.Sheet, col int, id any) (int, error) {
	lastRow, err := sh.LastRow(ctx)
	if err != nil || lastRow < firstDataRow {
		return 0, err
	}
	values, err := sh.Values(ctx, sheet.Range{Row: firstDataRow, Col: col, NumRows: lastRow - 1, NumCols: 1})
	if err != nil {
		return 0, err
	}
	for i, v := range values {
		if sameValue(v[0], id) {
			return i + firstDataRow, nil
		}
	}
	return 0, nil
}

func readRow(ctx context.Context, sh sheet.Sheet, row, width int) ([]any, error) {
	if width == 0 {
		return []any{}, nil
	}
	values, err := sh.Values(ctx, sheet.Range{Row: row, Col: 1, NumRows: 1, NumCols: width})
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// mergeRow writes the known fields of obj into values and refreshes the Date
// Modified cell.
func mergeRow(values []any, obj map[string]any, headers []string, stamp string) {
	if hasDateModified(headers) {
		values[0] = stamp
	}
	for k, v := range obj {
		i := headerIndex(headers, k)
		if i < 0 || (i == 0 && hasDateModified(headers)) {
			continue
		}
		values[i] = toCell(v)
	}
}
