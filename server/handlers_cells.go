package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mscno/sheetlog/pkg/sheet"
)

func (s *Server) handleGetRows(ctx context.Context, req *request) (*Response, error) {
	start, err := req.params.Int("startRow", 0)
	if err != nil || !req.params.Has("startRow") {
		return badRequest(CodeInvalidRange, Details{"startRow": req.params["startRow"]}), nil
	}
	end, err := req.params.Int("endRow", start)
	if err != nil {
		return badRequest(CodeInvalidRange, Details{"endRow": req.params["endRow"]}), nil
	}
	lastRow, lastCol, err := req.sheet.Extent(ctx)
	if err != nil {
		return nil, err
	}
	end = min(end, lastRow)
	withFormulas := req.params.Bool("includeFormulas")

	out := map[string]any{"values": [][]any{}}
	if withFormulas {
		out["formulas"] = [][]string{}
	}
	if start < 1 || start > end || lastCol == 0 {
		return respond(http.StatusOK, out), nil
	}
	r := sheet.Range{Row: start, Col: 1, NumRows: end - start + 1, NumCols: lastCol}
	if out["values"], err = req.sheet.Values(ctx, r); err != nil {
		return nil, err
	}
	if withFormulas {
		if out["formulas"], err = req.sheet.Formulas(ctx, r); err != nil {
			return nil, err
		}
	}
	return respond(http.StatusOK, out), nil
}

func (s *Server) handleGetColumns(ctx context.Context, req *request) (*Response, error) {
	start, err := columnIndex(req.params["startColumn"])
	if err != nil {
		return badRequest(CodeInvalidColumn, Details{"startColumn": req.params["startColumn"]}), nil
	}
	end := start
	if req.params.Has("endColumn") {
		if end, err = columnIndex(req.params["endColumn"]); err != nil {
			return badRequest(CodeInvalidColumn, Details{"endColumn": req.params["endColumn"]}), nil
		}
	}
	lastRow, lastCol, err := req.sheet.Extent(ctx)
	if err != nil {
		return nil, err
	}
	end = min(end, lastCol)
	if start < 1 || start > end || lastRow == 0 {
		return respond(http.StatusOK, map[string]any{"values": [][]any{}}), nil
	}

	r := sheet.Range{Row: 1, Col: start, NumRows: lastRow, NumCols: end - start + 1}
	out, err := readCells(ctx, req.sheet, r, req.params.Bool("includeFormulas"))
	if err != nil {
		return nil, err
	}
	if req.params.Bool("includeFormatting") {
		formats, err := cellFormats(ctx, req.sheet, r)
		if err != nil {
			return nil, err
		}
		out["backgrounds"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.Background })
		out["fontColors"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.FontColor })
		out["numberFormats"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.NumberFormat })
	}
	return respond(http.StatusOK, out), nil
}

func (s *Server) handleGetAllCells(ctx context.Context, req *request) (*Response, error) {
	lastRow, lastCol, err := req.sheet.Extent(ctx)
	if err != nil {
		return nil, err
	}
	withFormulas := req.params.Bool("includeFormulas")
	out := map[string]any{"values": [][]any{}}
	if withFormulas {
		out["formulas"] = [][]string{}
	}
	r := sheet.Range{Row: 1, Col: 1, NumRows: lastRow, NumCols: lastCol}
	if lastRow > 0 && lastCol > 0 {
		if out, err = readCells(ctx, req.sheet, r, withFormulas); err != nil {
			return nil, err
		}
	}
	out["lastRow"] = lastRow
	out["lastColumn"] = lastCol

	if req.params.Bool("includeFormatting") {
		var formats [][]sheet.CellFormat
		if lastRow > 0 && lastCol > 0 {
			if formats, err = cellFormats(ctx, req.sheet, r); err != nil {
				return nil, err
			}
		}
		out["backgrounds"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.Background })
		out["fontColors"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.FontColor })
		out["numberFormats"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.NumberFormat })
		out["fontFamilies"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.FontFamily })
		out["fontSizes"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.FontSize })
		out["fontStyles"] = formatGrid(formats, func(f sheet.CellFormat) any {
			if f.Italic {
				return "italic"
			}
			return "normal"
		})
		out["horizontalAlignments"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.HorizontalAlignment })
		out["verticalAlignments"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.VerticalAlignment })
		out["wraps"] = formatGrid(formats, func(f sheet.CellFormat) any { return f.Wrap })
	}
	return respond(http.StatusOK, out), nil
}

func (s *Server) handleRangeUpdate(ctx context.Context, req *request) (*Response, error) {
	arr, ok := req.params.Array("data")
	if !ok || len(arr) == 0 {
		return badRequest(CodeInvalidData, Details{"message": "Data must be a 2D array"}), nil
	}
	data := make([][]any, len(arr))
	for i, raw := range arr {
		row, ok := raw.([]any)
		if !ok || len(row) == 0 || (i > 0 && len(row) != len(data[0])) {
			return badRequest(CodeInvalidData, Details{"message": "Data must be a non-empty rectangular 2D array"}), nil
		}
		data[i] = make([]any, len(row))
		for j, v := range row {
			data[i][j] = toCell(v)
		}
	}
	startRow, errRow := req.params.Int("startRow", 1)
	startCol, errCol := req.params.Int("startCol", 1)
	if errRow != nil || errCol != nil || startRow < 1 || startCol < 1 {
		return badRequest(CodeInvalidRange, Details{"startRow": req.params["startRow"], "startCol": req.params["startCol"]}), nil
	}

	numRows, numCols := len(data), len(data[0])
	if err := (sheet.Range{Row: startRow, Col: startCol, NumRows: numRows, NumCols: numCols}).Validate(); err != nil {
		return badRequest(CodeInvalidRange, Details{"startRow": startRow, "startCol": startCol, "message": err.Error()}), nil
	}
	if err := req.sheet.SetValues(ctx, startRow, startCol, data); err != nil {
		s.logger.Error("range update failed", "sheet", req.sheet.Name(), "error", err)
		return failure(http.StatusInternalServerError, CodeUpdateFailed, Details{
			"message": err.Error(),
			"range":   fmt.Sprintf("%d,%d to %d,%d", startRow, startCol, startRow+numRows, startCol+numCols),
		}), nil
	}

	headers, err := readHeaders(ctx, req.sheet)
	if err != nil {
		return nil, err
	}
	if hasDateModified(headers) {
		from := max(startRow, firstDataRow)
		end := startRow + numRows - 1
		if from <= end {
			stamps := make([][]any, end-from+1)
			stamp := s.timestamp()
			for i := range stamps {
				stamps[i] = []any{stamp}
			}
			if err := req.sheet.SetValues(ctx, from, 1, stamps); err != nil {
				return nil, err
			}
		}
	}
	return respond(http.StatusOK, map[string]any{
		"updated": map[string]any{"rows": numRows, "columns": numCols, "cells": numRows * numCols},
	}), nil
}

// rangeOptions trim a block read by GET_RANGE.
type rangeOptions struct {
	stopAtEmptyRow    bool
	stopAtEmptyColumn bool
	skipEmptyRows     bool
	skipEmptyColumns  bool
	includeFormulas   bool
}

func (s *Server) handleGetRange(ctx context.Context, req *request) (*Response, error) {
	startRow, errRow := req.params.Int("startRow", 1)
	startCol, errCol := req.params.Int("startCol", 1)
	if errRow != nil || errCol != nil {
		return badRequest(CodeInvalidRange, Details{"startRow": req.params["startRow"], "startCol": req.params["startCol"]}), nil
	}
	block, err := readBlock(ctx, req.sheet, startRow, startCol, rangeOptions{
		stopAtEmptyRow:    req.params.Bool("stopAtEmptyRow"),
		stopAtEmptyColumn: req.params.Bool("stopAtEmptyColumn"),
		skipEmptyRows:     req.params.Bool("skipEmptyRows"),
		skipEmptyColumns:  req.params.Bool("skipEmptyColumns"),
		includeFormulas:   req.params.Bool("includeFormulas"),
	})
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, block), nil
}

func (s *Server) handleGetDataBlock(ctx context.Context, req *request) (*Response, error) {
	lastRow, lastCol, err := req.sheet.Extent(ctx)
	if err != nil {
		return nil, err
	}
	search, _ := req.params.Object("searchRange")
	p := Params(search)
	startRow, err1 := p.Int("startRow", 1)
	startCol, err2 := p.Int("startCol", 1)
	endRow, err3 := p.Int("endRow", lastRow)
	endCol, err4 := p.Int("endCol", lastCol)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || startRow < 1 || startCol < 1 {
		return badRequest(CodeInvalidRange, Details{"searchRange": req.params["searchRange"]}), nil
	}
	endRow, endCol = min(endRow, lastRow), min(endCol, lastCol)
	if startRow > endRow || startCol > endCol {
		return respond(http.StatusOK, emptyBlock()), nil
	}

	values, err := req.sheet.Values(ctx, sheet.Range{Row: startRow, Col: startCol, NumRows: endRow - startRow + 1, NumCols: endCol - startCol + 1})
	if err != nil {
		return nil, err
	}
	for i, row := range values {
		for j, v := range row {
			if sheet.IsEmpty(v) {
				continue
			}
			block, err := readBlock(ctx, req.sheet, startRow+i, startCol+j, rangeOptions{
				stopAtEmptyRow:    true,
				stopAtEmptyColumn: true,
				skipEmptyRows:     true,
				skipEmptyColumns:  true,
			})
			if err != nil {
				return nil, err
			}
			return respond(http.StatusOK, block), nil
		}
	}
	return respond(http.StatusOK, emptyBlock()), nil
}

func emptyBlock() map[string]any {
	return map[string]any{"values": [][]any{}, "range": nil}
}

// readBlock reads from (startRow, startCol) to the sheet's extent and trims
// empty rows and columns as opts ask.
func readBlock(ctx context.Context, sh sheet.Sheet, startRow, startCol int, opts rangeOptions) (map[string]any, error) {
	lastRow, lastCol, err := sh.Extent(ctx)
	if err != nil {
		return nil, err
	}
	if startRow < 1 || startCol < 1 || startRow > lastRow || startCol > lastCol {
		return emptyBlock(), nil
	}
	r := sheet.Range{Row: startRow, Col: startCol, NumRows: lastRow - startRow + 1, NumCols: lastCol - startCol + 1}
	values, err := sh.Values(ctx, r)
	if err != nil {
		return nil, err
	}
	var formulas [][]string
	if opts.includeFormulas {
		if formulas, err = sh.Formulas(ctx, r); err != nil {
			return nil, err
		}
	}

	cols := make([]int, 0, r.NumCols)
	for j := 0; j < r.NumCols; j++ {
		if !opts.stopAtEmptyColumn && !opts.skipEmptyColumns {
			cols = append(cols, j)
			continue
		}
		empty := true
		for i := range values {
			if !sheet.IsEmpty(values[i][j]) {
				empty = false
				break
			}
		}
		if !empty {
			cols = append(cols, j)
		} else if opts.stopAtEmptyColumn {
			break
		}
	}
	if len(cols) == 0 {
		return emptyBlock(), nil
	}

	rows := make([]int, 0, r.NumRows)
	for i := 0; i < r.NumRows; i++ {
		if !opts.stopAtEmptyRow && !opts.skipEmptyRows {
			rows = append(rows, i)
			continue
		}
		empty := true
		for _, j := range cols {
			if !sheet.IsEmpty(values[i][j]) {
				empty = false
				break
			}
		}
		if !empty {
			rows = append(rows, i)
		} else if opts.stopAtEmptyRow {
			break
		}
	}
	if len(rows) == 0 {
		return emptyBlock(), nil
	}

	outValues := make([][]any, len(rows))
	var outFormulas [][]string
	if formulas != nil {
		outFormulas = make([][]string, len(rows))
	}
	for k, i := range rows {
		outValues[k] = make([]any, len(cols))
		if outFormulas != nil {
			outFormulas[k] = make([]string, len(cols))
		}
		for l, j := range cols {
			outValues[k][l] = values[i][j]
			if outFormulas != nil {
				outFormulas[k][l] = formulas[i][j]
			}
		}
	}

	endRow := startRow + len(rows) - 1
	endCol := startCol + len(cols) - 1
	out := map[string]any{
		"values": outValues,
		"range": map[string]any{
			"startRow": startRow,
			"startCol": startCol,
			"endRow":   endRow,
			"endCol":   endCol,
			"numRows":  len(rows),
			"numCols":  len(cols),
		},
	}
	if outFormulas != nil {
		out["formulas"] = outFormulas
	}
	return out, nil
}

func readCells(ctx context.Context, sh sheet.Sheet, r sheet.Range, withFormulas bool) (map[string]any, error) {
	values, err := sh.Values(ctx, r)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"values": values}
	if withFormulas {
		formulas, err := sh.Formulas(ctx, r)
		if err != nil {
			return nil, err
		}
		out["formulas"] = formulas
	}
	return out, nil
}

// cellFormats falls back to default formatting for backends without a
// Formatter.
func cellFormats(ctx context.Context, sh sheet.Sheet, r sheet.Range) ([][]sheet.CellFormat, error) {
	if f, ok := sh.(sheet.Formatter); ok {
		return f.Formats(ctx, r)
	}
	out := make([][]sheet.CellFormat, r.NumRows)
	for i := range out {
		out[i] = make([]sheet.CellFormat, r.NumCols)
		for j := range out[i] {
			out[i][j] = sheet.DefaultCellFormat
		}
	}
	return out, nil
}

func formatGrid(formats [][]sheet.CellFormat, field func(sheet.CellFormat) any) [][]any {
	out := make([][]any, len(formats))
	for i, row := range formats {
		out[i] = make([]any, len(row))
		for j, f := range row {
			out[i][j] = field(f)
		}
	}
	return out
}

// columnIndex accepts a column number or letters.
func columnIndex(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("invalid column identifier %v", t)
		}
		return int(t), nil
	case int:
		return t, nil
	case string:
		t = strings.TrimSpace(t)
		if n, err := strconv.Atoi(t); err == nil {
			return n, nil
		}
		return sheet.ColumnNumber(t)
	}
	return 0, fmt.Errorf("invalid column identifier %v", v)
}
