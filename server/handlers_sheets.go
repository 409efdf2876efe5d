package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"

	"github.com/mscno/sheetlog/pkg/sheet"
)

func (s *Server) handleGetSheets(ctx context.Context, req *request) (*Response, error) {
	sheets, err := s.spreadsheet.Sheets(ctx)
	if err != nil {
		return nil, err
	}
	linker, canLink := s.spreadsheet.(sheet.Linker)
	out := make([]map[string]any, 0, len(sheets))
	for _, sh := range sheets {
		info := map[string]any{
			"name":     sh.Name(),
			"id":       sh.ID(),
			"index":    sh.Index() + 1,
			"isHidden": sh.Hidden(),
		}
		if canLink {
			info["csvUrl"], info["sheetUrl"] = linker.SheetLinks(sh)
		}
		out = append(out, info)
	}
	return respond(http.StatusOK, out), nil
}

func (s *Server) handleGetCSV(ctx context.Context, req *request) (*Response, error) {
	name := req.params.String("sheet")
	sh, err := s.spreadsheet.Sheet(ctx, name)
	if errors.Is(err, sheet.ErrSheetNotFound) {
		return notFound(CodeSheetNotFound, Details{"sheet": name}), nil
	}
	if err != nil {
		return nil, err
	}

	var body []byte
	if exporter, ok := s.spreadsheet.(sheet.CSVExporter); ok {
		body, err = exporter.ExportCSV(ctx, sh)
	} else {
		body, err = renderCSV(ctx, sh)
	}
	var fetchErr *sheet.FetchError
	switch {
	case errors.As(err, &fetchErr):
		return failure(fetchErr.StatusCode, CodeCSVFetchFailed, Details{"message": fetchErr.Status}), nil
	case err != nil:
		s.logger.Error("csv export failed", "sheet", name, "error", err)
		return failure(http.StatusInternalServerError, CodeCSVProcessingFailed, Details{"message": err.Error(), "sheet": name}), nil
	}
	return respond(http.StatusOK, string(body)), nil
}

// renderCSV writes the used area of sh as CSV.
func renderCSV(ctx context.Context, sh sheet.Sheet) ([]byte, error) {
	lastRow, lastCol, err := sh.Extent(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if lastRow == 0 || lastCol == 0 {
		return buf.Bytes(), nil
	}
	values, err := sh.Values(ctx, sheet.Range{Row: 1, Col: 1, NumRows: lastRow, NumCols: lastCol})
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(&buf)
	for _, row := range values {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = cellString(v)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
