// Package sheet abstracts the host spreadsheet the adapter reads and writes.
//
// A Spreadsheet is a set of named sheets. Each Sheet is a grid addressed with
// 1-based row and column numbers; row 1 conventionally holds the headers.
// Backends exist for an in-process grid, a local xlsx workbook and Google Sheets.
package sheet

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSheetNotFound = errors.New("sheet not found")
	ErrInvalidRange  = errors.New("invalid range")
)

// Range is a rectangular block of cells. Row and Col are 1-based.
type Range struct {
	Row     int
	Col     int
	NumRows int
	NumCols int
}

// EndRow returns the last row covered by the range.
func (r Range) EndRow() int { return r.Row + r.NumRows - 1 }

// EndCol returns the last column covered by the range.
func (r Range) EndCol() int { return r.Col + r.NumCols - 1 }

// Grid limits shared by every backend. MaxRows is the xlsx row limit, MaxColumns
// is column ZZZ and MaxCells is the Google Sheets cell limit.
const (
	MaxRows    = 1 << 20
	MaxColumns = 18278
	MaxCells   = 10_000_000
)

// Validate reports ErrInvalidRange for ranges that start before A1, have a
// negative size or reach past the grid limits.
func (r Range) Validate() error {
	switch {
	case r.Row < 1 || r.Col < 1 || r.NumRows < 0 || r.NumCols < 0,
		r.Row > MaxRows || r.EndRow() > MaxRows,
		r.Col > MaxColumns || r.EndCol() > MaxColumns,
		r.NumRows*r.NumCols > MaxCells:
		return fmt.Errorf("%w: row=%d col=%d rows=%d cols=%d", ErrInvalidRange, r.Row, r.Col, r.NumRows, r.NumCols)
	}
	return nil
}

// writeRange is the block a SetValues call at row, col covers.
func writeRange(row, col int, values [][]any) Range {
	return Range{Row: row, Col: col, NumRows: len(values), NumCols: width(values)}
}

// Spreadsheet is a collection of sheets.
type Spreadsheet interface {
	ID() string
	Sheets(ctx context.Context) ([]Sheet, error)
	// Sheet looks a sheet up by name, ignoring case and surrounding spaces.
	Sheet(ctx context.Context, name string) (Sheet, error)
}

// Sheet is a single grid of cells.
//
// Cell values are nil, string, float64 or bool. Reads return "" for empty cells
// and are padded to the requested range size.
type Sheet interface {
	Name() string
	ID() int64
	// Index is the 0-based position of the sheet within its spreadsheet.
	Index() int
	Hidden() bool

	// LastRow is the last row holding any content, 0 for an empty sheet.
	LastRow(ctx context.Context) (int, error)
	// LastColumn is the last column holding any content, 0 for an empty sheet.
	LastColumn(ctx context.Context) (int, error)
	// Extent returns LastRow and LastColumn from a single look at the sheet.
	Extent(ctx context.Context) (lastRow, lastCol int, err error)

	Values(ctx context.Context, r Range) ([][]any, error)
	Formulas(ctx context.Context, r Range) ([][]string, error)

	SetValues(ctx context.Context, row, col int, values [][]any) error
	AppendRows(ctx context.Context, rows [][]any) error
	InsertColumnsAfter(ctx context.Context, col, n int) error
	DeleteColumn(ctx context.Context, col int) error
	// ClearRows blanks the given rows without shifting the rows below them.
	ClearRows(ctx context.Context, rows []int) error
}

// CellFormat is the effective display format of one cell.
type CellFormat struct {
	Background          string
	FontColor           string
	NumberFormat        string
	FontFamily          string
	FontSize            float64
	Bold                bool
	Italic              bool
	HorizontalAlignment string
	VerticalAlignment   string
	Wrap                bool
}

// DefaultCellFormat is reported for cells without explicit formatting.
var DefaultCellFormat = CellFormat{
	Background:          "#ffffff",
	FontColor:           "#000000",
	NumberFormat:        "General",
	FontFamily:          "Arial",
	FontSize:            10,
	HorizontalAlignment: "general",
	VerticalAlignment:   "bottom",
}

// Formatter is implemented by sheets that can report cell formatting.
type Formatter interface {
	Formats(ctx context.Context, r Range) ([][]CellFormat, error)
}

// CSVExporter is implemented by spreadsheets with a native CSV export.
type CSVExporter interface {
	ExportCSV(ctx context.Context, s Sheet) ([]byte, error)
}

// Linker is implemented by spreadsheets whose sheets are reachable by URL.
type Linker interface {
	SheetLinks(s Sheet) (csvURL, sheetURL string)
}

// FetchError is returned when an upstream export answers with a non-200 status.
type FetchError struct {
	StatusCode int
	Status     string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("export request failed: %s", e.Status)
}

// IsEmpty reports whether v is an empty cell value.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// IsEmptyRow reports whether every cell of row is empty.
func IsEmptyRow(row []any) bool {
	for _, v := range row {
		if !IsEmpty(v) {
			return false
		}
	}
	return true
}

func blankGrid(rows, cols int) [][]any {
	out := make([][]any, rows)
	for i := range out {
		out[i] = make([]any, cols)
		for j := range out[i] {
			out[i][j] = ""
		}
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func width(values [][]any) int {
	w := 0
	for _, row := range values {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}
