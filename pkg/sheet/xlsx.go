package sheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// builtinNumFmts maps the common built-in xlsx number format ids to their codes.
var builtinNumFmts = map[int]string{
	0:  "General",
	1:  "0",
	2:  "0.00",
	3:  "#,##0",
	4:  "#,##0.00",
	9:  "0%",
	10: "0.00%",
	11: "0.00E+00",
	14: "mm-dd-yy",
	20: "h:mm",
	22: "m/d/yy h:mm",
	49: "@",
}

var rawValues = excelize.Options{RawCellValue: true}

// Workbook is a spreadsheet stored in a local xlsx file. Every mutation is
// written back to disk.
type Workbook struct {
	mu   sync.Mutex
	path string
	f    *excelize.File
}

// OpenWorkbook opens the workbook at path, creating it when it does not exist.
func OpenWorkbook(path string) (*Workbook, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		f := excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("failed to create workbook %s: %w", path, err)
		}
		return &Workbook{path: path, f: f}, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &Workbook{path: path, f: f}, nil
}

// Close releases the underlying file.
func (w *Workbook) Close() error {
	return w.f.Close()
}

func (w *Workbook) ID() string { return w.path }

// AddSheet creates a sheet seeded with rows, or fills an existing one.
func (w *Workbook) AddSheet(name string, rows ...[]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if idx, err := w.f.GetSheetIndex(name); err != nil || idx < 0 {
		if _, err := w.f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", name, err)
		}
	}
	for i, row := range rows {
		cell, err := CellName(i+1, 1)
		if err != nil {
			return err
		}
		r := row
		if err := w.f.SetSheetRow(name, cell, &r); err != nil {
			return fmt.Errorf("failed to seed sheet %q: %w", name, err)
		}
	}
	return w.f.Save()
}

func (w *Workbook) Sheets(ctx context.Context) ([]Sheet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make(map[string]int64)
	for id, name := range w.f.GetSheetMap() {
		ids[name] = int64(id)
	}
	var out []Sheet
	for i, name := range w.f.GetSheetList() {
		visible, err := w.f.GetSheetVisible(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read visibility of %q: %w", name, err)
		}
		out = append(out, &workbookSheet{wb: w, name: name, id: ids[name], index: i, hidden: !visible})
	}
	return out, nil
}

func (w *Workbook) Sheet(ctx context.Context, name string) (Sheet, error) {
	sheets, err := w.Sheets(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, s := range sheets {
		if strings.ToLower(strings.TrimSpace(s.Name())) == want {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
}

var _ Spreadsheet = (*Workbook)(nil)

type workbookSheet struct {
	wb     *Workbook
	name   string
	id     int64
	index  int
	hidden bool
}

func (s *workbookSheet) Name() string { return s.name }
func (s *workbookSheet) ID() int64    { return s.id }
func (s *workbookSheet) Index() int   { return s.index }
func (s *workbookSheet) Hidden() bool { return s.hidden }

// extent returns the last row and column holding content.
func (s *workbookSheet) extent() (int, int, error) {
	rows, err := s.wb.f.GetRows(s.name, rawValues)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read rows of %q: %w", s.name, err)
	}
	lastRow, lastCol := 0, 0
	for i, row := range rows {
		for j := len(row); j > 0; j-- {
			if row[j-1] != "" {
				lastRow = i + 1
				if j > lastCol {
					lastCol = j
				}
				break
			}
		}
	}
	return lastRow, lastCol, nil
}

func (s *workbookSheet) LastRow(ctx context.Context) (int, error) {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	r, _, err := s.extent()
	return r, err
}

func (s *workbookSheet) LastColumn(ctx context.Context) (int, error) {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	_, c, err := s.extent()
	return c, err
}

func (s *workbookSheet) Extent(ctx context.Context) (int, int, error) {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	return s.extent()
}

func (s *workbookSheet) cellValue(row, col int) (any, error) {
	cell, err := CellName(row, col)
	if err != nil {
		return nil, err
	}
	raw, err := s.wb.f.GetCellValue(s.name, cell, rawValues)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return "", nil
	}
	typ, err := s.wb.f.GetCellType(s.name, cell)
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return raw, nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n, nil
	}
	return raw, nil
}

func (s *workbookSheet) Values(ctx context.Context, r Range) ([][]any, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	out := blankGrid(r.NumRows, r.NumCols)
	for i := 0; i < r.NumRows; i++ {
		for j := 0; j < r.NumCols; j++ {
			v, err := s.cellValue(r.Row+i, r.Col+j)
			if err != nil {
				return nil, fmt.Errorf("failed to read %q: %w", s.name, err)
			}
			out[i][j] = v
		}
	}
	return out, nil
}

func (s *workbookSheet) Formulas(ctx context.Context, r Range) ([][]string, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	out := make([][]string, r.NumRows)
	for i := range out {
		out[i] = make([]string, r.NumCols)
		for j := range out[i] {
			cell, err := CellName(r.Row+i, r.Col+j)
			if err != nil {
				return nil, err
			}
			formula, err := s.wb.f.GetCellFormula(s.name, cell)
			if err != nil {
				return nil, fmt.Errorf("failed to read formula %s: %w", cell, err)
			}
			if formula != "" && !strings.HasPrefix(formula, "=") {
				formula = "=" + formula
			}
			out[i][j] = formula
		}
	}
	return out, nil
}

func (s *workbookSheet) Formats(ctx context.Context, r Range) ([][]CellFormat, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	out := make([][]CellFormat, r.NumRows)
	for i := range out {
		out[i] = make([]CellFormat, r.NumCols)
		for j := range out[i] {
			cell, err := CellName(r.Row+i, r.Col+j)
			if err != nil {
				return nil, err
			}
			idx, err := s.wb.f.GetCellStyle(s.name, cell)
			if err != nil {
				return nil, fmt.Errorf("failed to read style %s: %w", cell, err)
			}
			style, err := s.wb.f.GetStyle(idx)
			if err != nil {
				return nil, fmt.Errorf("failed to read style %d: %w", idx, err)
			}
			out[i][j] = styleFormat(style)
		}
	}
	return out, nil
}

func styleFormat(style *excelize.Style) CellFormat {
	f := DefaultCellFormat
	if style == nil {
		return f
	}
	if len(style.Fill.Color) > 0 && style.Fill.Color[0] != "" {
		f.Background = hexColor(style.Fill.Color[0])
	}
	if style.Font != nil {
		if style.Font.Color != "" {
			f.FontColor = hexColor(style.Font.Color)
		}
		if style.Font.Family != "" {
			f.FontFamily = style.Font.Family
		}
		if style.Font.Size > 0 {
			f.FontSize = style.Font.Size
		}
		f.Bold = style.Font.Bold
		f.Italic = style.Font.Italic
	}
	if style.Alignment != nil {
		if style.Alignment.Horizontal != "" {
			f.HorizontalAlignment = strings.ToLower(style.Alignment.Horizontal)
		}
		if style.Alignment.Vertical != "" {
			f.VerticalAlignment = strings.ToLower(style.Alignment.Vertical)
		}
		f.Wrap = style.Alignment.WrapText
	}
	if style.CustomNumFmt != nil && *style.CustomNumFmt != "" {
		f.NumberFormat = *style.CustomNumFmt
	} else if code, ok := builtinNumFmts[style.NumFmt]; ok {
		f.NumberFormat = code
	}
	return f
}

// hexColor turns xlsx ARGB/RGB colors into #rrggbb.
func hexColor(c string) string {
	c = strings.ToLower(strings.TrimPrefix(c, "#"))
	if len(c) == 8 {
		c = c[2:]
	}
	return "#" + c
}

func (s *workbookSheet) setValues(row, col int, values [][]any) error {
	for i, r := range values {
		for j, v := range r {
			cell, err := CellName(row+i, col+j)
			if err != nil {
				return err
			}
			if v == nil {
				v = ""
			}
			if err := s.wb.f.SetCellValue(s.name, cell, v); err != nil {
				return fmt.Errorf("failed to write %s: %w", cell, err)
			}
		}
	}
	return nil
}

func (s *workbookSheet) save() error {
	if err := s.wb.f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// validate also applies the xlsx column limit, which is narrower than MaxColumns.
func (s *workbookSheet) validate(r Range) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.EndCol() > excelize.MaxColumns {
		return fmt.Errorf("%w: column %d is past the xlsx limit", ErrInvalidRange, r.EndCol())
	}
	return nil
}

func (s *workbookSheet) SetValues(ctx context.Context, row, col int, values [][]any) error {
	if err := s.validate(writeRange(row, col, values)); err != nil {
		return err
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	if err := s.setValues(row, col, values); err != nil {
		return err
	}
	return s.save()
}

func (s *workbookSheet) AppendRows(ctx context.Context, rows [][]any) error {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	last, _, err := s.extent()
	if err != nil {
		return err
	}
	if err := s.validate(writeRange(last+1, 1, rows)); err != nil {
		return err
	}
	if err := s.setValues(last+1, 1, rows); err != nil {
		return err
	}
	return s.save()
}

// xlsxCell is a cell value together with its formula, if any.
type xlsxCell struct {
	value   any
	formula string
}

func (s *workbookSheet) clearCell(cell string) error {
	if err := s.wb.f.SetCellFormula(s.name, cell, ""); err != nil {
		return fmt.Errorf("failed to clear %s: %w", cell, err)
	}
	if err := s.wb.f.SetCellStr(s.name, cell, ""); err != nil {
		return fmt.Errorf("failed to clear %s: %w", cell, err)
	}
	return nil
}

// shiftColumns moves every column from `from` to the last used one by delta
// columns. Cells left behind are blanked.
func (s *workbookSheet) shiftColumns(from, delta int) error {
	lastRow, lastCol, err := s.extent()
	if err != nil || from > lastCol || delta == 0 {
		return err
	}
	if lastCol+delta > excelize.MaxColumns {
		return fmt.Errorf("%w: column %d is past the xlsx limit", ErrInvalidRange, lastCol+delta)
	}
	block := make([][]xlsxCell, lastRow)
	for i := range block {
		block[i] = make([]xlsxCell, lastCol-from+1)
		for j := range block[i] {
			cell, err := CellName(i+1, from+j)
			if err != nil {
				return err
			}
			v, err := s.cellValue(i+1, from+j)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", cell, err)
			}
			formula, err := s.wb.f.GetCellFormula(s.name, cell)
			if err != nil {
				return fmt.Errorf("failed to read formula %s: %w", cell, err)
			}
			block[i][j] = xlsxCell{value: v, formula: formula}
			if err := s.clearCell(cell); err != nil {
				return err
			}
		}
	}
	for i, row := range block {
		for j, c := range row {
			if IsEmpty(c.value) && c.formula == "" {
				continue
			}
			cell, err := CellName(i+1, from+j+delta)
			if err != nil {
				return err
			}
			if err := s.wb.f.SetCellValue(s.name, cell, c.value); err != nil {
				return fmt.Errorf("failed to write %s: %w", cell, err)
			}
			if c.formula != "" {
				if err := s.wb.f.SetCellFormula(s.name, cell, c.formula); err != nil {
					return fmt.Errorf("failed to write formula %s: %w", cell, err)
				}
			}
		}
	}
	return nil
}

func (s *workbookSheet) InsertColumnsAfter(ctx context.Context, col, n int) error {
	if col < 0 || n < 1 || col+n > excelize.MaxColumns {
		return fmt.Errorf("%w: insert %d columns after %d", ErrInvalidRange, n, col)
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	if err := s.shiftColumns(col+1, n); err != nil {
		return fmt.Errorf("failed to insert columns: %w", err)
	}
	return s.save()
}

func (s *workbookSheet) DeleteColumn(ctx context.Context, col int) error {
	if col < 1 || col > excelize.MaxColumns {
		return fmt.Errorf("%w: delete column %d", ErrInvalidRange, col)
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	lastRow, _, err := s.extent()
	if err != nil {
		return err
	}
	for r := 1; r <= lastRow; r++ {
		cell, err := CellName(r, col)
		if err != nil {
			return err
		}
		if err := s.clearCell(cell); err != nil {
			return err
		}
	}
	if err := s.shiftColumns(col+1, -1); err != nil {
		return fmt.Errorf("failed to remove column %d: %w", col, err)
	}
	return s.save()
}

func (s *workbookSheet) ClearRows(ctx context.Context, rows []int) error {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	_, lastCol, err := s.extent()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r < 1 || r > MaxRows {
			return fmt.Errorf("%w: clear row %d", ErrInvalidRange, r)
		}
		for c := 1; c <= lastCol; c++ {
			cell, err := CellName(r, c)
			if err != nil {
				return err
			}
			if err := s.clearCell(cell); err != nil {
				return err
			}
		}
	}
	return s.save()
}

var (
	_ Sheet     = (*workbookSheet)(nil)
	_ Formatter = (*workbookSheet)(nil)
)

// EncodeWorkbook renders rows as a single-sheet xlsx file.
func EncodeWorkbook(sheetName string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if sheetName != "" && sheetName != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheetName); err != nil {
			return nil, fmt.Errorf("failed to name sheet: %w", err)
		}
	} else {
		sheetName = "Sheet1"
	}
	for i, row := range rows {
		cell, err := CellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		r := row
		if err := f.SetSheetRow(sheetName, cell, &r); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
