package sheet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type cellRef struct {
	row, col int
}

// MemorySpreadsheet is an in-process spreadsheet. It is safe for concurrent use.
type MemorySpreadsheet struct {
	mu     sync.RWMutex
	id     string
	sheets []*MemorySheet
	nextID int64
}

// NewMemorySpreadsheet creates an empty spreadsheet.
func NewMemorySpreadsheet(id string) *MemorySpreadsheet {
	return &MemorySpreadsheet{id: id}
}

// AddSheet appends a sheet seeded with rows. Row 1 of the sheet is rows[0].
func (m *MemorySpreadsheet) AddSheet(name string, rows ...[]any) *MemorySheet {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &MemorySheet{
		ss:       m,
		name:     name,
		id:       m.nextID,
		index:    len(m.sheets),
		formulas: make(map[cellRef]string),
		formats:  make(map[cellRef]CellFormat),
	}
	m.nextID++
	for _, row := range rows {
		cp := make([]any, len(row))
		for i, v := range row {
			cp[i] = normalize(v)
		}
		s.cells = append(s.cells, cp)
	}
	m.sheets = append(m.sheets, s)
	return s
}

func (m *MemorySpreadsheet) ID() string { return m.id }

func (m *MemorySpreadsheet) Sheets(ctx context.Context) ([]Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sheet, len(m.sheets))
	for i, s := range m.sheets {
		out[i] = s
	}
	return out, nil
}

func (m *MemorySpreadsheet) Sheet(ctx context.Context, name string) (Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := strings.ToLower(strings.TrimSpace(name))
	for _, s := range m.sheets {
		if strings.ToLower(strings.TrimSpace(s.name)) == want {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
}

var _ Spreadsheet = (*MemorySpreadsheet)(nil)

// MemorySheet is a sheet of a MemorySpreadsheet.
type MemorySheet struct {
	ss       *MemorySpreadsheet
	name     string
	id       int64
	index    int
	hidden   bool
	cells    [][]any
	formulas map[cellRef]string
	formats  map[cellRef]CellFormat
}

func (s *MemorySheet) Name() string { return s.name }
func (s *MemorySheet) ID() int64    { return s.id }
func (s *MemorySheet) Index() int   { return s.index }

func (s *MemorySheet) Hidden() bool {
	s.ss.mu.RLock()
	defer s.ss.mu.RUnlock()
	return s.hidden
}

// SetHidden toggles the hidden flag.
func (s *MemorySheet) SetHidden(hidden bool) {
	s.ss.mu.Lock()
	defer s.ss.mu.Unlock()
	s.hidden = hidden
}

// SetFormula stores a formula and its computed value for one cell.
func (s *MemorySheet) SetFormula(row, col int, formula string, value any) {
	s.ss.mu.Lock()
	defer s.ss.mu.Unlock()
	s.set(row, col, value)
	s.formulas[cellRef{row, col}] = formula
}

// SetFormat stores explicit formatting for one cell.
func (s *MemorySheet) SetFormat(row, col int, f CellFormat) {
	s.ss.mu.Lock()
	defer s.ss.mu.Unlock()
	s.formats[cellRef{row, col}] = f
}

func (s *MemorySheet) lastRow() int {
	for r := len(s.cells); r > 0; r-- {
		if !IsEmptyRow(s.cells[r-1]) {
			return r
		}
	}
	return 0
}

func (s *MemorySheet) lastColumn() int {
	last := 0
	for _, row := range s.cells {
		for c := len(row); c > last; c-- {
			if !IsEmpty(row[c-1]) {
				last = c
				break
			}
		}
	}
	return last
}

func (s *MemorySheet) LastRow(ctx context.Context) (int, error) {
	s.ss.mu.RLock()
	defer s.ss.mu.RUnlock()
	return s.lastRow(), nil
}

func (s *MemorySheet) LastColumn(ctx context.Context) (int, error) {
	s.ss.mu.RLock()
	defer s.ss.mu.RUnlock()
	return s.lastColumn(), nil
}

func (s *MemorySheet) Extent(ctx context.Context) (int, int, error) {
	s.ss.mu.RLock()
	defer s.ss.mu.RUnlock()
	return s.lastRow(), s.lastColumn(), nil
}

func (s *MemorySheet) get(row, col int) any {
	if row-1 >= len(s.cells) {
		return ""
	}
	r := s.cells[row-1]
	if col-1 >= len(r) {
		return ""
	}
	return r[col-1]
}

func (s *MemorySheet) set(row, col int, v any) {
	for len(s.cells) < row {
		s.cells = append(s.cells, nil)
	}
	r := s.cells[row-1]
	for len(r) < col {
		r = append(r, "")
	}
	r[col-1] = normalize(v)
	s.cells[row-1] = r
}

func (s *MemorySheet) Values(ctx context.Context, r Range) ([][]any, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s.ss.mu.RLock()
	defer s.ss.mu.RUnlock()
	out := blankGrid(r.NumRows, r.NumCols)
	for i := 0; i < r.NumRows; i++ {
		for j := 0; j < r.NumCols; j++ {
			out[i][j] = s.get(r.Row+i, r.Col+j)
		}
	}
	return out, nil
}

func (s *MemorySheet) Formulas(ctx context.Context, r Range) ([][]string, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s.ss.mu.RLock()
	defer s.ss.mu.RUnlock()
	out := make([][]string, r.NumRows)
	for i := range out {
		out[i] = make([]string, r.NumCols)
		for j := range out[i] {
			out[i][j] = s.formulas[cellRef{r.Row + i, r.Col + j}]
		}
	}
	return out, nil
}

func (s *MemorySheet) Formats(ctx context.Context, r Range) ([][]CellFormat, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s.ss.mu.RLock()
	defer s.ss.mu.RUnlock()
	out := make([][]CellFormat, r.NumRows)
	for i := range out {
		out[i] = make([]CellFormat, r.NumCols)
		for j := range out[i] {
			f, ok := s.formats[cellRef{r.Row + i, r.Col + j}]
			if !ok {
				f = DefaultCellFormat
			}
			out[i][j] = f
		}
	}
	return out, nil
}

func (s *MemorySheet) SetValues(ctx context.Context, row, col int, values [][]any) error {
	if err := writeRange(row, col, values).Validate(); err != nil {
		return err
	}
	s.ss.mu.Lock()
	defer s.ss.mu.Unlock()
	s.setValues(row, col, values)
	return nil
}

func (s *MemorySheet) setValues(row, col int, values [][]any) {
	for i, r := range values {
		for j, v := range r {
			s.set(row+i, col+j, v)
			delete(s.formulas, cellRef{row + i, col + j})
		}
	}
}

func (s *MemorySheet) AppendRows(ctx context.Context, rows [][]any) error {
	s.ss.mu.Lock()
	defer s.ss.mu.Unlock()
	row := s.lastRow() + 1
	if err := writeRange(row, 1, rows).Validate(); err != nil {
		return err
	}
	s.setValues(row, 1, rows)
	return nil
}

func (s *MemorySheet) InsertColumnsAfter(ctx context.Context, col, n int) error {
	if col < 0 || n < 1 || col+n > MaxColumns {
		return fmt.Errorf("%w: insert %d columns after %d", ErrInvalidRange, n, col)
	}
	s.ss.mu.Lock()
	defer s.ss.mu.Unlock()
	for i, row := range s.cells {
		if len(row) <= col {
			continue
		}
		blank := make([]any, n)
		for j := range blank {
			blank[j] = ""
		}
		grown := append(append(append([]any{}, row[:col]...), blank...), row[col:]...)
		s.cells[i] = grown
	}
	s.shiftColumns(col+1, n)
	return nil
}

func (s *MemorySheet) DeleteColumn(ctx context.Context, col int) error {
	if col < 1 {
		return fmt.Errorf("%w: delete column %d", ErrInvalidRange, col)
	}
	s.ss.mu.Lock()
	defer s.ss.mu.Unlock()
	for i, row := range s.cells {
		if len(row) < col {
			continue
		}
		s.cells[i] = append(append([]any{}, row[:col-1]...), row[col:]...)
	}
	for ref := range s.formulas {
		if ref.col == col {
			delete(s.formulas, ref)
		}
	}
	for ref := range s.formats {
		if ref.col == col {
			delete(s.formats, ref)
		}
	}
	s.shiftColumns(col+1, -1)
	return nil
}

// shiftColumns moves formulas and formats at or right of from by delta columns.
func (s *MemorySheet) shiftColumns(from, delta int) {
	formulas := make(map[cellRef]string, len(s.formulas))
	for ref, f := range s.formulas {
		if ref.col >= from {
			ref.col += delta
		}
		formulas[ref] = f
	}
	s.formulas = formulas
	formats := make(map[cellRef]CellFormat, len(s.formats))
	for ref, f := range s.formats {
		if ref.col >= from {
			ref.col += delta
		}
		formats[ref] = f
	}
	s.formats = formats
}

func (s *MemorySheet) ClearRows(ctx context.Context, rows []int) error {
	sorted := append([]int{}, rows...)
	sort.Ints(sorted)
	if len(sorted) > 0 && (sorted[0] < 1 || sorted[len(sorted)-1] > MaxRows) {
		return fmt.Errorf("%w: clear rows %d to %d", ErrInvalidRange, sorted[0], sorted[len(sorted)-1])
	}
	s.ss.mu.Lock()
	defer s.ss.mu.Unlock()
	for _, r := range sorted {
		if r-1 >= len(s.cells) {
			continue
		}
		for j := range s.cells[r-1] {
			s.cells[r-1][j] = ""
		}
		for ref := range s.formulas {
			if ref.row == r {
				delete(s.formulas, ref)
			}
		}
	}
	return nil
}

var (
	_ Sheet     = (*MemorySheet)(nil)
	_ Formatter = (*MemorySheet)(nil)
)
