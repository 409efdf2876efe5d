package sheet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogs(t *testing.T) (*MemorySpreadsheet, *MemorySheet) {
	t.Helper()
	ss := NewMemorySpreadsheet("test")
	s := ss.AddSheet("Logs",
		[]any{"Name", "Age"},
		[]any{"alice", 30},
		[]any{"bob", 41},
	)
	return ss, s
}

func TestMemorySpreadsheet_SheetLookup(t *testing.T) {
	ss, _ := newLogs(t)
	ss.AddSheet("Other")
	ctx := context.Background()

	s, err := ss.Sheet(ctx, "  logs ")
	require.NoError(t, err)
	assert.Equal(t, "Logs", s.Name())
	assert.Equal(t, 0, s.Index())

	_, err = ss.Sheet(ctx, "missing")
	assert.ErrorIs(t, err, ErrSheetNotFound)

	all, err := ss.Sheets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[1].ID())
}

func TestMemorySheet_Extent(t *testing.T) {
	_, s := newLogs(t)
	ctx := context.Background()

	last, err := s.LastRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, last)
	col, err := s.LastColumn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, col)

	require.NoError(t, s.ClearRows(ctx, []int{3}))
	last, _ = s.LastRow(ctx)
	assert.Equal(t, 2, last)

	rows, cols, err := s.Extent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
}

func TestRange_ValidateLimits(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		ok   bool
	}{
		{"origin", Range{Row: 1, Col: 1, NumRows: 1, NumCols: 1}, true},
		{"last row", Range{Row: MaxRows, Col: 1, NumRows: 1, NumCols: 1}, true},
		{"last column", Range{Row: 1, Col: MaxColumns, NumRows: 1, NumCols: 1}, true},
		{"empty at limit", Range{Row: MaxRows, Col: MaxColumns}, true},
		{"before A1", Range{Row: 0, Col: 1, NumRows: 1, NumCols: 1}, false},
		{"row past limit", Range{Row: MaxRows + 1, Col: 1, NumRows: 1, NumCols: 1}, false},
		{"rows run past limit", Range{Row: MaxRows, Col: 1, NumRows: 2, NumCols: 1}, false},
		{"column past limit", Range{Row: 1, Col: 20_000_000, NumRows: 1, NumCols: 1}, false},
		{"too many cells", Range{Row: 1, Col: 1, NumRows: MaxRows, NumCols: 10}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRange)
			}
		})
	}
}

func TestMemorySheet_RejectsWritesPastLimits(t *testing.T) {
	_, s := newLogs(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetValues(ctx, 1, 20_000_000, [][]any{{"x"}}), ErrInvalidRange)
	assert.ErrorIs(t, s.SetValues(ctx, 20_000_000, 1, [][]any{{"x"}}), ErrInvalidRange)
	assert.ErrorIs(t, s.InsertColumnsAfter(ctx, MaxColumns, 1), ErrInvalidRange)
	assert.ErrorIs(t, s.ClearRows(ctx, []int{2, MaxRows + 1}), ErrInvalidRange)

	rows, cols, err := s.Extent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.Len(t, s.cells, 3)
}

func TestMemorySheet_ValuesArePadded(t *testing.T) {
	_, s := newLogs(t)
	values, err := s.Values(context.Background(), Range{Row: 2, Col: 1, NumRows: 3, NumCols: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"alice", float64(30), ""},
		{"bob", float64(41), ""},
		{"", "", ""},
	}, values)

	_, err = s.Values(context.Background(), Range{Row: 0, Col: 1, NumRows: 1, NumCols: 1})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestMemorySheet_WriteOperations(t *testing.T) {
	_, s := newLogs(t)
	ctx := context.Background()

	require.NoError(t, s.AppendRows(ctx, [][]any{{"carol", 25}}))
	require.NoError(t, s.SetValues(ctx, 2, 2, [][]any{{31}}))
	values, err := s.Values(ctx, Range{Row: 2, Col: 1, NumRows: 3, NumCols: 2})
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"alice", float64(31)},
		{"bob", float64(41)},
		{"carol", float64(25)},
	}, values)

	require.NoError(t, s.InsertColumnsAfter(ctx, 1, 1))
	require.NoError(t, s.SetValues(ctx, 1, 2, [][]any{{"Email"}}))
	header, err := s.Values(ctx, Range{Row: 1, Col: 1, NumRows: 1, NumCols: 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"Name", "Email", "Age"}, header[0])

	require.NoError(t, s.DeleteColumn(ctx, 2))
	header, err = s.Values(ctx, Range{Row: 1, Col: 1, NumRows: 1, NumCols: 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"Name", "Age", ""}, header[0])
}

func TestMemorySheet_FormulasAndFormats(t *testing.T) {
	_, s := newLogs(t)
	ctx := context.Background()
	s.SetFormula(4, 2, "=SUM(B2:B3)", 71)
	s.SetFormat(4, 2, CellFormat{Background: "#ff0000", FontColor: "#ffffff", NumberFormat: "0"})

	formulas, err := s.Formulas(ctx, Range{Row: 4, Col: 1, NumRows: 1, NumCols: 2})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"", "=SUM(B2:B3)"}}, formulas)

	formats, err := s.Formats(ctx, Range{Row: 4, Col: 1, NumRows: 1, NumCols: 2})
	require.NoError(t, err)
	assert.Equal(t, DefaultCellFormat, formats[0][0])
	assert.Equal(t, "#ff0000", formats[0][1].Background)

	// moving the column carries its formula along
	require.NoError(t, s.InsertColumnsAfter(ctx, 0, 1))
	formulas, err = s.Formulas(ctx, Range{Row: 4, Col: 3, NumRows: 1, NumCols: 1})
	require.NoError(t, err)
	assert.Equal(t, "=SUM(B2:B3)", formulas[0][0])
}
