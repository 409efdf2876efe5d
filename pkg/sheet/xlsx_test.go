package sheet

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWorkbook_ReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.xlsx")
	wb, err := OpenWorkbook(path)
	require.NoError(t, err)
	defer wb.Close()
	require.NoError(t, wb.AddSheet("Logs",
		[]any{"Name", "Age", "Active"},
		[]any{"alice", 30, true},
	))
	ctx := context.Background()

	s, err := wb.Sheet(ctx, "LOGS")
	require.NoError(t, err)
	last, err := s.LastRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, last)
	cols, err := s.LastColumn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cols)

	require.NoError(t, s.AppendRows(ctx, [][]any{{"bob", 41.5, false}}))
	values, err := s.Values(ctx, Range{Row: 2, Col: 1, NumRows: 2, NumCols: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"alice", float64(30), true},
		{"bob", 41.5, false},
	}, values)

	require.NoError(t, s.ClearRows(ctx, []int{2}))
	values, err = s.Values(ctx, Range{Row: 2, Col: 1, NumRows: 1, NumCols: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"", "", ""}}, values)

	// changes are on disk
	reopened, err := OpenWorkbook(path)
	require.NoError(t, err)
	defer reopened.Close()
	s2, err := reopened.Sheet(ctx, "Logs")
	require.NoError(t, err)
	last, err = s2.LastRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, last)
}

func TestWorkbook_Columns(t *testing.T) {
	wb, err := OpenWorkbook(filepath.Join(t.TempDir(), "cols.xlsx"))
	require.NoError(t, err)
	defer wb.Close()
	require.NoError(t, wb.AddSheet("Data", []any{"A", "C"}, []any{1, 3}))
	ctx := context.Background()
	s, err := wb.Sheet(ctx, "Data")
	require.NoError(t, err)

	require.NoError(t, s.InsertColumnsAfter(ctx, 1, 1))
	require.NoError(t, s.SetValues(ctx, 1, 2, [][]any{{"B"}}))
	header, err := s.Values(ctx, Range{Row: 1, Col: 1, NumRows: 1, NumCols: 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "B", "C"}, header[0])

	require.NoError(t, s.DeleteColumn(ctx, 1))
	header, err = s.Values(ctx, Range{Row: 1, Col: 1, NumRows: 2, NumCols: 2})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"B", "C"}, {"", float64(3)}}, header)
}

func TestWorkbook_InsertKeepsFormulas(t *testing.T) {
	wb, err := OpenWorkbook(filepath.Join(t.TempDir(), "formulas.xlsx"))
	require.NoError(t, err)
	defer wb.Close()
	require.NoError(t, wb.AddSheet("Data", []any{"A", "B"}, []any{1, 2}))
	require.NoError(t, wb.f.SetCellFormula("Data", "B2", "A2*2"))
	ctx := context.Background()
	s, err := wb.Sheet(ctx, "Data")
	require.NoError(t, err)

	require.NoError(t, s.InsertColumnsAfter(ctx, 1, 2))
	rows, cols, err := s.Extent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 4, cols)
	formulas, err := s.Formulas(ctx, Range{Row: 2, Col: 1, NumRows: 1, NumCols: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", "", "=A2*2"}, formulas[0])

	// inserting past the used area moves nothing
	require.NoError(t, s.InsertColumnsAfter(ctx, 10, 1))
	header, err := s.Values(ctx, Range{Row: 1, Col: 1, NumRows: 1, NumCols: 4})
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "", "", "B"}, header[0])
}

func TestWorkbook_RejectsWritesPastLimits(t *testing.T) {
	wb, err := OpenWorkbook(filepath.Join(t.TempDir(), "limits.xlsx"))
	require.NoError(t, err)
	defer wb.Close()
	require.NoError(t, wb.AddSheet("Data", []any{"A"}))
	ctx := context.Background()
	s, err := wb.Sheet(ctx, "Data")
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetValues(ctx, 1, excelize.MaxColumns+1, [][]any{{"x"}}), ErrInvalidRange)
	assert.ErrorIs(t, s.SetValues(ctx, MaxRows+1, 1, [][]any{{"x"}}), ErrInvalidRange)
	assert.ErrorIs(t, s.ClearRows(ctx, []int{MaxRows + 1}), ErrInvalidRange)
}

func TestEncodeWorkbook(t *testing.T) {
	data, err := EncodeWorkbook("Export", [][]any{{"Name"}, {"alice"}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Export", "A2")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
}
