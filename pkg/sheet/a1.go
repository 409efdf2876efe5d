package sheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ColumnName converts a 1-based column number to its letter form (1 -> A, 27 -> AA).
func ColumnName(col int) (string, error) {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return "", fmt.Errorf("%w: column %d", ErrInvalidRange, col)
	}
	return name, nil
}

// ColumnNumber converts a column letter (case-insensitive) to its 1-based number.
func ColumnNumber(name string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.TrimSpace(name))
	if err != nil {
		return 0, fmt.Errorf("%w: column %q", ErrInvalidRange, name)
	}
	return n, nil
}

// CellName returns the A1 name of a single cell.
func CellName(row, col int) (string, error) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	return name, nil
}

// A1 renders r in A1 notation, e.g. B2:D10.
func (r Range) A1() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if r.NumRows == 0 || r.NumCols == 0 {
		return "", fmt.Errorf("%w: empty range", ErrInvalidRange)
	}
	start, err := CellName(r.Row, r.Col)
	if err != nil {
		return "", err
	}
	end, err := CellName(r.EndRow(), r.EndCol())
	if err != nil {
		return "", err
	}
	return start + ":" + end, nil
}

// QuoteName quotes a sheet title for use in an A1 reference.
func QuoteName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// A1 renders a sheet qualified reference, e.g. 'Logs'!A1:C3.
func A1(sheetName string, r Range) (string, error) {
	ref, err := r.A1()
	if err != nil {
		return "", err
	}
	return QuoteName(sheetName) + "!" + ref, nil
}
