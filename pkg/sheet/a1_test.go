package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnConversions(t *testing.T) {
	tests := []struct {
		name string
		num  int
	}{
		{"A", 1},
		{"Z", 26},
		{"AA", 27},
		{"AZ", 52},
		{"ZZ", 702},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := ColumnNumber(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.num, n)

			name, err := ColumnName(tc.num)
			require.NoError(t, err)
			assert.Equal(t, tc.name, name)
		})
	}

	n, err := ColumnNumber("ab")
	require.NoError(t, err)
	assert.Equal(t, 28, n)

	_, err = ColumnNumber("A1")
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = ColumnName(0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestA1(t *testing.T) {
	ref, err := A1("Bob's Logs", Range{Row: 2, Col: 1, NumRows: 9, NumCols: 4})
	require.NoError(t, err)
	assert.Equal(t, "'Bob''s Logs'!A2:D10", ref)

	_, err = A1("Logs", Range{Row: 1, Col: 1})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestSpreadsheetID(t *testing.T) {
	assert.Equal(t, "abc123", SpreadsheetID("https://docs.google.com/spreadsheets/d/abc123/edit#gid=0"))
	assert.Equal(t, "abc123", SpreadsheetID("https://docs.google.com/spreadsheets/d/abc123"))
	assert.Equal(t, "abc123", SpreadsheetID(" abc123 "))
}
