package gamekit

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCell parses chat coordinates like "b2" (column letter, row number)
// into zero-based (row, col) for a rows x cols board.
func ParseCell(s string, rows, cols int) (int, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("%w: cell %q", ErrIllegalMove, s)
	}
	col := int(s[0] - 'a')
	row, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: cell %q", ErrIllegalMove, s)
	}
	row--
	if row < 0 || row >= rows || col < 0 || col >= cols {
		return 0, 0, fmt.Errorf("%w: cell %q is off the board", ErrIllegalMove, s)
	}
	return row, col, nil
}

// CellName is the inverse of ParseCell.
func CellName(row, col int) string {
	return fmt.Sprintf("%c%d", 'a'+col, row+1)
}
