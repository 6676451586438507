package dataset

import (
	"math"
	"strconv"
	"strings"
)

// DefaultCleanColumns are the monitored numeric columns of the aqx_p_488 dataset.
var DefaultCleanColumns = []string{"so2", "co", "o3", "o3_8hr", "pm10", "pm2.5", "no2", "nox", "no", "windspeed"}

// ParseNumber parses a cell as a finite decimal float. Blank cells,
// instrument flags such as "-" or "ND", and hex notation fail.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// CleanResult summarizes a Clean pass.
type CleanResult struct {
	Table   *Table
	Kept    int
	Dropped int
}

// Clean drops every row in which any of cols is not a number. Kept rows are
// left untouched.
func Clean(t *Table, cols []string) (CleanResult, error) {
	idx, err := t.indexes(cols)
	if err != nil {
		return CleanResult{}, err
	}

	out := &Table{Header: t.Header, Rows: make([][]string, 0, len(t.Rows))}
	for _, row := range t.Rows {
		if numericAt(row, idx) {
			out.Rows = append(out.Rows, row)
		}
	}
	return CleanResult{
		Table:   out,
		Kept:    len(out.Rows),
		Dropped: len(t.Rows) - len(out.Rows),
	}, nil
}

func numericAt(row []string, idx []int) bool {
	for _, i := range idx {
		if i >= len(row) {
			return false
		}
		if _, ok := ParseNumber(row[i]); !ok {
			return false
		}
	}
	return true
}
