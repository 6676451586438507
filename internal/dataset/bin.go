package dataset

import (
	"errors"
	"fmt"
	"strconv"
)

// BinCount is the number of equal-width intervals per column.
const BinCount = 3

// LevelSuffix is appended to a column name to form its label column.
const LevelSuffix = "_level"

// ErrNotNumeric is returned when a binned column holds a non-numeric cell.
var ErrNotNumeric = errors.New("non-numeric value")

// BinSpec names a column and the labels of its low, middle and high bins.
type BinSpec struct {
	Column string
	Labels [BinCount]string
}

var (
	pollutantLabels = [BinCount]string{"低", "中", "高"}
	windLabels      = [BinCount]string{"弱", "中", "強"}
)

// DefaultBinSpecs bins every pollutant as low/medium/high and wind speed as
// weak/medium/strong.
func DefaultBinSpecs() []BinSpec {
	pollutants := []string{"so2", "co", "o3", "o3_8hr", "pm10", "pm2.5", "no2", "nox", "no"}
	specs := make([]BinSpec, 0, len(pollutants)+1)
	for _, p := range pollutants {
		specs = append(specs, BinSpec{Column: p, Labels: pollutantLabels})
	}
	return append(specs, BinSpec{Column: "windspeed", Labels: windLabels})
}

// Boundaries are the BinCount+1 edges of a column's intervals. Edges are
// non-decreasing; the first interval is closed on both ends, the others are
// closed on the right only.
type Boundaries struct {
	Column string
	Labels [BinCount]string
	Edges  [BinCount + 1]float64
}

// Label returns the label of the interval containing v.
func (b Boundaries) Label(v float64) string {
	for i := 0; i < BinCount-1; i++ {
		if v <= b.Edges[i+1] {
			return b.Labels[i]
		}
	}
	return b.Labels[BinCount-1]
}

// Linspace splits [lo, hi] into BinCount equal-width intervals. The last edge
// is exactly hi.
func Linspace(lo, hi float64) [BinCount + 1]float64 {
	var edges [BinCount + 1]float64
	step := (hi - lo) / BinCount
	for i := range edges {
		edges[i] = lo + float64(i)*step
	}
	edges[BinCount] = hi
	return edges
}

// BinResult carries the labeled table and the edges used per column.
type BinResult struct {
	Table      *Table
	Boundaries []Boundaries
}

// Bin appends a <column>_level column for each spec, labeling every value by
// the equal-width interval of its column's observed range that contains it.
// A column with a single distinct value gets the lowest label throughout.
func Bin(t *Table, specs []BinSpec) (BinResult, error) {
	cols := make([]string, len(specs))
	for i, s := range specs {
		cols[i] = s.Column
	}
	idx, err := t.indexes(cols)
	if err != nil {
		return BinResult{}, err
	}

	values := make([][]float64, len(specs))
	bounds := make([]Boundaries, 0, len(specs))
	for si, spec := range specs {
		vals := make([]float64, len(t.Rows))
		for ri, row := range t.Rows {
			var cell string
			if idx[si] < len(row) {
				cell = row[idx[si]]
			}
			v, ok := ParseNumber(cell)
			if !ok {
				return BinResult{}, fmt.Errorf("%w in column %q row %d: %q", ErrNotNumeric, spec.Column, ri+2, cell)
			}
			vals[ri] = v
		}
		values[si] = vals

		if len(vals) == 0 {
			continue
		}
		lo, hi := vals[0], vals[0]
		for _, v := range vals[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		bounds = append(bounds, Boundaries{Column: spec.Column, Labels: spec.Labels, Edges: Linspace(lo, hi)})
	}

	header := make([]string, 0, len(t.Header)+len(specs))
	header = append(header, t.Header...)
	for _, spec := range specs {
		header = append(header, spec.Column+LevelSuffix)
	}

	out := &Table{Header: header, Rows: make([][]string, len(t.Rows))}
	for ri, row := range t.Rows {
		labeled := make([]string, 0, len(header))
		labeled = append(labeled, row...)
		for len(labeled) < len(t.Header) {
			labeled = append(labeled, "")
		}
		for si := range specs {
			labeled = append(labeled, bounds[si].Label(values[si][ri]))
		}
		out.Rows[ri] = labeled
	}

	return BinResult{Table: out, Boundaries: bounds}, nil
}

// BoundariesTable renders edges as a side table with one row per interval.
func BoundariesTable(bounds []Boundaries) *Table {
	t := &Table{Header: []string{"column", "label", "lower", "upper"}}
	for _, b := range bounds {
		for i, label := range b.Labels {
			t.Rows = append(t.Rows, []string{
				b.Column,
				label,
				strconv.FormatFloat(b.Edges[i], 'g', -1, 64),
				strconv.FormatFloat(b.Edges[i+1], 'g', -1, 64),
			})
		}
	}
	return t
}
