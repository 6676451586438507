package dataset

import (
	"strings"
)

const (
	cleanedSuffix = "_cleaned.csv"
	binnedSuffix  = "_binned.csv"
	binsSuffix    = "_bins.csv"
)

func stem(path string) string {
	if s, ok := strings.CutSuffix(path, cleanedSuffix); ok {
		return s
	}
	if s, ok := strings.CutSuffix(path, ".csv"); ok {
		return s
	}
	return path
}

// CleanedPath maps "x.csv" to "x_cleaned.csv".
func CleanedPath(in string) string {
	s, _ := strings.CutSuffix(in, ".csv")
	return s + cleanedSuffix
}

// BinnedPath maps "x_cleaned.csv" (or "x.csv") to "x_binned.csv".
func BinnedPath(in string) string {
	return stem(in) + binnedSuffix
}

// BinsPath maps "x_cleaned.csv" (or "x.csv") to "x_bins.csv".
func BinsPath(in string) string {
	return stem(in) + binsSuffix
}

// CleanFile cleans the CSV at in and writes the result next to it.
func CleanFile(in string, cols []string) (string, CleanResult, error) {
	t, err := ReadFile(in)
	if err != nil {
		return "", CleanResult{}, err
	}
	res, err := Clean(t, cols)
	if err != nil {
		return "", CleanResult{}, err
	}
	out := CleanedPath(in)
	if err := WriteFile(out, res.Table); err != nil {
		return "", CleanResult{}, err
	}
	return out, res, nil
}

// BinFileResult lists the files BinFile produced.
type BinFileResult struct {
	BinnedPath string
	BinsPath   string
	Boundaries []Boundaries
}

// BinFile bins the CSV at in. When withBounds is set the interval edges are
// also written to a side table.
func BinFile(in string, specs []BinSpec, withBounds bool) (BinFileResult, error) {
	t, err := ReadFile(in)
	if err != nil {
		return BinFileResult{}, err
	}
	res, err := Bin(t, specs)
	if err != nil {
		return BinFileResult{}, err
	}

	out := BinFileResult{BinnedPath: BinnedPath(in), Boundaries: res.Boundaries}
	if err := WriteFile(out.BinnedPath, res.Table); err != nil {
		return BinFileResult{}, err
	}
	if withBounds {
		out.BinsPath = BinsPath(in)
		if err := WriteFile(out.BinsPath, BoundariesTable(res.Boundaries)); err != nil {
			return BinFileResult{}, err
		}
	}
	return out, nil
}
