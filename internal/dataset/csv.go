package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// bom is written at the start of every output file so spreadsheet tools
// detect UTF-8.
const bom = "\ufeff"

var (
	// ErrNoHeader is returned when a CSV input has no header row.
	ErrNoHeader = errors.New("csv has no header row")
	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("column not found")
)

// Table is a CSV file held in memory: a header and rows of raw cell text.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of col in the header, or -1.
func (t *Table) Index(col string) int {
	for i, h := range t.Header {
		if h == col {
			return i
		}
	}
	return -1
}

// indexes resolves every column or fails with ErrMissingColumn.
func (t *Table) indexes(cols []string) ([]int, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		j := t.Index(c)
		if j < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, c)
		}
		idx[i] = j
	}
	return idx, nil
}

// ReadCSV parses a whole CSV document, dropping a leading BOM.
func ReadCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(bom)); err == nil && string(lead) == bom {
		if _, err := br.Discard(len(bom)); err != nil {
			return nil, err
		}
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	t := &Table{Header: header}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", len(t.Rows)+2, err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadFile reads the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// RowWriter streams rows to a BOM-prefixed CSV document.
type RowWriter struct {
	w *csv.Writer
}

// NewRowWriter writes the BOM and header row and returns a writer for the body.
func NewRowWriter(w io.Writer, header []string) (*RowWriter, error) {
	if _, err := io.WriteString(w, bom); err != nil {
		return nil, fmt.Errorf("writing bom: %w", err)
	}
	rw := &RowWriter{w: csv.NewWriter(w)}
	if err := rw.WriteRows([][]string{header}); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return rw, nil
}

// WriteRows writes and flushes rows.
func (rw *RowWriter) WriteRows(rows [][]string) error {
	if err := rw.w.WriteAll(rows); err != nil {
		return err
	}
	return rw.w.Error()
}

// WriteCSV writes t as a BOM-prefixed CSV document.
func WriteCSV(w io.Writer, t *Table) error {
	rw, err := NewRowWriter(w, t.Header)
	if err != nil {
		return err
	}
	return rw.WriteRows(t.Rows)
}

// WriteFile writes t to path, replacing any existing file.
func WriteFile(path string, t *Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	if err := WriteCSV(f, t); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
