// Package table reads and writes listing batches as UTF-8 CSV and adds the
// positional columns the scraping stage expects.
package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gigmail/internal/model"
)

var (
	rawHeader     = []string{"date", "title", "url"}
	indexedHeader = []string{"index", "sq", "date", "title", "url"}
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
)

// BatchIndex is the constant value of the index column.
const BatchIndex = 1

// PersistenceError reports a failed table read or write.
type PersistenceError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Cleanse appends the batch index and a 1-based sequence to every row.
// Rows are neither dropped nor reordered.
func Cleanse(b model.ListingBatch) []model.IndexedRow {
	out := make([]model.IndexedRow, len(b))
	for i, r := range b {
		out[i] = model.IndexedRow{Index: BatchIndex, Seq: i + 1, ListingRow: r}
	}
	return out
}

// SaveBatch writes rows with a date,title,url header.
func SaveBatch(path string, b model.ListingBatch) error {
	records := make([][]string, len(b))
	for i, r := range b {
		records[i] = []string{r.Date, r.Title, r.URL}
	}
	return writeCSV(path, rawHeader, records)
}

// LoadBatch reads a file written by SaveBatch. Columns are matched by name.
func LoadBatch(path string) (model.ListingBatch, error) {
	cols, records, err := readCSV(path, rawHeader)
	if err != nil {
		return nil, err
	}
	out := make(model.ListingBatch, len(records))
	for i, rec := range records {
		out[i] = model.ListingRow{
			Date:  rec[cols["date"]],
			Title: rec[cols["title"]],
			URL:   rec[cols["url"]],
		}
	}
	return out, nil
}

// SaveIndexed writes cleansed rows with an index,sq,date,title,url header.
func SaveIndexed(path string, rows []model.IndexedRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{strconv.Itoa(r.Index), strconv.Itoa(r.Seq), r.Date, r.Title, r.URL}
	}
	return writeCSV(path, indexedHeader, records)
}

// LoadIndexed reads a file written by SaveIndexed.
func LoadIndexed(path string) ([]model.IndexedRow, error) {
	cols, records, err := readCSV(path, indexedHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.IndexedRow, len(records))
	for i, rec := range records {
		idx, err := strconv.Atoi(rec[cols["index"]])
		if err != nil {
			return nil, &PersistenceError{Op: "read", Path: path, Err: fmt.Errorf("row %d index: %w", i+1, err)}
		}
		seq, err := strconv.Atoi(rec[cols["sq"]])
		if err != nil {
			return nil, &PersistenceError{Op: "read", Path: path, Err: fmt.Errorf("row %d sq: %w", i+1, err)}
		}
		out[i] = model.IndexedRow{
			Index: idx,
			Seq:   seq,
			ListingRow: model.ListingRow{
				Date:  rec[cols["date"]],
				Title: rec[cols["title"]],
				URL:   rec[cols["url"]],
			},
		}
	}
	return out, nil
}

func writeCSV(path string, header []string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := bw.Write(utf8BOM); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	w := csv.NewWriter(bw)
	if err := w.Write(header); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := w.WriteAll(records); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// readCSV returns the column positions of want and the data records.
// A leading BOM is tolerated.
func readCSV(path string, want []string) (map[string]int, [][]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(b, utf8BOM)))
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, &PersistenceError{Op: "read", Path: path, Err: fmt.Errorf("missing header")}
	}
	if err != nil {
		return nil, nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}
	for _, name := range want {
		if _, ok := cols[name]; !ok {
			return nil, nil, &PersistenceError{Op: "read", Path: path, Err: fmt.Errorf("missing column %q", name)}
		}
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	return cols, records, nil
}
