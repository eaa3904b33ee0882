// Package sanitizer repairs downloaded kline CSV files in place.
package sanitizer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"klinevault/internal/model"
)

var (
	// ErrInvalidInput is returned for paths that are not CSV files.
	ErrInvalidInput = errors.New("sanitizer: not a csv file")
	// ErrEmptyInput is returned when the file has no records at all.
	ErrEmptyInput = errors.New("sanitizer: empty csv file")
)

// Result summarises one repair.
type Result struct {
	Kept           int
	Dropped        int
	HeaderInserted bool
}

// Repair rewrites path so that it starts with the canonical header and
// every remaining record has the header's column count.
func Repair(path string) error {
	_, err := RepairWithResult(path)
	return err
}

// RepairWithResult is Repair that also reports what changed.
func RepairWithResult(path string) (Result, error) {
	var res Result

	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return res, fmt.Errorf("%w: %s", ErrInvalidInput, path)
	}

	records, err := readRecords(path)
	if err != nil {
		return res, err
	}
	if len(records) == 0 {
		return res, fmt.Errorf("%w: %s", ErrEmptyInput, path)
	}

	header := model.RawHeader
	body := records
	if equalRecord(records[0], header) {
		body = records[1:]
	} else {
		res.HeaderInserted = true
	}

	out := make([][]string, 0, len(body)+1)
	out = append(out, header)
	for _, rec := range body {
		if len(rec) != len(header) {
			res.Dropped++
			continue
		}
		out = append(out, rec)
	}
	res.Kept = len(out) - 1

	if err := writeRecords(path, out); err != nil {
		return res, err
	}
	return res, nil
}

func readRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func writeRecords(path string, records [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func equalRecord(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != b[i] {
			return false
		}
	}
	return true
}
