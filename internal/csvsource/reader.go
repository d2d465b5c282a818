// Package csvsource turns delimited text into rows, one row per call.
package csvsource

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/datainsight/datainsight/internal/dataset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type Options struct {
	// Comma defaults to ','.
	Comma rune
	// EmptyAsNull stores empty cells as absent values instead of empty strings.
	EmptyAsNull bool
}

// Reader pulls rows lazily. Nothing is read from the underlying stream until
// Next is called, so a caller that stops calling Next stops the source.
type Reader struct {
	csv        *csv.Reader
	opts       Options
	header     []string
	columns    []int
	headerRead bool
	line       int
}

func NewReader(r io.Reader, opts Options) *Reader {
	buffered := bufio.NewReader(r)
	if prefix, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	return &Reader{csv: reader, opts: opts}
}

// Header returns the field names in source order. Empty header cells are
// dropped and duplicates get a numeric suffix.
func (r *Reader) Header() ([]string, error) {
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return append([]string(nil), r.header...), nil
}

// Next returns io.EOF once the source is exhausted.
func (r *Reader) Next() (dataset.Row, error) {
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	for {
		record, err := r.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		r.line++
		if isBlank(record) {
			continue
		}

		row := make(dataset.Row, 0, len(r.header))
		for i, column := range r.columns {
			if column >= len(record) {
				break
			}
			var value any = record[column]
			if r.opts.EmptyAsNull && record[column] == "" {
				value = nil
			}
			row = append(row, dataset.Cell{Name: r.header[i], Value: value})
		}
		return row, nil
	}
}

// Line is the number of data records consumed so far.
func (r *Reader) Line() int {
	return r.line
}

func (r *Reader) readHeader() error {
	if r.headerRead {
		return nil
	}
	r.headerRead = true

	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read csv header: %w", err)
	}

	// Header names as written are reserved first so a generated suffix never
	// shadows a later column.
	taken := make(map[string]bool, len(record))
	for _, raw := range record {
		if name := strings.TrimSpace(raw); name != "" {
			taken[name] = true
		}
	}
	emitted := make(map[string]bool, len(record))
	for index, raw := range record {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if emitted[name] {
			name = uniqueName(name, taken)
		}
		emitted[name] = true
		r.header = append(r.header, name)
		r.columns = append(r.columns, index)
	}
	return nil
}

// uniqueName returns the first name_N, N >= 2, not in taken and reserves it.
func uniqueName(name string, taken map[string]bool) string {
	for n := 2; ; n++ {
		candidate := name + "_" + strconv.Itoa(n)
		if !taken[candidate] {
			taken[candidate] = true
			return candidate
		}
	}
}

func isBlank(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}
