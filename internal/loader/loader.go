// Package loader reads the raw statistics files into untyped tables. It does
// no cleaning: header names and cell values are returned as found, apart from
// a leading UTF-8 BOM which is stripped.
package loader

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// RawTable is one source file as read from disk.
type RawTable struct {
	Path     string
	Headers  []string
	Rows     []map[string]string
	Checksum string

	// Malformed rows were dropped while reading.
	Malformed []*ParseError
}

// MissingFileError is returned when a source file does not exist. It is fatal
// for the session.
type MissingFileError struct {
	Path string
	Err  error
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("missing data file %s", e.Path)
}

func (e *MissingFileError) Unwrap() error { return e.Err }

// ParseError describes a malformed line. Line is 1-based and counts the header.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads the CSV file at path.
func Load(path string) (*RawTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingFileError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(b)
	t, err := Parse(path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	t.Checksum = hex.EncodeToString(sum[:])
	return t, nil
}

// Parse reads CSV from r. name is only used in errors.
func Parse(name string, r io.Reader) (*RawTable, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})

	cr := csv.NewReader(bytes.NewReader(b))
	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty file")
		}
		return nil, &ParseError{Path: name, Line: 1, Err: err}
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	// The header fixes the field count for every following record.
	cr.FieldsPerRecord = len(headers)

	t := &RawTable{Path: name, Headers: headers}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			t.Malformed = append(t.Malformed, &ParseError{Path: name, Line: line, Err: err})
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			row[h] = rec[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
