// Package export writes canonical and derived tables as CSV files, a SQLite
// database and a markdown profile report.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ageofrisk/internal/records"
)

// Table is a typed row with a fixed export schema.
type Table interface {
	Columns() []records.Column
	Values() []any
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes rows with a BOM and a header line. The header comes from
// the zero value of T, so an empty slice still produces a valid file.
func WriteCSV[T Table](w io.Writer, rows []T) error {
	var zero T
	cols := zero.Columns()
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	recs := make([][]string, len(rows))
	for i, r := range rows {
		vals := r.Values()
		rec := make([]string, len(vals))
		for j, v := range vals {
			rec[j] = csvString(v)
		}
		recs[i] = rec
	}
	return WriteRecords(w, header, recs)
}

// WriteRecords writes a BOM, the header and the records with "\n" line
// endings, quoting only fields that need it.
func WriteRecords(w io.Writer, header []string, recs [][]string) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(utf8BOM); err != nil {
		return err
	}
	if err := writeCSVRecord(bw, header, "\n"); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := writeCSVRecord(bw, rec, "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteCSVFile creates path and its directory and writes rows to it.
func WriteCSVFile[T Table](path string, rows []T) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteCSV(f, rows)
}

func csvString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return floatString(t)
	default:
		return fmt.Sprint(t)
	}
}

// floatString keeps a trailing .0 on integral values so rate columns read
// as decimals in spreadsheet tools.
func floatString(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		return s + ".0"
	}
	return s
}

func writeCSVRecord(w io.Writer, rec []string, terminator string) error {
	for i, field := range rec {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if needsCSVQuote(field) {
			field = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
		}
		if _, err := io.WriteString(w, field); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, terminator)
	return err
}

func needsCSVQuote(s string) bool {
	return strings.ContainsAny(s, ",\"\n\r")
}
