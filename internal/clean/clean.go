// Package clean turns raw source tables into typed canonical tables.
//
// Each dataset has its own cleaner but all of them run the same steps:
// rename headers to the shared vocabulary, drop the columns outside the
// canonical schema, apply the row filters, coerce types, resolve duplicate
// keys (last seen wins) and sort. Rows that fail coercion are dropped and
// counted in Diagnostics rather than failing the whole table.
package clean

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ageofrisk/internal/loader"
	"ageofrisk/internal/records"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrMissingValue  = errors.New("missing value")
	ErrOutOfRange    = errors.New("value out of range")
)

// CoercionError describes a cell that could not be converted. Row is the
// 1-based position of the row among the well-formed rows of the source.
type CoercionError struct {
	Dataset string
	Row     int
	Column  string
	Value   string
	Err     error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s row %d: column %s=%q: %v", e.Dataset, e.Row, e.Column, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// maxSamples caps the number of error samples kept per dataset.
const maxSamples = 20

// Diagnostics counts what happened to every source row.
type Diagnostics struct {
	Dataset        string   `json:"dataset"`
	RowsRead       int      `json:"rows_read"`
	Malformed      int      `json:"malformed"`
	Filtered       int      `json:"filtered"`
	MissingValue   int      `json:"missing_value"`
	CoercionFailed int      `json:"coercion_failed"`
	OutOfRange     int      `json:"out_of_range"`
	Duplicates     int      `json:"duplicates"`
	RowsKept       int      `json:"rows_kept"`
	Samples        []string `json:"samples,omitempty"`

	errs []error
}

// Errors returns the sampled row-level errors: *loader.ParseError for
// malformed lines and *CoercionError for dropped cells.
func (d *Diagnostics) Errors() []error { return d.errs }

// Dropped maps each drop reason to its count.
func (d *Diagnostics) Dropped() map[string]int {
	return map[string]int{
		"malformed":       d.Malformed,
		"filtered":        d.Filtered,
		"missing_value":   d.MissingValue,
		"coercion_failed": d.CoercionFailed,
		"out_of_range":    d.OutOfRange,
		"duplicates":      d.Duplicates,
	}
}

func (d *Diagnostics) sample(err error) {
	if len(d.errs) >= maxSamples {
		return
	}
	d.errs = append(d.errs, err)
	d.Samples = append(d.Samples, err.Error())
}

func (d *Diagnostics) record(err error) {
	switch {
	case errors.Is(err, ErrMissingValue):
		d.MissingValue++
	case errors.Is(err, ErrOutOfRange):
		d.OutOfRange++
	default:
		d.CoercionFailed++
	}
	d.sample(err)
}

// headerAliases maps normalized source headers to canonical column names.
var headerAliases = map[string]string{
	"geo":             "country",
	"country":         "country",
	"time_period":     "year",
	"year":            "year",
	"obs_value":       "rate",
	"screening_rate":  "rate",
	"mortality_rate":  "rate",
	"exam_rate":       "rate",
	"age":             "age_group",
	"age_group":       "age_group",
	"age_band":        "age_group",
	"quant_inc":       "income_quintile",
	"income_quintile": "income_quintile",
	"unit":            "unit",
	"source":          "source",
	"icd10":           "icd10",
	"sex":             "sex",
	"duration":        "duration",
}

// snake converts "LAST UPDATE" to "last_update".
func snake(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// canonicalHeaders maps source headers to canonical names. Headers outside
// the canonical vocabulary (DATAFLOW, LAST UPDATE, freq, OBS_FLAG, ...) are
// absent from the result, which is how they get dropped.
func canonicalHeaders(headers []string) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		if c, ok := headerAliases[snake(h)]; ok {
			if _, dup := out[c]; dup {
				// first spelling wins: "geo" before a later "country" copy
				continue
			}
			out[c] = h
		}
	}
	return out
}

type row map[string]string

func normalizeRow(raw map[string]string, cols map[string]string) row {
	r := make(row, len(cols))
	for canon, src := range cols {
		r[canon] = strings.TrimSpace(raw[src])
	}
	return r
}

func requireColumns(dataset string, cols map[string]string, names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := cols[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: %w: %s", dataset, ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// pipeline is the shared cleaning skeleton; T is the canonical record type.
type pipeline[T any] struct {
	dataset  string
	required []string
	keep     func(row) bool
	build    func(row, *rowErr) T
	key      func(T) string
	less     func(a, b T) bool
}

func (p pipeline[T]) run(raw *loader.RawTable) ([]T, Diagnostics, error) {
	d := Diagnostics{Dataset: p.dataset, RowsRead: len(raw.Rows) + len(raw.Malformed), Malformed: len(raw.Malformed)}
	for _, pe := range raw.Malformed {
		d.sample(pe)
	}
	cols := canonicalHeaders(raw.Headers)
	if err := requireColumns(p.dataset, cols, p.required...); err != nil {
		return nil, d, err
	}

	out := make([]T, 0, len(raw.Rows))
	pos := make(map[string]int, len(raw.Rows))
	for i, src := range raw.Rows {
		r := normalizeRow(src, cols)
		if !p.keep(r) {
			d.Filtered++
			continue
		}
		re := &rowErr{dataset: p.dataset, row: i + 1}
		rec := p.build(r, re)
		if re.err != nil {
			d.record(re.err)
			continue
		}
		k := p.key(rec)
		if j, ok := pos[k]; ok {
			out[j] = rec
			d.Duplicates++
			continue
		}
		pos[k] = len(out)
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return p.less(out[i], out[j]) })
	d.RowsKept = len(out)
	return out, d, nil
}

// rowErr keeps the first coercion failure of a row.
type rowErr struct {
	dataset string
	row     int
	err     error
}

func (re *rowErr) fail(col, val string, err error) {
	if re.err == nil {
		re.err = &CoercionError{Dataset: re.dataset, Row: re.row, Column: col, Value: val, Err: err}
	}
}

func (re *rowErr) year(r row) int {
	v := r["year"]
	if v == "" {
		re.fail("year", v, ErrMissingValue)
		return 0
	}
	y, err := strconv.Atoi(v)
	if err != nil {
		re.fail("year", v, err)
		return 0
	}
	return y
}

// rate parses the observation value. Eurostat marks unavailable cells with ":".
func (re *rowErr) rate(r row, lo, hi float64) float64 {
	v := r["rate"]
	if v == "" || v == ":" || strings.EqualFold(v, "nan") {
		re.fail("rate", v, ErrMissingValue)
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		re.fail("rate", v, err)
		return 0
	}
	if f < lo || f > hi {
		re.fail("rate", v, ErrOutOfRange)
		return 0
	}
	return f
}

func (re *rowErr) ageGroup(r row) records.AgeGroup {
	g, err := records.ParseAgeGroup(r["age_group"])
	if err != nil {
		re.fail("age_group", r["age_group"], err)
	}
	return g
}

func (re *rowErr) country(r row) string {
	c := strings.ToUpper(r["country"])
	if c == "" {
		re.fail("country", c, ErrMissingValue)
	}
	return c
}

func upperEq(v, want string) bool {
	return strings.EqualFold(strings.TrimSpace(v), want)
}

func keyOf(parts ...string) string { return strings.Join(parts, "\x1f") }

func compareKey(a, b records.Key) int {
	if a.Country != b.Country {
		return strings.Compare(a.Country, b.Country)
	}
	if a.Year != b.Year {
		if a.Year < b.Year {
			return -1
		}
		return 1
	}
	return strings.Compare(string(a.AgeGroup), string(b.AgeGroup))
}
