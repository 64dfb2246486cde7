// Package query slices canonical and derived tables by the selections made
// in the view layer: countries, a year range and an optional age band.
package query

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"ageofrisk/internal/records"
)

var ErrInvalidParams = errors.New("invalid query parameters")

// Row is anything addressable by country, year and age group.
type Row interface {
	Key() records.Key
}

// Params is the selection passed by value from the view layer. An empty
// Countries list selects every country; an empty Band selects every age group.
type Params struct {
	Countries []string
	From      int
	To        int
	Band      records.Band
}

// AllYears returns Params with an unbounded year range.
func AllYears() Params {
	return Params{From: math.MinInt, To: math.MaxInt}
}

// Normalize upper-cases, dedupes and sorts the country list so equal
// selections compare and hash equal.
func (p Params) Normalize() Params {
	seen := make(map[string]bool, len(p.Countries))
	var cs []string
	for _, c := range p.Countries {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" && !seen[c] {
			seen[c] = true
			cs = append(cs, c)
		}
	}
	sort.Strings(cs)
	p.Countries = cs
	return p
}

func (p Params) Validate() error {
	if p.From > p.To {
		return fmt.Errorf("%w: year range %d > %d", ErrInvalidParams, p.From, p.To)
	}
	return nil
}

// CacheKey identifies the selection for memoization.
func (p Params) CacheKey() string {
	p = p.Normalize()
	return fmt.Sprintf("c=%s|y=%d-%d|b=%s", strings.Join(p.Countries, ","), p.From, p.To, p.Band)
}

// EmptyResultWarning tells the view layer to render a "no data" state.
type EmptyResultWarning struct {
	Params Params
}

func (w *EmptyResultWarning) Error() string {
	p := w.Params
	cs := "all countries"
	if len(p.Countries) > 0 {
		cs = strings.Join(p.Countries, ", ")
	}
	years := "all years"
	if p.From != math.MinInt || p.To != math.MaxInt {
		years = fmt.Sprintf("%d to %d", p.From, p.To)
	}
	return fmt.Sprintf("no data for %s, %s", cs, years)
}

// Slice is the filtered view of a table.
type Slice[T Row] struct {
	Rows    []T
	Warning *EmptyResultWarning
}

func (s Slice[T]) Empty() bool { return len(s.Rows) == 0 }

// Filter returns the rows matching p in their original order. The input is
// never modified and the result never aliases it. Band matches rows whose age
// group maps to the band, and derived rows already labelled with it.
func Filter[T Row](rows []T, p Params) Slice[T] {
	p = p.Normalize()
	countries := make(map[string]bool, len(p.Countries))
	for _, c := range p.Countries {
		countries[c] = true
	}

	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := r.Key()
		if len(countries) > 0 && !countries[strings.ToUpper(k.Country)] {
			continue
		}
		if k.Year < p.From || k.Year > p.To {
			continue
		}
		if p.Band != "" && !inBand(k.AgeGroup, p.Band) {
			continue
		}
		out = append(out, r)
	}
	s := Slice[T]{Rows: out}
	if len(out) == 0 {
		s.Warning = &EmptyResultWarning{Params: p}
	}
	return s
}

func inBand(g records.AgeGroup, band records.Band) bool {
	if records.AgeGroup(band) == g {
		return true
	}
	b, ok := records.BandOf(g)
	return ok && b == band
}

// YearBounds returns the smallest and largest year across tables. ok is
// false when no table has rows.
func YearBounds(keys ...[]records.Key) (lo, hi int, ok bool) {
	for _, ks := range keys {
		for _, k := range ks {
			if !ok || k.Year < lo {
				lo = k.Year
			}
			if !ok || k.Year > hi {
				hi = k.Year
			}
			ok = true
		}
	}
	return lo, hi, ok
}

// Countries returns the sorted union of countries across tables.
func Countries(keys ...[]records.Key) []string {
	set := make(map[string]bool)
	for _, ks := range keys {
		for _, k := range ks {
			set[k.Country] = true
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DefaultCountries returns the n countries with the most rows across
// tables; ties go to the alphabetically first country.
func DefaultCountries(n int, keys ...[]records.Key) []string {
	counts := make(map[string]int)
	for _, ks := range keys {
		for _, k := range ks {
			counts[k.Country]++
		}
	}
	out := make([]string, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Keys extracts the keys of a table for YearBounds and friends.
func Keys[T Row](rows []T) []records.Key {
	out := make([]records.Key, len(rows))
	for i, r := range rows {
		out[i] = r.Key()
	}
	return out
}

// ParseParams reads countries, from, to and band from URL query values.
// countries may repeat or be comma separated.
func ParseParams(v url.Values) (Params, error) {
	p := AllYears()
	for _, raw := range v["countries"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				p.Countries = append(p.Countries, c)
			}
		}
	}
	var err error
	if s := v.Get("from"); s != "" {
		if p.From, err = strconv.Atoi(s); err != nil {
			return Params{}, fmt.Errorf("%w: from=%q", ErrInvalidParams, s)
		}
	}
	if s := v.Get("to"); s != "" {
		if p.To, err = strconv.Atoi(s); err != nil {
			return Params{}, fmt.Errorf("%w: to=%q", ErrInvalidParams, s)
		}
	}
	if s := v.Get("band"); s != "" {
		b, err := records.ParseBand(s)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		p.Band = b
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
