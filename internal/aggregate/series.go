package aggregate

import (
	"math"
	"sort"

	"ageofrisk/internal/records"
)

// Point is one observation of a metric series.
type Point struct {
	Country string
	Year    int
	Value   float64
}

// LatestValue is the most recent observation of one country's series.
type LatestValue struct {
	Country string  `json:"country"`
	Year    int     `json:"year"`
	Value   float64 `json:"value"`
}

// yearly averages points that share a (country, year) and indexes the
// result by country.
func yearly(points []Point) map[string]map[int]float64 {
	sums := make(map[cyKey][]float64)
	for _, p := range points {
		if math.IsNaN(p.Value) {
			continue
		}
		k := cyKey{p.Country, p.Year}
		sums[k] = append(sums[k], p.Value)
	}
	out := make(map[string]map[int]float64)
	for k, vals := range sums {
		if out[k.country] == nil {
			out[k.country] = make(map[int]float64)
		}
		out[k.country][k.year] = Mean(vals)
	}
	return out
}

func pick(points []Point, latest bool) []LatestValue {
	var out []LatestValue
	for country, years := range yearly(points) {
		best, first := 0, true
		for y := range years {
			if first || (latest && y > best) || (!latest && y < best) {
				best, first = y, false
			}
		}
		out = append(out, LatestValue{Country: country, Year: best, Value: years[best]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}

// Latest returns, per country, the value of the latest year that country
// reports. Coverage differs between countries so each series has its own
// latest year.
func Latest(points []Point) []LatestValue { return pick(points, true) }

// Earliest is Latest for the first reported year.
func Earliest(points []Point) []LatestValue { return pick(points, false) }

// KPI summarises a metric across countries.
type KPI struct {
	Metric       string        `json:"metric"`
	Value        float64       `json:"value"`
	Baseline     float64       `json:"baseline"`
	Delta        float64       `json:"delta"`
	Countries    int           `json:"countries"`
	EarliestYear int           `json:"earliest_year"`
	LatestYear   int           `json:"latest_year"`
	Trend        string        `json:"trend,omitempty"`
	PerCountry   []LatestValue `json:"per_country"`
	Available    bool          `json:"available"`
}

// Summarize computes the median of each country's latest value, the median
// of each country's earliest value as baseline, and their difference.
func Summarize(metric string, points []Point) KPI {
	latest := Latest(points)
	k := KPI{Metric: metric, PerCountry: latest}
	if len(latest) == 0 {
		return k
	}
	earliest := Earliest(points)
	lv := make([]float64, len(latest))
	for i, l := range latest {
		lv[i] = l.Value
		if l.Year > k.LatestYear {
			k.LatestYear = l.Year
		}
	}
	ev := make([]float64, len(earliest))
	k.EarliestYear = earliest[0].Year
	for i, e := range earliest {
		ev[i] = e.Value
		if e.Year < k.EarliestYear {
			k.EarliestYear = e.Year
		}
	}
	k.Value = Median(lv)
	k.Baseline = Median(ev)
	k.Delta = k.Value - k.Baseline
	k.Countries = len(latest)
	k.Available = true
	return k
}

// Screening50To69Points prefers the 50-69 band and falls back to the TOTAL
// rows when a selection has no age breakdown, which is the usual shape of a
// screening source.
func Screening50To69Points(rows []records.ScreeningRecord) []Point {
	var band, total []Point
	for _, r := range rows {
		if b, ok := records.BandOf(r.AgeGroup); ok && b == records.Band50To69 {
			band = append(band, Point{r.Country, r.Year, r.Rate})
		} else if r.AgeGroup == records.AgeTotal {
			total = append(total, Point{r.Country, r.Year, r.Rate})
		}
	}
	if len(band) > 0 {
		return band
	}
	return total
}

// MortalityUnder50Points prefers explicit under-50 age groups and falls back
// to the TOTAL rows when a selection has no age breakdown at all.
func MortalityUnder50Points(rows []records.MortalityRecord) []Point {
	var under, total []Point
	for _, r := range rows {
		if b, ok := records.BandOf(r.AgeGroup); ok && b == records.BandUnder50 {
			under = append(under, Point{r.Country, r.Year, r.Rate})
		} else if r.AgeGroup == records.AgeTotal {
			total = append(total, Point{r.Country, r.Year, r.Rate})
		}
	}
	if len(under) > 0 {
		return under
	}
	return total
}

// GapPoints turns income gap rows into a series.
func GapPoints(gaps []records.IncomeGap) []Point {
	out := make([]Point, len(gaps))
	for i, g := range gaps {
		out[i] = Point{g.Country, g.Year, g.Gap}
	}
	return out
}
