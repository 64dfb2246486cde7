package aggregate

import (
	"math"
	"sort"

	"ageofrisk/internal/records"
)

// BurdenShare is the under-50 mortality rate relative to the all-ages rate.
type BurdenShare struct {
	Country string  `json:"country"`
	Year    int     `json:"year"`
	Under50 float64 `json:"mort_u50"`
	Total   float64 `json:"mort_total"`
	Share   float64 `json:"share_u50"`
}

// BurdenShift joins the under-50 band mean with the TOTAL mean per (country,
// year). Keys missing either side, or with a zero total, are skipped.
func BurdenShift(rows []records.MortalityRecord) []BurdenShare {
	under, total := mortalitySplit(rows)
	var out []BurdenShare
	for k, u := range under {
		t, ok := total[k]
		if !ok || t == 0 {
			continue
		}
		out = append(out, BurdenShare{Country: k.country, Year: k.year, Under50: u, Total: t, Share: u / t * 100})
	}
	sort.Slice(out, func(i, j int) bool {
		return lessCY(cyKey{out[i].Country, out[i].Year}, cyKey{out[j].Country, out[j].Year})
	})
	return out
}

func mortalitySplit(rows []records.MortalityRecord) (under, total map[cyKey]float64) {
	u := make(map[cyKey][]float64)
	t := make(map[cyKey][]float64)
	for _, r := range rows {
		k := cyKey{r.Country, r.Year}
		if b, ok := records.BandOf(r.AgeGroup); ok && b == records.BandUnder50 {
			u[k] = append(u[k], r.Rate)
		} else if r.AgeGroup == records.AgeTotal {
			t[k] = append(t[k], r.Rate)
		}
	}
	under = make(map[cyKey]float64, len(u))
	for k, v := range u {
		under[k] = Mean(v)
	}
	total = make(map[cyKey]float64, len(t))
	for k, v := range t {
		total[k] = Mean(v)
	}
	return under, total
}

// PanelRow holds one country's metrics for a correlation year. Nil fields
// are not available for that country.
type PanelRow struct {
	Country    string   `json:"country"`
	Year       int      `json:"panel_year"`
	Screening  *float64 `json:"screening_rate,omitempty"`
	MortU50    *float64 `json:"mort_u50,omitempty"`
	MortTotal  *float64 `json:"mort_total,omitempty"`
	ShareU50   *float64 `json:"share_u50,omitempty"`
	IncomeGap  *float64 `json:"income_gap,omitempty"`
	SurveyYear int      `json:"svy_year,omitempty"`
}

// Correlation is one cell of the correlation matrix.
type Correlation struct {
	X string  `json:"x"`
	Y string  `json:"y"`
	R float64 `json:"r"`
	N int     `json:"n"`
}

type CorrelationResult struct {
	Year   int           `json:"year"`
	Panel  []PanelRow    `json:"panel"`
	Matrix []Correlation `json:"matrix"`
}

// PanelMetrics are the correlation variables in matrix order.
var PanelMetrics = []string{"screening_rate", "mort_u50", "mort_total", "share_u50", "income_gap"}

func (p PanelRow) metric(name string) *float64 {
	switch name {
	case "screening_rate":
		return p.Screening
	case "mort_u50":
		return p.MortU50
	case "mort_total":
		return p.MortTotal
	case "share_u50":
		return p.ShareU50
	case "income_gap":
		return p.IncomeGap
	}
	return nil
}

func ptr(v float64) *float64 { return &v }

// CorrelationPanel builds the per-country panel for year and its pairwise
// Pearson matrix. The income gap comes from the latest survey year not after
// year, since the income survey runs less often than the other sources.
func CorrelationPanel(scr []records.ScreeningRecord, mort []records.MortalityRecord, exam []records.ExamIncomeRecord, year int) CorrelationResult {
	panel := make(map[string]*PanelRow)
	get := func(c string) *PanelRow {
		if panel[c] == nil {
			panel[c] = &PanelRow{Country: c, Year: year}
		}
		return panel[c]
	}

	byCountry := make(map[string][]float64)
	for _, r := range scr {
		if r.Year == year {
			byCountry[r.Country] = append(byCountry[r.Country], r.Rate)
		}
	}
	for c, vals := range byCountry {
		get(c).Screening = ptr(Median(vals))
	}

	under, total := mortalitySplit(mort)
	for k, v := range under {
		if k.year == year {
			get(k.country).MortU50 = ptr(v)
		}
	}
	for k, v := range total {
		if k.year == year {
			get(k.country).MortTotal = ptr(v)
		}
	}
	for _, p := range panel {
		if p.MortU50 != nil && p.MortTotal != nil && *p.MortTotal != 0 {
			p.ShareU50 = ptr(*p.MortU50 / *p.MortTotal * 100)
		}
	}

	survey := 0
	for _, e := range exam {
		if e.Year <= year && e.Year > survey {
			survey = e.Year
		}
	}
	if survey > 0 {
		gaps, _ := BandIncomeGaps(exam)
		for _, g := range gaps {
			if g.Year != survey || g.AgeGroup != records.AgeGroup(records.BandUnder50) {
				continue
			}
			// Only countries already in the panel get a gap, as in a left join.
			if p, ok := panel[g.Country]; ok {
				p.IncomeGap = ptr(g.Gap)
				p.SurveyYear = survey
			}
		}
	}

	res := CorrelationResult{Year: year}
	for _, p := range panel {
		res.Panel = append(res.Panel, *p)
	}
	sort.Slice(res.Panel, func(i, j int) bool { return res.Panel[i].Country < res.Panel[j].Country })
	res.Matrix = correlationMatrix(res.Panel)
	return res
}

func correlationMatrix(panel []PanelRow) []Correlation {
	var out []Correlation
	for _, x := range PanelMetrics {
		for _, y := range PanelMetrics {
			var xs, ys []float64
			for _, p := range panel {
				a, b := p.metric(x), p.metric(y)
				if a == nil || b == nil {
					continue
				}
				xs = append(xs, *a)
				ys = append(ys, *b)
			}
			r, ok := Pearson(xs, ys)
			if !ok {
				continue
			}
			out = append(out, Correlation{X: x, Y: y, R: math.Round(r*100) / 100, N: len(xs)})
		}
	}
	return out
}
