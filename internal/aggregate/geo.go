package aggregate

import (
	"sort"

	"ageofrisk/internal/records"
)

const (
	MetricScreening        = "screening"
	MetricMortalityUnder50 = "mortality_under50"
	MetricIncomeGap        = "income_gap_under50"
)

var MapMetrics = []string{MetricScreening, MetricMortalityUnder50, MetricIncomeGap}

// iso3 maps Eurostat geo codes to ISO 3166-1 alpha-3. Eurostat uses EL for
// Greece and UK for the United Kingdom.
var iso3 = map[string]string{
	"AT": "AUT", "BE": "BEL", "BG": "BGR", "HR": "HRV", "CY": "CYP", "CZ": "CZE", "DK": "DNK",
	"EE": "EST", "FI": "FIN", "FR": "FRA", "DE": "DEU", "EL": "GRC", "GR": "GRC", "HU": "HUN",
	"IE": "IRL", "IT": "ITA", "LV": "LVA", "LT": "LTU", "LU": "LUX", "MT": "MLT", "NL": "NLD",
	"PL": "POL", "PT": "PRT", "RO": "ROU", "SK": "SVK", "SI": "SVN", "ES": "ESP", "SE": "SWE",
	"IS": "ISL", "NO": "NOR", "CH": "CHE", "UK": "GBR", "GB": "GBR", "AL": "ALB", "BA": "BIH",
	"ME": "MNE", "MK": "MKD", "RS": "SRB", "MD": "MDA", "UA": "UKR", "BY": "BLR", "TR": "TUR",
	"LI": "LIE",
}

// ISO3 returns the alpha-3 code for a geo code, or the code itself when it is
// not a known country (aggregates such as EU27_2020).
func ISO3(geo string) string {
	if c, ok := iso3[geo]; ok {
		return c
	}
	return geo
}

// MapPoint is one long-format cell for the map views.
type MapPoint struct {
	Country string  `json:"country"`
	ISO3    string  `json:"iso3"`
	Year    int     `json:"year"`
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
}

func (m MapPoint) Key() records.Key { return records.Key{Country: m.Country, Year: m.Year} }

// MapPanel builds one frame per (country, year) for every metric: screening
// median, under-50 mortality mean and the under-50 income gap.
func MapPanel(scr []records.ScreeningRecord, mort []records.MortalityRecord, exam []records.ExamIncomeRecord) []MapPoint {
	var out []MapPoint
	emit := func(metric string, k cyKey, v float64) {
		out = append(out, MapPoint{Country: k.country, ISO3: ISO3(k.country), Year: k.year, Metric: metric, Value: v})
	}

	byKey := make(map[cyKey][]float64)
	for _, r := range scr {
		k := cyKey{r.Country, r.Year}
		byKey[k] = append(byKey[k], r.Rate)
	}
	for k, vals := range byKey {
		emit(MetricScreening, k, Median(vals))
	}

	under, _ := mortalitySplit(mort)
	for k, v := range under {
		emit(MetricMortalityUnder50, k, v)
	}

	gaps, _ := BandIncomeGaps(exam)
	for _, g := range gaps {
		if g.AgeGroup == records.AgeGroup(records.BandUnder50) {
			emit(MetricIncomeGap, cyKey{g.Country, g.Year}, g.Gap)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Country < b.Country
	})
	return out
}
