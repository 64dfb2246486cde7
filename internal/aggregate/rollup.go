package aggregate

import (
	"sort"

	"ageofrisk/internal/records"
)

// Rollup is a band-level table plus the source age groups that had no band.
// Totals counts the excluded rows labelled "total".
type Rollup struct {
	Rows     []records.BandValue
	Unmapped []records.AgeGroup
	Totals   int
}

// NoAgeBreakdown reports whether every input row was a TOTAL row, leaving
// the rollup empty.
func (r Rollup) NoAgeBreakdown() bool {
	return len(r.Rows) == 0 && len(r.Unmapped) == 0 && r.Totals > 0
}

type bandKey struct {
	country string
	year    int
	band    records.Band
}

type observation struct {
	country string
	year    int
	group   records.AgeGroup
	value   float64
}

// RollupScreening groups screening rates into bands, reducing each group to
// its median.
func RollupScreening(rows []records.ScreeningRecord) Rollup {
	obs := make([]observation, len(rows))
	for i, r := range rows {
		obs[i] = observation{r.Country, r.Year, r.AgeGroup, r.Rate}
	}
	return rollup(obs, Median)
}

// RollupMortality groups mortality rates into bands, reducing each group to
// its mean.
func RollupMortality(rows []records.MortalityRecord) Rollup {
	obs := make([]observation, len(rows))
	for i, r := range rows {
		obs[i] = observation{r.Country, r.Year, r.AgeGroup, r.Rate}
	}
	return rollup(obs, Mean)
}

func rollup(obs []observation, reduce Reducer) Rollup {
	groups := make(map[bandKey][]float64)
	unmapped := newGroupSet()
	totals := 0
	for _, o := range obs {
		band, ok := records.BandOf(o.group)
		if !ok {
			if o.group == records.AgeTotal {
				totals++
			}
			unmapped.add(o.group)
			continue
		}
		k := bandKey{o.country, o.year, band}
		groups[k] = append(groups[k], o.value)
	}

	out := make([]records.BandValue, 0, len(groups))
	for k, vals := range groups {
		out = append(out, records.BandValue{
			Country: k.country, Year: k.year, Band: k.band,
			Value: reduce(vals), N: len(vals),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Band > b.Band // under-50 before 50-69
	})
	return Rollup{Rows: out, Unmapped: unmapped.sorted(), Totals: totals}
}
