// Package aggregate derives the dashboard metrics from canonical tables.
// Nothing here mutates its input.
package aggregate

import (
	"sort"
	"strings"

	"ageofrisk/internal/records"
)

type gapKey struct {
	country string
	year    int
	group   records.AgeGroup
}

type quintiles struct {
	q1, q5 []float64
}

// IncomeGaps computes Q5 − Q1 per (country, year, age group). When a key has
// several rows for a quintile (different exam durations) their median is
// used. Keys missing either quintile produce no row.
func IncomeGaps(rows []records.ExamIncomeRecord) []records.IncomeGap {
	groups := make(map[gapKey]*quintiles)
	for _, r := range rows {
		addQuintile(groups, gapKey{r.Country, r.Year, r.AgeGroup}, r)
	}
	return gapRows(groups)
}

// BandIncomeGaps is IncomeGaps over age bands instead of source age groups.
// The returned age group of each row is the band label. Age groups outside
// the band table are reported as unmapped.
func BandIncomeGaps(rows []records.ExamIncomeRecord) ([]records.IncomeGap, []records.AgeGroup) {
	groups := make(map[gapKey]*quintiles)
	unmapped := newGroupSet()
	for _, r := range rows {
		band, ok := records.BandOf(r.AgeGroup)
		if !ok {
			unmapped.add(r.AgeGroup)
			continue
		}
		addQuintile(groups, gapKey{r.Country, r.Year, records.AgeGroup(band)}, r)
	}
	return gapRows(groups), unmapped.sorted()
}

func addQuintile(groups map[gapKey]*quintiles, k gapKey, r records.ExamIncomeRecord) {
	if r.Quintile != records.Q1 && r.Quintile != records.Q5 {
		return
	}
	g := groups[k]
	if g == nil {
		g = &quintiles{}
		groups[k] = g
	}
	if r.Quintile == records.Q1 {
		g.q1 = append(g.q1, r.Rate)
	} else {
		g.q5 = append(g.q5, r.Rate)
	}
}

func gapRows(groups map[gapKey]*quintiles) []records.IncomeGap {
	out := make([]records.IncomeGap, 0, len(groups))
	for k, g := range groups {
		if len(g.q1) == 0 || len(g.q5) == 0 {
			continue
		}
		q1, q5 := Median(g.q1), Median(g.q5)
		out = append(out, records.IncomeGap{
			Country: k.country, Year: k.year, AgeGroup: k.group,
			Q1: q1, Q5: q5, Gap: q5 - q1,
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
		return a.AgeGroup < b.AgeGroup
	})
	return out
}

// groupSet collects distinct unmapped age groups. "total" is an aggregate
// rather than an age band and is never reported.
type groupSet map[records.AgeGroup]struct{}

func newGroupSet() groupSet { return groupSet{} }

func (s groupSet) add(g records.AgeGroup) {
	if g != records.AgeTotal {
		s[g] = struct{}{}
	}
}

func (s groupSet) sorted() []records.AgeGroup {
	out := make([]records.AgeGroup, 0, len(s))
	for g := range s {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(string(out[i]), string(out[j])) < 0 })
	return out
}
