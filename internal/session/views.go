package session

import (
	"fmt"
	"slices"

	"ageofrisk/internal/aggregate"
	"ageofrisk/internal/clean"
	"ageofrisk/internal/query"
	"ageofrisk/internal/records"
)

func (s *Session) Screening(p query.Params) query.Slice[records.ScreeningRecord] {
	return memo(s, "screening|"+p.CacheKey(), func() query.Slice[records.ScreeningRecord] {
		return query.Filter(s.Tables.Screening, p)
	})
}

func (s *Session) Mortality(p query.Params) query.Slice[records.MortalityRecord] {
	return memo(s, "mortality|"+p.CacheKey(), func() query.Slice[records.MortalityRecord] {
		return query.Filter(s.Tables.Mortality, p)
	})
}

func (s *Session) ExamIncome(p query.Params) query.Slice[records.ExamIncomeRecord] {
	return memo(s, "exam_income|"+p.CacheKey(), func() query.Slice[records.ExamIncomeRecord] {
		return query.Filter(s.Tables.ExamIncome, p)
	})
}

// IncomeGaps returns the Q5 minus Q1 gap per source age group. With a band
// selected the gaps are computed per band instead.
func (s *Session) IncomeGaps(p query.Params) query.Slice[records.IncomeGap] {
	return memo(s, "income_gap|"+p.CacheKey(), func() query.Slice[records.IncomeGap] {
		if p.Band != "" {
			return query.Filter(s.bandGaps(), p)
		}
		return query.Filter(s.gaps(), p)
	})
}

func (s *Session) gaps() []records.IncomeGap {
	return memo(s, "income_gap_all", func() []records.IncomeGap {
		return aggregate.IncomeGaps(s.Tables.ExamIncome)
	})
}

func (s *Session) bandGaps() []records.IncomeGap {
	return memo(s, "income_gap_bands", func() []records.IncomeGap {
		rows, unmapped := aggregate.BandIncomeGaps(s.Tables.ExamIncome)
		s.warnUnmapped("exam_income", unmapped)
		return rows
	})
}

// Bands returns the band rollup of a canonical table: the median for
// screening and the mean for mortality.
func (s *Session) Bands(dataset string, p query.Params) (query.Slice[records.BandValue], error) {
	var all []records.BandValue
	switch dataset {
	case clean.DatasetScreening:
		all = memo(s, "bands_screening", func() []records.BandValue {
			r := aggregate.RollupScreening(s.Tables.Screening)
			s.warnRollup(dataset, r)
			return r.Rows
		})
	case clean.DatasetMortality:
		all = memo(s, "bands_mortality", func() []records.BandValue {
			r := aggregate.RollupMortality(s.Tables.Mortality)
			s.warnRollup(dataset, r)
			return r.Rows
		})
	default:
		return query.Slice[records.BandValue]{}, fmt.Errorf("%w: no band rollup for %q", query.ErrInvalidParams, dataset)
	}
	return memo(s, "bands|"+dataset+"|"+p.CacheKey(), func() query.Slice[records.BandValue] {
		return query.Filter(all, p)
	}), nil
}

func (s *Session) warnRollup(dataset string, r aggregate.Rollup) {
	s.warnUnmapped(dataset, r.Unmapped)
	if r.NoAgeBreakdown() {
		s.logger.Warn("no age breakdown, band rollup is empty", "dataset", dataset, "total_rows", r.Totals)
	}
}

func (s *Session) warnUnmapped(dataset string, groups []records.AgeGroup) {
	if len(groups) == 0 {
		return
	}
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = string(g)
	}
	s.logger.Warn("age groups outside every band", "dataset", dataset, "age_groups", names)
}

// KPIs summarises screening in the 50-69 band, under-50 mortality and the
// under-50 income gap over the selected countries and years. The band of p
// is ignored; each KPI fixes its own. Sources without an age breakdown fall
// back to their TOTAL rows.
func (s *Session) KPIs(p query.Params) []aggregate.KPI {
	p.Band = ""
	return memo(s, "kpis|"+p.CacheKey(), func() []aggregate.KPI {
		scr := s.Screening(p).Rows
		mort := s.Mortality(p).Rows
		gp := p
		gp.Band = records.BandUnder50
		gaps := s.IncomeGaps(gp).Rows

		kpis := []aggregate.KPI{
			aggregate.Summarize(aggregate.MetricScreening, aggregate.Screening50To69Points(scr)),
			aggregate.Summarize(aggregate.MetricMortalityUnder50, aggregate.MortalityUnder50Points(mort)),
			aggregate.Summarize(aggregate.MetricIncomeGap, aggregate.GapPoints(gaps)),
		}
		for i := range kpis {
			kpis[i].Describe(s.locale)
		}
		return kpis
	})
}

// BurdenShift returns the under-50 share of mortality for the selection.
func (s *Session) BurdenShift(p query.Params) []aggregate.BurdenShare {
	p.Band = ""
	return memo(s, "burden|"+p.CacheKey(), func() []aggregate.BurdenShare {
		return aggregate.BurdenShift(s.Mortality(p).Rows)
	})
}

// Correlation builds the cross-country panel for one year over the full
// tables.
func (s *Session) Correlation(year int) aggregate.CorrelationResult {
	return memo(s, fmt.Sprintf("correlation|%d", year), func() aggregate.CorrelationResult {
		return aggregate.CorrelationPanel(s.Tables.Screening, s.Tables.Mortality, s.Tables.ExamIncome, year)
	})
}

// Map returns the long-format map panel for one metric, restricted to the
// selected countries and years. An empty metric returns every metric.
func (s *Session) Map(metric string, p query.Params) (query.Slice[aggregate.MapPoint], error) {
	if metric != "" && !slices.Contains(aggregate.MapMetrics, metric) {
		return query.Slice[aggregate.MapPoint]{}, fmt.Errorf("%w: unknown metric %q", query.ErrInvalidParams, metric)
	}
	p.Band = ""
	all := memo(s, "map_all", func() []aggregate.MapPoint {
		return aggregate.MapPanel(s.Tables.Screening, s.Tables.Mortality, s.Tables.ExamIncome)
	})
	return memo(s, "map|"+metric+"|"+p.CacheKey(), func() query.Slice[aggregate.MapPoint] {
		rows := all
		if metric != "" {
			rows = nil
			for _, m := range all {
				if m.Metric == metric {
					rows = append(rows, m)
				}
			}
		}
		return query.Filter(rows, p)
	}), nil
}

// FilterOptions seeds the selection widgets of the view layer.
type FilterOptions struct {
	Countries []string       `json:"countries"`
	Defaults  []string       `json:"default_countries"`
	YearMin   int            `json:"year_min"`
	YearMax   int            `json:"year_max"`
	Bands     []records.Band `json:"bands"`
	Metrics   []string       `json:"map_metrics"`
}

func (s *Session) Filters() FilterOptions {
	return memo(s, "filters", func() FilterOptions {
		keys := [][]records.Key{
			query.Keys(s.Tables.Screening),
			query.Keys(s.Tables.Mortality),
			query.Keys(s.Tables.ExamIncome),
		}
		lo, hi, _ := query.YearBounds(keys...)
		return FilterOptions{
			Countries: query.Countries(keys...),
			Defaults:  query.DefaultCountries(s.defaultN, keys...),
			YearMin:   lo,
			YearMax:   hi,
			Bands:     records.Bands,
			Metrics:   aggregate.MapMetrics,
		}
	})
}
