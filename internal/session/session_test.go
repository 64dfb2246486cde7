package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ageofrisk/internal/aggregate"
	"ageofrisk/internal/clean"
	"ageofrisk/internal/config"
	"ageofrisk/internal/loader"
	"ageofrisk/internal/metrics"
	"ageofrisk/internal/query"
	"ageofrisk/internal/records"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixture() Tables {
	return Tables{
		Screening: []records.ScreeningRecord{
			{Country: "DE", Year: 2014, AgeGroup: "50-69", Rate: 50},
			{Country: "DE", Year: 2018, AgeGroup: "50-69", Rate: 54},
			{Country: "FR", Year: 2015, AgeGroup: "50-69", Rate: 62},
			{Country: "FR", Year: 2019, AgeGroup: "50-69", Rate: 60},
			{Country: "FR", Year: 2019, AgeGroup: "45-49", Rate: 11},
		},
		Mortality: []records.MortalityRecord{
			{Country: "DE", Year: 2018, AgeGroup: "45-49", Rate: 10},
			{Country: "DE", Year: 2018, AgeGroup: "40-44", Rate: 6},
			{Country: "DE", Year: 2018, AgeGroup: records.AgeTotal, Rate: 32},
			{Country: "FR", Year: 2019, AgeGroup: "45-49", Rate: 9},
			{Country: "FR", Year: 2019, AgeGroup: records.AgeTotal, Rate: 30},
		},
		ExamIncome: []records.ExamIncomeRecord{
			{Country: "DE", Year: 2018, AgeGroup: "16-49", Quintile: records.Q1, Rate: 20},
			{Country: "DE", Year: 2018, AgeGroup: "16-49", Quintile: records.Q5, Rate: 55},
			{Country: "FR", Year: 2018, AgeGroup: "16-49", Quintile: records.Q1, Rate: 30},
		},
	}
}

func newSession(t *testing.T) (*Session, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	s, err := New(fixture(), 64, WithLogger(quietLogger()), WithMetrics(m), WithVersion("test"))
	require.NoError(t, err)
	return s, m
}

func TestMemoServesRepeatQueriesFromCache(t *testing.T) {
	s, m := newSession(t)
	p := query.Params{Countries: []string{"fr"}, From: 2015, To: 2019}

	first := s.Screening(p)
	require.Len(t, first.Rows, 3)
	misses := testutil.ToFloat64(m.CacheMisses)

	second := s.Screening(query.Params{Countries: []string{"FR", "FR"}, From: 2015, To: 2019})
	assert.Equal(t, first, second)
	assert.Equal(t, misses, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
}

func TestConcurrentQueriesComputeOnce(t *testing.T) {
	s, m := newSession(t)
	p := query.AllYears()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, s.Mortality(p).Rows, 5)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
}

func TestIncomeGapsOnlyWithBothQuintiles(t *testing.T) {
	s, _ := newSession(t)

	gaps := s.IncomeGaps(query.AllYears())
	require.Len(t, gaps.Rows, 1)
	assert.Equal(t, "DE", gaps.Rows[0].Country)
	assert.Equal(t, 35.0, gaps.Rows[0].Gap)

	p := query.AllYears()
	p.Band = records.BandUnder50
	band := s.IncomeGaps(p)
	require.Len(t, band.Rows, 1)
	assert.Equal(t, records.AgeGroup(records.BandUnder50), band.Rows[0].AgeGroup)

	none := s.IncomeGaps(query.Params{Countries: []string{"FR"}, From: 2018, To: 2018})
	assert.True(t, none.Empty())
	require.NotNil(t, none.Warning)
}

func TestBands(t *testing.T) {
	s, _ := newSession(t)

	mort, err := s.Bands(clean.DatasetMortality, query.Params{Countries: []string{"DE"}, From: 2018, To: 2018})
	require.NoError(t, err)
	require.Len(t, mort.Rows, 1)
	assert.Equal(t, records.BandUnder50, mort.Rows[0].Band)
	assert.Equal(t, 8.0, mort.Rows[0].Value)

	_, err = s.Bands("weather", query.AllYears())
	assert.True(t, errors.Is(err, query.ErrInvalidParams))
}

func TestKPIs(t *testing.T) {
	s, _ := newSession(t)
	kpis := s.KPIs(query.AllYears())
	require.Len(t, kpis, 3)

	scr := kpis[0]
	assert.Equal(t, aggregate.MetricScreening, scr.Metric)
	assert.True(t, scr.Available)
	assert.Equal(t, 57.0, scr.Value)
	assert.Equal(t, 56.0, scr.Baseline)
	assert.Equal(t, "has increased by 1.0", scr.Trend)

	gap := kpis[2]
	assert.Equal(t, aggregate.MetricIncomeGap, gap.Metric)
	assert.Equal(t, 35.0, gap.Value)
}

func TestBurdenShiftAndMap(t *testing.T) {
	s, _ := newSession(t)

	shift := s.BurdenShift(query.AllYears())
	require.Len(t, shift, 2)
	assert.Equal(t, 25.0, shift[0].Share)

	m, err := s.Map(aggregate.MetricScreening, query.Params{Countries: []string{"DE"}, From: 2000, To: 2030})
	require.NoError(t, err)
	require.Len(t, m.Rows, 2)
	assert.Equal(t, "DEU", m.Rows[0].ISO3)

	_, err = s.Map("rainfall", query.AllYears())
	assert.True(t, errors.Is(err, query.ErrInvalidParams))
}

func TestFilters(t *testing.T) {
	s, _ := newSession(t)
	f := s.Filters()
	assert.Equal(t, []string{"DE", "FR"}, f.Countries)
	assert.Equal(t, 2014, f.YearMin)
	assert.Equal(t, 2019, f.YearMax)
	assert.Equal(t, records.Bands, f.Bands)
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scr.csv", "unit,source,icd10,age,geo,TIME_PERIOD,OBS_VALUE\n"+
		"PC,PRG,C50,Y50-69,FR,2015,62.0\n"+
		"PC,PRG,C50,Y50-69,FR,2015,65.0\n")
	writeFile(t, dir, "mort.csv", "unit,sex,age,icd10,geo,TIME_PERIOD,OBS_VALUE\n"+
		"RT,F,TOTAL,C50,FR,2015,33.0\n")
	writeFile(t, dir, "exam.csv", "unit,duration,quant_inc,age,geo,TIME_PERIOD,OBS_VALUE\n"+
		"PC,Y_LT1,QU1,Y_GE16_LT50,DE,2019,20.0\n")

	cfg := config.Config{
		DataDir: dir, ScreeningFile: "scr.csv", MortalityFile: "mort.csv", ExamIncomeFile: "exam.csv",
		Locale: "en",
	}
	m := metrics.New()
	s, err := Open(context.Background(), cfg, quietLogger(), m)
	require.NoError(t, err)
	require.Len(t, s.Tables.Screening, 1)
	assert.Equal(t, 65.0, s.Tables.Screening[0].Rate)
	require.Len(t, s.Diagnostics, 3)
	assert.Equal(t, 1, s.Diagnostics[0].Duplicates)
	assert.Len(t, s.Version, 16)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues(clean.DatasetScreening, "duplicates")))

	cfg.MortalityFile = "absent.csv"
	_, err = Open(context.Background(), cfg, quietLogger(), nil)
	var missing *loader.MissingFileError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, filepath.Join(dir, "absent.csv"), missing.Path)
}

func TestOpenScreeningWithoutAgeColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scr.csv", "unit,source,icd10,geo,TIME_PERIOD,OBS_VALUE\n"+
		"PC,PRG,C50,FR,2015,60.0\n"+
		"PC,PRG,C50,FR,2019,64.0\n"+
		"PC,PRG,C50,DE,2018,50.0\n")
	writeFile(t, dir, "mort.csv", "unit,sex,age,icd10,geo,TIME_PERIOD,OBS_VALUE\n"+
		"RT,F,TOTAL,C50,FR,2015,33.0\n")
	writeFile(t, dir, "exam.csv", "unit,duration,quant_inc,age,geo,TIME_PERIOD,OBS_VALUE\n"+
		"PC,Y_LT1,QU1,Y_GE16_LT50,DE,2019,20.0\n")
	cfg := config.Config{
		DataDir: dir, ScreeningFile: "scr.csv", MortalityFile: "mort.csv", ExamIncomeFile: "exam.csv",
		Locale: "en",
	}

	var logs bytes.Buffer
	s, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(&logs, nil)), nil)
	require.NoError(t, err)
	require.Len(t, s.Tables.Screening, 3)

	kpi := s.KPIs(query.AllYears())[0]
	assert.Equal(t, aggregate.MetricScreening, kpi.Metric)
	assert.True(t, kpi.Available)
	assert.Equal(t, 2, kpi.Countries)
	assert.Equal(t, 57.0, kpi.Value)
	assert.Equal(t, 55.0, kpi.Baseline)

	bands, err := s.Bands(clean.DatasetScreening, query.AllYears())
	require.NoError(t, err)
	assert.Empty(t, bands.Rows)
	assert.NotNil(t, bands.Warning)
	assert.Contains(t, logs.String(), "no age breakdown, band rollup is empty")
	assert.Contains(t, logs.String(), "total_rows=3")
}
