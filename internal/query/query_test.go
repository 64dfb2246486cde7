package query

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ageofrisk/internal/records"
)

func screening() []records.ScreeningRecord {
	return []records.ScreeningRecord{
		{Country: "DE", Year: 2014, AgeGroup: "50-69", Rate: 50},
		{Country: "DE", Year: 2018, AgeGroup: "50-69", Rate: 52},
		{Country: "FR", Year: 2015, AgeGroup: "50-69", Rate: 62},
		{Country: "FR", Year: 2015, AgeGroup: "45-49", Rate: 12},
		{Country: "IT", Year: 2020, AgeGroup: records.AgeTotal, Rate: 44},
	}
}

func TestFilterByCountryAndYear(t *testing.T) {
	s := Filter(screening(), Params{Countries: []string{"fr", "DE"}, From: 2015, To: 2018})
	require.Nil(t, s.Warning)
	require.Len(t, s.Rows, 3)
	assert.Equal(t, 2018, s.Rows[0].Year)
	assert.Equal(t, "FR", s.Rows[1].Country)
}

func TestFilterEmptySelectionMeansAllCountries(t *testing.T) {
	rows := screening()
	s := Filter(rows, Params{From: 2015, To: 2020})
	assert.Len(t, s.Rows, 4)

	all := Filter(rows, AllYears())
	assert.Equal(t, rows, all.Rows)
}

func TestFilterIsIdempotent(t *testing.T) {
	p := Params{Countries: []string{"FR", "IT"}, From: 2010, To: 2020, Band: records.BandUnder50}
	once := Filter(screening(), p)
	twice := Filter(once.Rows, p)
	assert.Equal(t, once, twice)
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	rows := screening()
	before := append([]records.ScreeningRecord(nil), rows...)
	s := Filter(rows, Params{Countries: []string{"DE"}, From: 2000, To: 2030})
	require.Len(t, s.Rows, 2)
	s.Rows[0].Rate = -1
	assert.Equal(t, before, rows)
}

func TestFilterBand(t *testing.T) {
	s := Filter(screening(), Params{From: 2000, To: 2030, Band: records.Band50To69})
	assert.Len(t, s.Rows, 3)

	gaps := []records.IncomeGap{{Country: "DE", Year: 2019, AgeGroup: records.AgeGroup(records.BandUnder50), Gap: 5}}
	g := Filter(gaps, Params{From: 2019, To: 2019, Band: records.BandUnder50})
	assert.Len(t, g.Rows, 1)
}

func TestFilterEmptyResultWarns(t *testing.T) {
	s := Filter(screening(), Params{Countries: []string{"SE"}, From: 2015, To: 2016})
	assert.True(t, s.Empty())
	require.NotNil(t, s.Warning)
	assert.Equal(t, "no data for SE, 2015 to 2016", s.Warning.Error())

	var none []records.MortalityRecord
	m := Filter(none, AllYears())
	require.NotNil(t, m.Warning)
	assert.Equal(t, "no data for all countries, all years", m.Warning.Error())
}

func TestYearBoundsAndCountries(t *testing.T) {
	keys := Keys(screening())
	lo, hi, ok := YearBounds(keys, nil)
	require.True(t, ok)
	assert.Equal(t, 2014, lo)
	assert.Equal(t, 2020, hi)

	_, _, ok = YearBounds()
	assert.False(t, ok)

	assert.Equal(t, []string{"DE", "FR", "IT"}, Countries(keys))
	assert.Equal(t, []string{"DE", "FR"}, DefaultCountries(2, keys))
}

func TestParseParams(t *testing.T) {
	v := url.Values{"countries": {"fr,de", "FR"}, "from": {"2010"}, "to": {"2020"}, "band": {"under-50"}}
	p, err := ParseParams(v)
	require.NoError(t, err)
	assert.Equal(t, Params{Countries: []string{"DE", "FR"}, From: 2010, To: 2020, Band: records.BandUnder50}, p)

	p, err = ParseParams(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, AllYears().Normalize(), p)

	for _, bad := range []url.Values{
		{"from": {"x"}},
		{"from": {"2020"}, "to": {"2010"}},
		{"band": {"70+"}},
	} {
		_, err := ParseParams(bad)
		assert.True(t, errors.Is(err, ErrInvalidParams), bad)
	}
}

func TestCacheKeyIgnoresSelectionOrder(t *testing.T) {
	a := Params{Countries: []string{"FR", "de"}, From: 1, To: 2}
	b := Params{Countries: []string{"DE", "FR", "FR"}, From: 1, To: 2}
	assert.Equal(t, a.CacheKey(), b.CacheKey())
}
