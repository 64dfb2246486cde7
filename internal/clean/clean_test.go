package clean

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ageofrisk/internal/loader"
	"ageofrisk/internal/records"
)

func parse(t *testing.T, csv string) *loader.RawTable {
	t.Helper()
	tbl, err := loader.Parse("test.csv", strings.NewReader(csv))
	require.NoError(t, err)
	return tbl
}

const screeningHeader = "DATAFLOW,LAST UPDATE,freq,unit,source,icd10,age,geo,TIME_PERIOD,OBS_VALUE,OBS_FLAG,CONF_STATUS\n"

func TestScreeningDuplicateLastSeenWins(t *testing.T) {
	raw := parse(t, screeningHeader+
		"ESTAT:HLTH_PS_SCRE,2024-01-01,A,PC,PRG,C50,Y50-69,FR,2015,62.0,,\n"+
		"ESTAT:HLTH_PS_SCRE,2024-01-01,A,PC,PRG,C50,Y50-69,FR,2015,65.0,,\n")

	rows, d, err := Screening(raw)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, records.ScreeningRecord{
		Country: "FR", Year: 2015, AgeGroup: "50-69", Unit: "PC", Source: "PRG", Rate: 65.0,
	}, rows[0])
	assert.Equal(t, 1, d.Duplicates)
	assert.Equal(t, 1, d.RowsKept)
}

func TestScreeningFiltersAndCoercion(t *testing.T) {
	raw := parse(t, screeningHeader+
		"x,x,A,PC,PRG,C50,Y50-69,DE,2016,55.5,,\n"+ // kept
		"x,x,A,PC,SRV,C50,Y50-69,DE,2016,70.0,,\n"+ // survey source: filtered
		"x,x,A,PC,PRG,C53,Y50-69,DE,2016,40.0,,\n"+ // cervical: filtered
		"x,x,A,PC,PRG,C50,Y50-69,DE,20x6,40.0,,\n"+ // bad year
		"x,x,A,PC,PRG,C50,Y50-69,IT,2016,:,,\n"+ // missing
		"x,x,A,PC,PRG,C50,Y50-69,IT,2017,130,,\n"+ // out of range
		"x,x,A,PC,PRG,C50,adult,IT,2018,30,,\n"+ // unknown age code
		"x,x,A,PC,prg,c50,,AT,2014,44.25,,\n") // no age: total

	rows, d, err := Screening(raw)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "AT", rows[0].Country)
	assert.Equal(t, records.AgeTotal, rows[0].AgeGroup)
	assert.Equal(t, "DE", rows[1].Country)

	assert.Equal(t, 8, d.RowsRead)
	assert.Equal(t, 2, d.Filtered)
	assert.Equal(t, 2, d.CoercionFailed)
	assert.Equal(t, 1, d.MissingValue)
	assert.Equal(t, 1, d.OutOfRange)
	assert.Equal(t, 2, d.RowsKept)
	require.Len(t, d.Errors(), 4)

	var ce *CoercionError
	require.True(t, errors.As(d.Errors()[0], &ce))
	assert.Equal(t, "year", ce.Column)
	assert.Equal(t, 4, ce.Row)
}

func TestScreeningMissingColumn(t *testing.T) {
	raw := parse(t, "geo,TIME_PERIOD,OBS_VALUE\nFR,2015,62\n")
	_, _, err := Screening(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "icd10")
}

func TestMortalityKeepsFemaleC50(t *testing.T) {
	raw := parse(t, "DATAFLOW,freq,unit,sex,age,icd10,geo,TIME_PERIOD,OBS_VALUE,OBS_FLAG\n"+
		"x,A,RT,F,Y45-49,C50,FR,2015,12.3,\n"+
		"x,A,RT,M,Y45-49,C50,FR,2015,0.2,\n"+
		"x,A,RT,T,Y45-49,C50,FR,2015,6.4,\n"+
		"x,A,RT,F,TOTAL,C50,FR,2015,33.0,\n"+
		"x,A,RT,F,TOTAL,C34,FR,2015,20.0,\n"+
		"x,A,RT,F,TOTAL,C50,BE,2014,-1,\n")

	rows, d, err := Mortality(raw)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, records.AgeGroup("45-49"), rows[0].AgeGroup)
	assert.Equal(t, records.AgeTotal, rows[1].AgeGroup)
	for _, r := range rows {
		assert.Equal(t, SexFemale, r.Sex)
		assert.Equal(t, ICD10Breast, r.ICD10)
	}
	assert.Equal(t, 3, d.Filtered)
	assert.Equal(t, 1, d.OutOfRange)
}

func TestMortalityUnitsSplitKeysBeforeDedupe(t *testing.T) {
	raw := parse(t, "unit,sex,age,icd10,geo,TIME_PERIOD,OBS_VALUE\n"+
		"RT,F,TOTAL,C50,FR,2015,33.0\n"+
		"NR,F,TOTAL,C50,FR,2015,12000\n")

	rows, d, err := Mortality(raw)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 12000.0, rows[0].Rate)
	assert.Equal(t, 1, d.Duplicates)

	rows, d, err = Mortality(raw, WithUnits("RT"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 33.0, rows[0].Rate)
	assert.Zero(t, d.Duplicates)
	assert.Equal(t, 1, d.Filtered)

	unitless := parse(t, "sex,age,icd10,geo,TIME_PERIOD,OBS_VALUE\n"+
		"F,TOTAL,C50,FR,2015,33.0\n")
	rows, _, err = Mortality(unitless, WithUnits("RT"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExamIncomeCanonicalQuintiles(t *testing.T) {
	raw := parse(t, "DATAFLOW,freq,unit,duration,quant_inc,age,geo,TIME_PERIOD,OBS_VALUE\n"+
		"x,A,PC,Y_LT1,QU1,Y_GE16_LT50,DE,2019,20.0\n"+
		"x,A,PC,Y_LT1,QU5,Y_GE16_LT50,DE,2019,55.0\n"+
		"x,A,PC,Y_LT1,TOTAL,Y_GE16_LT50,DE,2019,40.0\n"+
		"x,A,PC,Y1-2,QU5,Y_GE16_LT50,DE,2019,10.0\n"+
		"x,A,PC,Y_LT1,QU3,Y_GE16_LT50,DE,2019,\n")

	rows, d, err := ExamIncome(raw)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, records.Q1, rows[0].Quintile)
	assert.Equal(t, records.AgeGroup("16-49"), rows[0].AgeGroup)
	assert.Equal(t, 1, d.Filtered)
	assert.Equal(t, 1, d.MissingValue)

	durations, _, err := ExamIncome(raw, WithDurations("Y_LT1"))
	require.NoError(t, err)
	require.Len(t, durations, 2)
}

func TestCleanedRowsSatisfyInvariants(t *testing.T) {
	raw := parse(t, screeningHeader+
		"x,x,A,PC,PRG,C50,Y50-69,FR,2015,0,,\n"+
		"x,x,A,PC,PRG,C50,Y50-69,FR,2016,100,,\n"+
		"x,x,A,PC,PRG,C50,Y50-69,FR,2017,100.01,,\n"+
		"x,x,A,PC,PRG,C50,Y50-69,FR,2018,-0.5,,\n"+
		"x,x,A,PC,PRG,C50,Y_LT50,FR,2018,NaN,,\n")
	rows, _, err := Screening(raw)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.GreaterOrEqual(t, r.Rate, 0.0)
		assert.LessOrEqual(t, r.Rate, 100.0)
		_, err := records.ParseAgeGroup(string(r.AgeGroup))
		assert.NoError(t, err)
	}
}

func TestMalformedRowsCountedInDiagnostics(t *testing.T) {
	raw := parse(t, screeningHeader+
		"x,x,A,PC,PRG,C50,Y50-69,FR,2015,62.0,,\n"+
		"x,x,A,PC,PRG\n")
	_, d, err := Screening(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, d.RowsRead)
	assert.Equal(t, 1, d.Malformed)
	assert.Equal(t, 1, d.Dropped()["malformed"])

	var pe *loader.ParseError
	require.True(t, errors.As(d.Errors()[0], &pe))
}
