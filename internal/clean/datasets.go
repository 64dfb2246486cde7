package clean

import (
	"math"
	"strconv"
	"strings"

	"ageofrisk/internal/loader"
	"ageofrisk/internal/records"
)

const (
	// ICD10Breast is the ICD-10 code of malignant neoplasm of breast.
	ICD10Breast = "C50"
	// SourceProgramme marks organized screening programme data.
	SourceProgramme = "PRG"
	SexFemale       = "F"
)

// Dataset names used in diagnostics, metrics labels and output file names.
const (
	DatasetScreening  = "screening"
	DatasetMortality  = "mortality"
	DatasetExamIncome = "exam_income"
)

// Option narrows a cleaner beyond its fixed filters.
type Option func(*options)

type options struct {
	units     map[string]bool
	durations map[string]bool
}

// WithUnits keeps only rows whose unit is one of units. Rows of a source
// without a unit column are kept.
func WithUnits(units ...string) Option {
	return func(o *options) { o.units = upperSet(units) }
}

// WithDurations keeps only exam rows whose time-since-exam code is one of ds.
func WithDurations(ds ...string) Option {
	return func(o *options) { o.durations = upperSet(ds) }
}

func upperSet(vals []string) map[string]bool {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) unitOK(r row) bool {
	u := strings.ToUpper(strings.TrimSpace(r["unit"]))
	return o.units == nil || u == "" || o.units[u]
}

// Screening cleans the organized screening participation table. Only C50
// rows from organized programmes are kept.
func Screening(raw *loader.RawTable, opts ...Option) ([]records.ScreeningRecord, Diagnostics, error) {
	o := applyOptions(opts)
	p := pipeline[records.ScreeningRecord]{
		dataset:  DatasetScreening,
		required: []string{"country", "year", "rate", "icd10", "source"},
		keep: func(r row) bool {
			return upperEq(r["icd10"], ICD10Breast) && upperEq(r["source"], SourceProgramme) && o.unitOK(r)
		},
		build: func(r row, re *rowErr) records.ScreeningRecord {
			return records.ScreeningRecord{
				Country:  re.country(r),
				Year:     re.year(r),
				AgeGroup: re.ageGroup(r),
				Unit:     r["unit"],
				Source:   SourceProgramme,
				Rate:     re.rate(r, 0, 100),
			}
		},
		key: func(s records.ScreeningRecord) string {
			return keyOf(s.Country, strconv.Itoa(s.Year), string(s.AgeGroup))
		},
		less: func(a, b records.ScreeningRecord) bool {
			return compareKey(a.Key(), b.Key()) < 0
		},
	}
	return p.run(raw)
}

// Mortality cleans the causes-of-death table down to female C50 rates.
func Mortality(raw *loader.RawTable, opts ...Option) ([]records.MortalityRecord, Diagnostics, error) {
	o := applyOptions(opts)
	p := pipeline[records.MortalityRecord]{
		dataset:  DatasetMortality,
		required: []string{"country", "year", "rate", "sex", "icd10"},
		keep: func(r row) bool {
			return isFemale(r["sex"]) && upperEq(r["icd10"], ICD10Breast) && o.unitOK(r)
		},
		build: func(r row, re *rowErr) records.MortalityRecord {
			return records.MortalityRecord{
				Country:  re.country(r),
				Year:     re.year(r),
				AgeGroup: re.ageGroup(r),
				Sex:      SexFemale,
				Unit:     r["unit"],
				ICD10:    ICD10Breast,
				Rate:     re.rate(r, 0, math.MaxFloat64),
			}
		},
		key: func(m records.MortalityRecord) string {
			return keyOf(m.Country, strconv.Itoa(m.Year), string(m.AgeGroup))
		},
		less: func(a, b records.MortalityRecord) bool {
			return compareKey(a.Key(), b.Key()) < 0
		},
	}
	return p.run(raw)
}

func isFemale(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "F", "FEMALE", "FEMALES":
		return true
	}
	return false
}

// ExamIncome cleans the self-reported breast X-ray exam table. Rows whose
// income quintile is not Q1..Q5 (the TOTAL aggregate included) are filtered.
func ExamIncome(raw *loader.RawTable, opts ...Option) ([]records.ExamIncomeRecord, Diagnostics, error) {
	o := applyOptions(opts)
	p := pipeline[records.ExamIncomeRecord]{
		dataset:  DatasetExamIncome,
		required: []string{"country", "year", "rate", "income_quintile"},
		keep: func(r row) bool {
			if _, ok := records.ParseQuintile(r["income_quintile"]); !ok {
				return false
			}
			if o.durations != nil && !o.durations[strings.ToUpper(r["duration"])] {
				return false
			}
			return o.unitOK(r)
		},
		build: func(r row, re *rowErr) records.ExamIncomeRecord {
			q, _ := records.ParseQuintile(r["income_quintile"])
			return records.ExamIncomeRecord{
				Country:  re.country(r),
				Year:     re.year(r),
				AgeGroup: re.ageGroup(r),
				Quintile: q,
				Duration: r["duration"],
				Unit:     r["unit"],
				Rate:     re.rate(r, 0, 100),
			}
		},
		key: func(e records.ExamIncomeRecord) string {
			return keyOf(e.Country, strconv.Itoa(e.Year), string(e.AgeGroup), string(e.Quintile), e.Duration)
		},
		less: func(a, b records.ExamIncomeRecord) bool {
			if c := compareKey(a.Key(), b.Key()); c != 0 {
				return c < 0
			}
			if a.Quintile != b.Quintile {
				return a.Quintile < b.Quintile
			}
			return a.Duration < b.Duration
		},
	}
	return p.run(raw)
}
