package records

// Key identifies a row for filtering: every canonical and derived table is
// addressed by country, year and age group.
type Key struct {
	Country  string
	Year     int
	AgeGroup AgeGroup
}

// Column describes one export column and its SQLite storage class.
type Column struct {
	Name    string
	SQLType string
}

type ScreeningRecord struct {
	Country  string   `json:"country"`
	Year     int      `json:"year"`
	AgeGroup AgeGroup `json:"age_band"`
	Unit     string   `json:"unit"`
	Source   string   `json:"source"`
	Rate     float64  `json:"participation_rate"`
}

func (r ScreeningRecord) Key() Key { return Key{r.Country, r.Year, r.AgeGroup} }

func (ScreeningRecord) Columns() []Column {
	return []Column{
		{"country", "TEXT"}, {"year", "INTEGER"}, {"age_band", "TEXT"},
		{"unit", "TEXT"}, {"source", "TEXT"}, {"participation_rate", "REAL"},
	}
}

func (r ScreeningRecord) Values() []any {
	return []any{r.Country, r.Year, string(r.AgeGroup), r.Unit, r.Source, r.Rate}
}

type MortalityRecord struct {
	Country  string   `json:"country"`
	Year     int      `json:"year"`
	AgeGroup AgeGroup `json:"age_band"`
	Sex      string   `json:"sex"`
	Unit     string   `json:"unit"`
	ICD10    string   `json:"icd10"`
	Rate     float64  `json:"rate_per_100k"`
}

func (r MortalityRecord) Key() Key { return Key{r.Country, r.Year, r.AgeGroup} }

func (MortalityRecord) Columns() []Column {
	return []Column{
		{"country", "TEXT"}, {"year", "INTEGER"}, {"age_band", "TEXT"}, {"sex", "TEXT"},
		{"unit", "TEXT"}, {"icd10", "TEXT"}, {"rate_per_100k", "REAL"},
	}
}

func (r MortalityRecord) Values() []any {
	return []any{r.Country, r.Year, string(r.AgeGroup), r.Sex, r.Unit, r.ICD10, r.Rate}
}

type ExamIncomeRecord struct {
	Country  string   `json:"country"`
	Year     int      `json:"year"`
	AgeGroup AgeGroup `json:"age_band"`
	Quintile Quintile `json:"income_quintile"`
	Duration string   `json:"duration"`
	Unit     string   `json:"unit"`
	Rate     float64  `json:"exam_rate"`
}

func (r ExamIncomeRecord) Key() Key { return Key{r.Country, r.Year, r.AgeGroup} }

func (ExamIncomeRecord) Columns() []Column {
	return []Column{
		{"country", "TEXT"}, {"year", "INTEGER"}, {"age_band", "TEXT"}, {"income_quintile", "TEXT"},
		{"duration", "TEXT"}, {"unit", "TEXT"}, {"exam_rate", "REAL"},
	}
}

func (r ExamIncomeRecord) Values() []any {
	return []any{r.Country, r.Year, string(r.AgeGroup), string(r.Quintile), r.Duration, r.Unit, r.Rate}
}

// IncomeGap is derived from ExamIncomeRecord rows and is never loaded from disk.
type IncomeGap struct {
	Country  string   `json:"country"`
	Year     int      `json:"year"`
	AgeGroup AgeGroup `json:"age_band"`
	Q1       float64  `json:"q1"`
	Q5       float64  `json:"q5"`
	Gap      float64  `json:"gap"`
}

func (r IncomeGap) Key() Key { return Key{r.Country, r.Year, r.AgeGroup} }

func (IncomeGap) Columns() []Column {
	return []Column{
		{"country", "TEXT"}, {"year", "INTEGER"}, {"age_band", "TEXT"},
		{"q1", "REAL"}, {"q5", "REAL"}, {"gap", "REAL"},
	}
}

func (r IncomeGap) Values() []any {
	return []any{r.Country, r.Year, string(r.AgeGroup), r.Q1, r.Q5, r.Gap}
}

// BandValue is one (country, year, band) cell of a band rollup. N is the
// number of source rows reduced into Value.
type BandValue struct {
	Country string  `json:"country"`
	Year    int     `json:"year"`
	Band    Band    `json:"band"`
	Value   float64 `json:"value"`
	N       int     `json:"n"`
}

func (r BandValue) Key() Key { return Key{r.Country, r.Year, AgeGroup(r.Band)} }

func (BandValue) Columns() []Column {
	return []Column{
		{"country", "TEXT"}, {"year", "INTEGER"}, {"band", "TEXT"},
		{"value", "REAL"}, {"n", "INTEGER"},
	}
}

func (r BandValue) Values() []any {
	return []any{r.Country, r.Year, string(r.Band), r.Value, r.N}
}
