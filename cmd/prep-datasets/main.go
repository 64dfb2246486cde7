package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"ageofrisk/internal/aggregate"
	"ageofrisk/internal/clean"
	"ageofrisk/internal/config"
	"ageofrisk/internal/export"
	"ageofrisk/internal/loader"
	"ageofrisk/internal/metrics"
	"ageofrisk/internal/session"
)

var (
	dataDir     = flag.String("data-dir", "", "Directory holding the three source CSV files (default from AGEOFRISK_DATA_DIR)")
	outputDir   = flag.String("out-dir", "", "Output directory (default from AGEOFRISK_OUT_DIR)")
	sqlitePath  = flag.String("sqlite", "", "SQLite output path (default <out-dir>/ageofrisk_cleaned.sqlite)")
	profilePath = flag.String("profile", "", "Profile markdown output path (default <out-dir>/ageofrisk_profile.md)")
)

type outputs struct {
	dir     string
	sqlite  string
	profile string
}

type summary struct {
	rowsRead int
	tables   map[string]int
	csvs     []string
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatalf("config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *outputDir != "" {
		cfg.OutDir = *outputDir
	}
	out := outputs{dir: cfg.OutDir, sqlite: *sqlitePath, profile: *profilePath}
	if out.sqlite == "" {
		out.sqlite = filepath.Join(out.dir, "ageofrisk_cleaned.sqlite")
	}
	if out.profile == "" {
		out.profile = filepath.Join(out.dir, "ageofrisk_profile.md")
	}

	sum, err := run(context.Background(), cfg, out)
	var missing *loader.MissingFileError
	if errors.As(err, &missing) {
		fatalf("%v (set -data-dir or AGEOFRISK_DATA_DIR)", missing)
	}
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("Rows read: %d\n", sum.rowsRead)
	for _, name := range []string{"screening", "mortality", "exam_income", "income_gap", "screening_bands", "mortality_bands"} {
		fmt.Printf("Rows written (%s): %d\n", name, sum.tables[name])
	}
	for _, p := range sum.csvs {
		fmt.Printf("CSV: %s\n", p)
	}
	fmt.Printf("SQLite: %s\n", out.sqlite)
	fmt.Printf("Profile: %s\n", out.profile)
}

// run cleans the sources and writes every canonical and derived table as a
// CSV, into one SQLite database, and into the profile report.
func run(ctx context.Context, cfg config.Config, out outputs) (summary, error) {
	if err := os.MkdirAll(out.dir, 0o755); err != nil {
		return summary{}, fmt.Errorf("mkdir outputs: %w", err)
	}
	logger := cfg.NewLogger(false)
	sess, err := session.Open(ctx, cfg, logger, metrics.New())
	if err != nil {
		return summary{}, err
	}

	t := sess.Tables
	gaps := aggregate.IncomeGaps(t.ExamIncome)
	scrBands := aggregate.RollupScreening(t.Screening)
	mortBands := aggregate.RollupMortality(t.Mortality)
	for name, r := range map[string]aggregate.Rollup{
		clean.DatasetScreening: scrBands,
		clean.DatasetMortality: mortBands,
	} {
		if groups := groupNames(r); len(groups) > 0 {
			logger.Warn("age groups outside every band", "dataset", name, "age_groups", groups)
		}
		if r.NoAgeBreakdown() {
			logger.Warn("no age breakdown, band rollup is empty", "dataset", name, "total_rows", r.Totals)
		}
	}

	sum := summary{tables: map[string]int{}}
	for _, d := range sess.Diagnostics {
		sum.rowsRead += d.RowsRead
	}

	csvPath := func(name string) string { return filepath.Join(out.dir, name+".csv") }
	writers := []struct {
		name  string
		rows  int
		write func(string) error
	}{
		{clean.DatasetScreening, len(t.Screening), func(p string) error { return export.WriteCSVFile(p, t.Screening) }},
		{clean.DatasetMortality, len(t.Mortality), func(p string) error { return export.WriteCSVFile(p, t.Mortality) }},
		{clean.DatasetExamIncome, len(t.ExamIncome), func(p string) error { return export.WriteCSVFile(p, t.ExamIncome) }},
		{"income_gap", len(gaps), func(p string) error { return export.WriteCSVFile(p, gaps) }},
		{"screening_bands", len(scrBands.Rows), func(p string) error { return export.WriteCSVFile(p, scrBands.Rows) }},
		{"mortality_bands", len(mortBands.Rows), func(p string) error { return export.WriteCSVFile(p, mortBands.Rows) }},
	}
	for _, w := range writers {
		p := csvPath(w.name)
		if err := w.write(p); err != nil {
			return summary{}, fmt.Errorf("write csv %s: %w", w.name, err)
		}
		sum.tables[w.name] = w.rows
		sum.csvs = append(sum.csvs, p)
	}

	datasets := []export.Dataset{
		export.NewDataset(clean.DatasetScreening, t.Screening),
		export.NewDataset(clean.DatasetMortality, t.Mortality),
		export.NewDataset(clean.DatasetExamIncome, t.ExamIncome),
		export.NewDataset("income_gap", gaps),
		export.NewDataset("screening_bands", scrBands.Rows),
		export.NewDataset("mortality_bands", mortBands.Rows),
	}
	if err := export.WriteSQLite(ctx, out.sqlite, datasets...); err != nil {
		return summary{}, fmt.Errorf("write sqlite: %w", err)
	}
	if err := os.WriteFile(out.profile, []byte(export.Profile(sess.Diagnostics, datasets...)), 0o644); err != nil {
		return summary{}, fmt.Errorf("write profile: %w", err)
	}
	return sum, nil
}

func groupNames(r aggregate.Rollup) []string {
	out := make([]string, len(r.Unmapped))
	for i, g := range r.Unmapped {
		out[i] = string(g)
	}
	return out
}

func fatalf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
