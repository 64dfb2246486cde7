package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"ageofrisk/internal/export"
	"ageofrisk/internal/loader"
)

const defaultSeed = int64(20240611)

// respellings are alternative header spellings every cleaner must accept.
var respellings = map[string]string{
	"geo":         "Country",
	"time_period": "Year",
	"obs_value":   "OBS VALUE",
	"age":         "Age Group",
	"quant_inc":   "Income Quintile",
	"icd10":       "ICD10",
	"sex":         "Sex",
}

type shuffled struct {
	header    []string
	rows      [][]string
	malformed int
	renamed   map[string]string
}

func main() {
	inPath := flag.String("input", "", "Source CSV path")
	outPath := flag.String("output", "", "Output CSV path")
	seed := flag.Int64("seed", defaultSeed, "Deterministic shuffle seed")
	sampleRows := flag.Int("sample-rows", 0, "If > 0, keep only this many rows after shuffling")
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "missing -input or -output")
		os.Exit(2)
	}

	raw, err := loader.Load(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load csv error: %v\n", err)
		os.Exit(1)
	}
	out := shuffle(raw, *seed, *sampleRows)
	if err := writeFile(*outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write csv error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Input:  %s\n", *inPath)
	fmt.Printf("Output: %s\n", *outPath)
	fmt.Printf("Seed:   %d\n", *seed)
	fmt.Printf("Rows:   %d (malformed skipped: %d)\n", len(out.rows), out.malformed)
	fmt.Printf("Cols:   %d\n", len(out.header))
	fmt.Println("Renamed columns:")
	for _, h := range raw.Headers {
		if n, ok := out.renamed[h]; ok {
			fmt.Printf("  %s -> %s\n", h, n)
		}
	}
}

// shuffle permutes columns and rows of a source table and respells known
// headers. Cleaning the result must give the same canonical table as the
// input unless the input has duplicate keys, whose winner depends on order.
func shuffle(raw *loader.RawTable, seed int64, sampleRows int) shuffled {
	rng := rand.New(rand.NewSource(seed))
	cols := append([]string(nil), raw.Headers...)
	rng.Shuffle(len(cols), func(i, j int) { cols[i], cols[j] = cols[j], cols[i] })

	rows := append([]map[string]string(nil), raw.Rows...)
	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	if sampleRows > 0 && sampleRows < len(rows) {
		rows = rows[:sampleRows]
	}

	out := shuffled{malformed: len(raw.Malformed), renamed: map[string]string{}}
	for _, c := range cols {
		name := c
		if n, ok := respellings[strings.ToLower(c)]; ok {
			name = n
			out.renamed[c] = n
		}
		out.header = append(out.header, name)
	}
	for _, r := range rows {
		rec := make([]string, len(cols))
		for i, c := range cols {
			rec[i] = r[c]
		}
		out.rows = append(out.rows, rec)
	}
	return out
}

func writeFile(path string, s shuffled) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return export.WriteRecords(f, s.header, s.rows)
}
