package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"ageofrisk/internal/loader"
)

// keyColumns are the export columns that address a row, in key order. A
// table uses the subset present in its header.
var keyColumns = []string{"country", "year", "age_band", "band", "income_quintile", "duration"}

var reNumeric = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`)

const maxMismatchSamples = 20

type rowAlignment struct {
	Complete          bool     `json:"complete"`
	KeyColumns        []string `json:"key_columns"`
	MatchedRows       int      `json:"matched_rows"`
	ReferenceRows     int      `json:"reference_rows"`
	CandidateRows     int      `json:"candidate_rows"`
	CoverageReference float64  `json:"coverage_reference"`
	CoverageCandidate float64  `json:"coverage_candidate"`
	OnlyInReference   []string `json:"only_in_reference,omitempty"`
	OnlyInCandidate   []string `json:"only_in_candidate,omitempty"`
	DuplicateKeys     int      `json:"duplicate_keys,omitempty"`
	pairs             [][2]int
}

type columnScore struct {
	Column     string  `json:"column"`
	Present    bool    `json:"present_in_candidate"`
	Similarity float64 `json:"similarity"`
	Mismatches int     `json:"mismatches"`
}

type mismatch struct {
	Key       string `json:"key"`
	Column    string `json:"column"`
	Reference string `json:"reference"`
	Candidate string `json:"candidate"`
}

type report struct {
	Status                   string        `json:"status"`
	Reference                string        `json:"reference"`
	Candidate                string        `json:"candidate"`
	Tolerance                float64       `json:"tolerance"`
	RowAlignment             rowAlignment  `json:"row_alignment"`
	Columns                  []columnScore `json:"columns"`
	DatasetSimilarity        float64       `json:"dataset_similarity"`
	OverallScoreWithCoverage float64       `json:"overall_score_with_coverage"`
	Mismatches               []mismatch    `json:"mismatches,omitempty"`
}

func main() {
	reference := flag.String("reference", "", "Reference cleaned CSV (ground truth)")
	candidate := flag.String("candidate", "", "Candidate cleaned CSV to evaluate")
	tolerance := flag.Float64("tolerance", 1e-9, "Absolute tolerance for numeric cells")
	outputJSON := flag.String("output-json", "", "Optional path to write JSON report")
	flag.Parse()

	if *reference == "" || *candidate == "" {
		fmt.Fprintln(os.Stderr, "missing -reference or -candidate")
		os.Exit(2)
	}

	rep, err := compareExports(*reference, *candidate, *tolerance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compare error: %v\n", err)
		os.Exit(1)
	}
	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON != "" {
		if err := os.MkdirAll(filepath.Dir(*outputJSON), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outputJSON, append(payload, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write report error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote JSON report: %s\n", *outputJSON)
		fmt.Printf("Status: %s\n", rep.Status)
		fmt.Printf("Dataset similarity: %.12f\n", rep.DatasetSimilarity)
		fmt.Printf("Coverage (reference/candidate): %.12f / %.12f\n", rep.RowAlignment.CoverageReference, rep.RowAlignment.CoverageCandidate)
		fmt.Printf("Overall score with coverage: %.12f\n", rep.OverallScoreWithCoverage)
		return
	}
	fmt.Println(string(payload))
}

func compareExports(referenceCSV, candidateCSV string, tolerance float64) (report, error) {
	ref, err := loader.Load(referenceCSV)
	if err != nil {
		return report{}, err
	}
	if len(ref.Malformed) > 0 {
		return report{}, ref.Malformed[0]
	}
	cand, err := loader.Load(candidateCSV)
	if err != nil {
		return report{}, err
	}
	if len(cand.Malformed) > 0 {
		return report{}, cand.Malformed[0]
	}

	rep := report{Reference: ref.Path, Candidate: cand.Path, Tolerance: tolerance}
	keys := sharedKeyColumns(ref.Headers, cand.Headers)
	if len(keys) == 0 {
		rep.Status = "no_key_columns"
		return rep, nil
	}
	rep.RowAlignment = alignRows(ref, cand, keys)

	total := 0.0
	for _, col := range ref.Headers {
		sc := columnScore{Column: col, Present: contains(cand.Headers, col)}
		if sc.Present && len(rep.RowAlignment.pairs) > 0 {
			same := 0
			for _, p := range rep.RowAlignment.pairs {
				rv, cv := ref.Rows[p[0]][col], cand.Rows[p[1]][col]
				if valuesEqual(rv, cv, tolerance) {
					same++
					continue
				}
				sc.Mismatches++
				if len(rep.Mismatches) < maxMismatchSamples {
					rep.Mismatches = append(rep.Mismatches, mismatch{
						Key: rowKey(ref.Rows[p[0]], keys), Column: col, Reference: rv, Candidate: cv,
					})
				}
			}
			sc.Similarity = safeDiv(float64(same), float64(len(rep.RowAlignment.pairs)))
		}
		total += sc.Similarity
		rep.Columns = append(rep.Columns, sc)
	}
	rep.DatasetSimilarity = safeDiv(total, float64(len(ref.Headers)))
	rep.OverallScoreWithCoverage = rep.DatasetSimilarity * rep.RowAlignment.CoverageReference

	switch {
	case rep.RowAlignment.Complete && len(rep.Mismatches) == 0:
		rep.Status = "identical"
	case rep.RowAlignment.Complete:
		rep.Status = "values_differ"
	default:
		rep.Status = "partial_key_match"
	}
	return rep, nil
}

func sharedKeyColumns(ref, cand []string) []string {
	var out []string
	for _, k := range keyColumns {
		if contains(ref, k) && contains(cand, k) {
			out = append(out, k)
		}
	}
	return out
}

func rowKey(row map[string]string, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = canonicalScalar(row[k])
	}
	return strings.Join(parts, "|")
}

// alignRows pairs rows by composite key. The first reference row wins a
// duplicated key; cleaned exports never have any.
func alignRows(ref, cand *loader.RawTable, keys []string) rowAlignment {
	refIndex := make(map[string]int, len(ref.Rows))
	dup := 0
	for i, row := range ref.Rows {
		k := rowKey(row, keys)
		if _, exists := refIndex[k]; exists {
			dup++
			continue
		}
		refIndex[k] = i
	}

	a := rowAlignment{KeyColumns: keys, ReferenceRows: len(ref.Rows), CandidateRows: len(cand.Rows)}
	seen := make(map[int]bool, len(cand.Rows))
	for ci, row := range cand.Rows {
		k := rowKey(row, keys)
		ri, ok := refIndex[k]
		if !ok {
			a.OnlyInCandidate = append(a.OnlyInCandidate, k)
			continue
		}
		if seen[ri] {
			dup++
			continue
		}
		seen[ri] = true
		a.pairs = append(a.pairs, [2]int{ri, ci})
	}
	for k, ri := range refIndex {
		if !seen[ri] {
			a.OnlyInReference = append(a.OnlyInReference, k)
		}
	}
	sort.Strings(a.OnlyInReference)
	sort.Slice(a.pairs, func(i, j int) bool { return a.pairs[i][0] < a.pairs[j][0] })

	a.MatchedRows = len(a.pairs)
	a.DuplicateKeys = dup
	a.CoverageReference = safeDiv(float64(a.MatchedRows), float64(len(ref.Rows)))
	a.CoverageCandidate = safeDiv(float64(a.MatchedRows), float64(len(cand.Rows)))
	a.Complete = dup == 0 && a.MatchedRows == len(ref.Rows) && a.MatchedRows == len(cand.Rows)
	return a
}

func valuesEqual(a, b string, tolerance float64) bool {
	ra, aok := parseDecimal(a)
	rb, bok := parseDecimal(b)
	if aok && bok {
		if ra.Cmp(rb) == 0 {
			return true
		}
		fa, _ := ra.Float64()
		fb, _ := rb.Float64()
		return math.Abs(fa-fb) <= tolerance
	}
	return canonicalScalar(a) == canonicalScalar(b)
}

func parseDecimal(v string) (*big.Rat, bool) {
	s := strings.TrimSpace(v)
	if s == "" || !reNumeric.MatchString(s) {
		return nil, false
	}
	r := new(big.Rat)
	if _, ok := r.SetString(s); !ok {
		return nil, false
	}
	return r, true
}

// canonicalScalar makes "65", "65.0" and "065.00" compare equal.
func canonicalScalar(v string) string {
	s := strings.TrimSpace(v)
	if r, ok := parseDecimal(s); ok {
		return r.RatString()
	}
	return s
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
