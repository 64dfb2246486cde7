package records

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AgeGroup is a canonical age label: "total", "under-N", "N+" or "A-B".
type AgeGroup string

const AgeTotal AgeGroup = "total"

var (
	reAgeRange = regexp.MustCompile(`^Y?(\d{1,3})-(\d{1,3})$`)
	reAgeLT    = regexp.MustCompile(`^(?:Y_LT|UNDER-?)(\d{1,3})$`)
	reAgeGE    = regexp.MustCompile(`^(?:Y_GE(\d{1,3})|(\d{1,3})\+)$`)
	reAgeGELT  = regexp.MustCompile(`^Y_GE(\d{1,3})_LT(\d{1,3})$`)
)

// ParseAgeGroup normalizes a source age code. An empty code means the source
// has no age breakdown and maps to AgeTotal.
func ParseAgeGroup(code string) (AgeGroup, error) {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "–", "-")
	switch s {
	case "", "TOTAL", "Y_TOTAL", "ALL":
		return AgeTotal, nil
	}
	if m := reAgeGELT.FindStringSubmatch(s); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if hi <= lo {
			return "", fmt.Errorf("age code %q: empty range", code)
		}
		return AgeGroup(fmt.Sprintf("%d-%d", lo, hi-1)), nil
	}
	if m := reAgeLT.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return AgeGroup(fmt.Sprintf("under-%d", n)), nil
	}
	if m := reAgeGE.FindStringSubmatch(s); m != nil {
		n := m[1]
		if n == "" {
			n = m[2]
		}
		v, _ := strconv.Atoi(n)
		return AgeGroup(fmt.Sprintf("%d+", v)), nil
	}
	if m := reAgeRange.FindStringSubmatch(s); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if hi < lo {
			return "", fmt.Errorf("age code %q: inverted range", code)
		}
		return AgeGroup(fmt.Sprintf("%d-%d", lo, hi)), nil
	}
	return "", fmt.Errorf("unknown age code %q", code)
}

// Band is a coarse age bucket used to align sources with different age
// granularity.
type Band string

const (
	BandUnder50 Band = "under-50"
	Band50To69  Band = "50-69"
)

var Bands = []Band{BandUnder50, Band50To69}

// bandTable is the fixed age group to band mapping. Groups straddling a band
// boundary (45-54, 65-74, under-65) and "total" are deliberately absent.
var bandTable = map[AgeGroup]Band{
	"under-15": BandUnder50, "under-25": BandUnder50, "under-35": BandUnder50,
	"under-45": BandUnder50, "under-50": BandUnder50,
	"0-4": BandUnder50, "5-9": BandUnder50, "5-14": BandUnder50, "10-14": BandUnder50,
	"15-19": BandUnder50, "15-24": BandUnder50, "16-24": BandUnder50, "16-49": BandUnder50,
	"20-24": BandUnder50, "25-29": BandUnder50, "25-34": BandUnder50, "30-34": BandUnder50,
	"30-39": BandUnder50, "35-39": BandUnder50, "35-44": BandUnder50, "40-44": BandUnder50,
	"40-49": BandUnder50, "45-49": BandUnder50,

	"50-54": Band50To69, "50-59": Band50To69, "50-64": Band50To69, "50-69": Band50To69,
	"55-59": Band50To69, "55-64": Band50To69, "60-64": Band50To69, "60-69": Band50To69,
	"65-69": Band50To69,
}

// BandOf reports the band of a canonical age group.
func BandOf(g AgeGroup) (Band, bool) {
	b, ok := bandTable[g]
	return b, ok
}

// ParseBand accepts the band labels plus the "50–69" spelling used in page copy.
func ParseBand(s string) (Band, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "–", "-")) {
	case "under-50", "under50", "lt50", "u50":
		return BandUnder50, nil
	case "50-69", "50to69":
		return Band50To69, nil
	}
	return "", fmt.Errorf("unknown age band %q", s)
}

// Quintile is an income quintile, Q1 (lowest) to Q5 (highest).
type Quintile string

const (
	Q1 Quintile = "Q1"
	Q2 Quintile = "Q2"
	Q3 Quintile = "Q3"
	Q4 Quintile = "Q4"
	Q5 Quintile = "Q5"
)

var (
	reQuintileCode = regexp.MustCompile(`^QU?([1-5])$`)
	reQuintileWord = []struct {
		re *regexp.Regexp
		q  Quintile
	}{
		{regexp.MustCompile(`\b(LOWEST|FIRST|BOTTOM)\b`), Q1},
		{regexp.MustCompile(`\bSECOND\b`), Q2},
		{regexp.MustCompile(`\bTHIRD\b`), Q3},
		{regexp.MustCompile(`\bFOURTH\b`), Q4},
		{regexp.MustCompile(`\b(HIGHEST|FIFTH|TOP)\b`), Q5},
	}
)

// ParseQuintile canonicalizes QU1..QU5, Q1..Q5, bare digits and verbose
// labels. It returns false for anything else, including the TOTAL aggregate.
func ParseQuintile(s string) (Quintile, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return "", false
	}
	if m := reQuintileCode.FindStringSubmatch(v); m != nil {
		return Quintile("Q" + m[1]), true
	}
	if len(v) == 1 && v[0] >= '1' && v[0] <= '5' {
		return Quintile("Q" + v), true
	}
	for _, w := range reQuintileWord {
		if w.re.MatchString(v) {
			return w.q, true
		}
	}
	return "", false
}
