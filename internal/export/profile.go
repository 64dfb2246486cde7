package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"ageofrisk/internal/aggregate"
	"ageofrisk/internal/clean"
	"ageofrisk/internal/records"
)

const topN = 20

// Profile renders the markdown cleaning report: drop counters per source
// file, then shape, coverage and numeric summaries per written table.
func Profile(diags []clean.Diagnostics, tables ...Dataset) string {
	p := message.NewPrinter(language.English)
	lines := []string{"# Breast cancer age-of-risk datasets: profiling + cleaning report", ""}

	lines = append(lines, "## Cleaning")
	for _, d := range diags {
		lines = append(lines,
			fmt.Sprintf("### `%s`", d.Dataset),
			p.Sprintf("- Source rows read: %d", d.RowsRead),
			p.Sprintf("- Rows kept: %d", d.RowsKept),
		)
		dropped := d.Dropped()
		reasons := make([]string, 0, len(dropped))
		for r := range dropped {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			lines = append(lines, p.Sprintf("- Dropped (%s): %d", r, dropped[r]))
		}
		if len(d.Samples) > 0 {
			lines = append(lines, "", "Sample problems:")
			for _, s := range d.Samples {
				lines = append(lines, "- "+s)
			}
		}
		lines = append(lines, "")
	}

	for _, t := range tables {
		lines = append(lines, tableProfile(p, t)...)
	}
	return strings.Join(lines, "\n")
}

func tableProfile(p *message.Printer, t Dataset) []string {
	col := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		col[c.Name] = i
	}
	lines := []string{
		fmt.Sprintf("## Table `%s`", t.Name),
		p.Sprintf("- Rows: %d", len(t.Rows)),
		p.Sprintf("- Columns: %d", len(t.Columns)),
	}
	if i, ok := col["year"]; ok && len(t.Rows) > 0 {
		lo, hi := t.Rows[0][i].(int), t.Rows[0][i].(int)
		for _, r := range t.Rows {
			y := r[i].(int)
			lo, hi = min(lo, y), max(hi, y)
		}
		lines = append(lines, fmt.Sprintf("- Years: %d to %d", lo, hi))
	}
	lines = append(lines, "")

	if i, ok := col["age_band"]; ok {
		counts := map[string]int{}
		for _, r := range t.Rows {
			b, ok := records.BandOf(records.AgeGroup(csvString(r[i])))
			if !ok {
				b = "<no band>"
			}
			counts[string(b)]++
		}
		lines = append(lines, "### Band coverage")
		lines = append(lines, valueCounts(p, counts)...)
		lines = append(lines, "")
	}

	lines = append(lines, "### Numeric summaries")
	for i, c := range t.Columns {
		if c.SQLType != "REAL" {
			continue
		}
		var nums []float64
		for _, r := range t.Rows {
			if f, ok := r[i].(float64); ok {
				nums = append(nums, f)
			}
		}
		if len(nums) == 0 {
			continue
		}
		sort.Float64s(nums)
		lines = append(lines, p.Sprintf("- `%s`: count=%d, min=%s, median=%s, mean=%s, max=%s",
			c.Name, len(nums), fmt4g(nums[0]), fmt4g(aggregate.Median(nums)), fmt4g(aggregate.Mean(nums)), fmt4g(nums[len(nums)-1]),
		))
	}
	lines = append(lines, "")

	for _, name := range []string{"country", "age_band", "band", "income_quintile"} {
		i, ok := col[name]
		if !ok {
			continue
		}
		counts := map[string]int{}
		for _, r := range t.Rows {
			counts[csvString(r[i])]++
		}
		lines = append(lines, fmt.Sprintf("### `%s` (top %d)", name, topN))
		lines = append(lines, valueCounts(p, counts)...)
		lines = append(lines, "")
	}
	return lines
}

func valueCounts(p *message.Printer, counts map[string]int) []string {
	type kv struct {
		k string
		v int
	}
	items := make([]kv, 0, len(counts))
	for k, v := range counts {
		items = append(items, kv{k, v})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].v == items[j].v {
			return items[i].k < items[j].k
		}
		return items[i].v > items[j].v
	})
	var lines []string
	for i := 0; i < len(items) && i < topN; i++ {
		lines = append(lines, p.Sprintf("- %s: %d", items[i].k, items[i].v))
	}
	return lines
}

func fmt4g(v float64) string { return strconv.FormatFloat(v, 'g', 4, 64) }
