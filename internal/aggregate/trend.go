package aggregate

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// trendThreshold is in the metric's natural unit (percentage points or
// deaths per 100k); smaller moves read as stable.
const trendThreshold = 1.0

// Trend phrases the change between two values for the narrative copy, e.g.
// "has increased by 3.2". Numbers follow the printer's locale.
func Trend(p *message.Printer, first, last float64) string {
	if math.IsNaN(first) || math.IsNaN(last) {
		return ""
	}
	diff := last - first
	switch {
	case diff >= trendThreshold:
		return p.Sprintf("has increased by %.1f", diff)
	case diff <= -trendThreshold:
		return p.Sprintf("has decreased by %.1f", -diff)
	}
	return p.Sprintf("has remained relatively stable")
}

// Describe fills in the trend wording of a KPI.
func (k *KPI) Describe(tag language.Tag) {
	if !k.Available {
		return
	}
	k.Trend = Trend(message.NewPrinter(tag), k.Baseline, k.Value)
}
