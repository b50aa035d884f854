// Package prioritize orders findings and error records by severity.
package prioritize

import (
	"sort"

	"github.com/snow-ghost/healer/core"
)

// Findings returns the findings sorted by the weight of their most severe
// item, descending. The sort is stable: ties keep their input order.
func Findings(findings []core.Finding) []core.Finding {
	out := make([]core.Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return maxWeight(out[i]) > maxWeight(out[j])
	})
	return out
}

// Records returns the records sorted by severity weight, descending,
// preserving input order between equal severities.
func Records(records []core.ErrorRecord) []core.ErrorRecord {
	out := make([]core.ErrorRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Weight() > out[j].Severity.Weight()
	})
	return out
}

func maxWeight(f core.Finding) int {
	max := 0
	for _, rec := range f.Items {
		if w := rec.Severity.Weight(); w > max {
			max = w
		}
	}
	return max
}
