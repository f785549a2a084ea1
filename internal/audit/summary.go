package audit

import (
	"fmt"
	"strings"
	"time"
)

// RenderSummaryLine returns the summary line printed after an audit pass.
func RenderSummaryLine(result Result) string {
	parts := []string{
		fmt.Sprintf("Summary: total.dags=%d", len(result.Tallies)),
		fmt.Sprintf("total.runs=%d", result.Consolidation.TotalRuns),
		fmt.Sprintf("total.fails=%d", result.Consolidation.TotalFails),
		fmt.Sprintf("failure_ratio=%s", formatRatio(result.Consolidation.FailureRatio)),
	}

	durationHuman := result.Duration.Round(time.Millisecond).String()
	if result.Duration <= 0 {
		durationHuman = "0s"
	}

	parts = append(parts, fmt.Sprintf("duration_human=%s", durationHuman))
	parts = append(parts, fmt.Sprintf("duration_ms=%d", result.Duration.Milliseconds()))

	return strings.Join(parts, " ")
}
