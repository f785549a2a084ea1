package audit

import (
	"github.com/tyemirov/dagwatch/internal/airflow"
	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

const noRunsMessageConstant = "no runs found for the selected DAGs in the audit window"

// Tally counts every run of the DAG and the runs whose state is failed.
func Tally(dagID string, runs []airflow.RunRecord) PerWorkflowTally {
	failCount := 0
	for _, run := range runs {
		if run.Failed() {
			failCount++
		}
	}
	return PerWorkflowTally{DAGID: dagID, RunCount: len(runs), FailCount: failCount}
}

// Consolidate sums the tallies and divides failed runs by total runs.
// It returns ErrDivisionUndefined when the tallies hold no runs at all.
func Consolidate(tallies []PerWorkflowTally) (Consolidation, error) {
	totalRuns := 0
	totalFails := 0
	for _, tally := range tallies {
		totalRuns += tally.RunCount
		totalFails += tally.FailCount
	}

	if totalRuns == 0 {
		return Consolidation{}, auditerrors.WrapMessage(auditerrors.OperationConsolidate, "", auditerrors.ErrDivisionUndefined, noRunsMessageConstant)
	}

	return Consolidation{
		TotalRuns:    totalRuns,
		TotalFails:   totalFails,
		FailureRatio: float64(totalFails) / float64(totalRuns),
	}, nil
}
