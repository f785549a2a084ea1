package audit

import "time"

// PerWorkflowTally counts the runs and failed runs of one DAG inside the audit window.
type PerWorkflowTally struct {
	DAGID     string
	RunCount  int
	FailCount int
}

// FailureRatio returns FailCount/RunCount and reports false when the DAG had no runs.
func (tally PerWorkflowTally) FailureRatio() (float64, bool) {
	if tally.RunCount == 0 {
		return 0, false
	}
	return float64(tally.FailCount) / float64(tally.RunCount), true
}

// Consolidation is the failure ratio across every tally of an audit pass.
type Consolidation struct {
	TotalRuns    int
	TotalFails   int
	FailureRatio float64
}

// Window is the inclusive time range whose runs are audited.
type Window struct {
	Start time.Time
	End   time.Time
}

// Request selects the audit window and the DAG name filters for one pass.
type Request struct {
	EndDate      time.Time
	LookbackDays int
	Prefix       string
	Suffix       string
}

// Result captures everything produced by a successful audit pass.
type Result struct {
	PassID         string
	StartedAt      time.Time
	Duration       time.Duration
	Window         Window
	Prefix         string
	Suffix         string
	ActiveDAGCount int
	Tallies        []PerWorkflowTally
	Consolidation  Consolidation
}
