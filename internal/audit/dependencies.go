package audit

import (
	"context"
	"time"

	"github.com/tyemirov/dagwatch/internal/airflow"
)

// DAGSource enumerates active DAGs and retrieves their run history.
type DAGSource interface {
	ListActiveDAGs(executionContext context.Context) ([]string, error)
	ListDAGRuns(executionContext context.Context, dagID string, windowStart time.Time, windowEnd time.Time) ([]airflow.RunRecord, error)
}

// ResultRecorder persists completed audit passes.
type ResultRecorder interface {
	Record(executionContext context.Context, result Result) error
}
