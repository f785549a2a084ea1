package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tyemirov/dagwatch/internal/airflow"
)

const (
	tracerNameConstant                = "github.com/tyemirov/dagwatch/internal/audit"
	auditSpanNameConstant             = "audit.run"
	sourceMissingMessageConstant      = "DAG source must be provided"
	auditStartedMessageConstant       = "Starting audit pass"
	dagsSelectedMessageConstant       = "Selected DAGs for audit"
	dagTalliedMessageConstant         = "Tallied DAG runs"
	auditCompletedMessageConstant     = "Audit pass completed"
	auditFailedMessageConstant        = "Audit pass failed"
	resultRecordedMessageConstant     = "Recorded audit pass"
	passIDLogFieldConstant            = "pass_id"
	windowStartLogFieldConstant       = "window_start"
	windowEndLogFieldConstant         = "window_end"
	prefixLogFieldConstant            = "prefix"
	suffixLogFieldConstant            = "suffix"
	activeDAGsLogFieldConstant        = "active_dags"
	selectedDAGsLogFieldConstant      = "selected_dags"
	dagIdentifierLogFieldConstant     = "dag_id"
	runCountLogFieldConstant          = "run_count"
	failCountLogFieldConstant         = "fail_count"
	totalRunsLogFieldConstant         = "total_runs"
	totalFailsLogFieldConstant        = "total_fails"
	failureRatioLogFieldConstant      = "failure_ratio"
	durationLogFieldConstant          = "duration"
	concurrencyLogFieldConstant       = "concurrency"
	windowStartAttributeConstant      = "dagwatch.window.start"
	windowEndAttributeConstant        = "dagwatch.window.end"
	selectedDAGsAttributeConstant     = "dagwatch.dags.selected"
	failureRatioAttributeConstant     = "dagwatch.failure_ratio"
	auditFailedSpanStatusConstant     = "audit pass failed"
	recordingFailedSpanStatusConstant = "recording audit pass failed"
)

// ServiceConfiguration tunes the audit pass.
type ServiceConfiguration struct {
	// Concurrency bounds how many DAGs are fetched at once. Values below one run the pass sequentially.
	Concurrency int
	Clock       func() time.Time
	Tracer      trace.Tracer
	Recorder    ResultRecorder
}

// Service runs audit passes: enumerate, filter, fetch, tally, and consolidate.
type Service struct {
	logger      *zap.Logger
	source      DAGSource
	concurrency int
	clock       func() time.Time
	tracer      trace.Tracer
	recorder    ResultRecorder
}

// NewService constructs a Service reading from the provided DAG source.
func NewService(logger *zap.Logger, source DAGSource, configuration ServiceConfiguration) (*Service, error) {
	if source == nil {
		return nil, errors.New(sourceMissingMessageConstant)
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	resolvedConcurrency := configuration.Concurrency
	if resolvedConcurrency < 1 {
		resolvedConcurrency = defaultConcurrencyConstant
	}

	resolvedClock := configuration.Clock
	if resolvedClock == nil {
		resolvedClock = time.Now
	}

	resolvedTracer := configuration.Tracer
	if resolvedTracer == nil {
		resolvedTracer = otel.Tracer(tracerNameConstant)
	}

	return &Service{
		logger:      resolvedLogger,
		source:      source,
		concurrency: resolvedConcurrency,
		clock:       resolvedClock,
		tracer:      resolvedTracer,
		recorder:    configuration.Recorder,
	}, nil
}

// Run executes one audit pass. Any enumeration, fetch, or consolidation failure aborts the pass without a partial result.
// A zero EndDate audits through today.
func (service *Service) Run(executionContext context.Context, request Request) (Result, error) {
	startedAt := service.clock()

	endDate := request.EndDate
	if endDate.IsZero() {
		endDate = startedAt
	}
	window, windowError := ResolveWindow(endDate, request.LookbackDays)
	if windowError != nil {
		return Result{}, windowError
	}

	passID := uuid.NewString()
	passLogger := service.logger.With(zap.String(passIDLogFieldConstant, passID))

	spanContext, span := service.tracer.Start(executionContext, auditSpanNameConstant,
		trace.WithAttributes(
			attribute.String(windowStartAttributeConstant, airflow.FormatTimestamp(window.Start)),
			attribute.String(windowEndAttributeConstant, airflow.FormatTimestamp(window.End)),
		),
	)
	defer span.End()

	passLogger.Info(auditStartedMessageConstant,
		zap.String(windowStartLogFieldConstant, airflow.FormatTimestamp(window.Start)),
		zap.String(windowEndLogFieldConstant, airflow.FormatTimestamp(window.End)),
		zap.String(prefixLogFieldConstant, request.Prefix),
		zap.String(suffixLogFieldConstant, request.Suffix),
		zap.Int(concurrencyLogFieldConstant, service.concurrency),
	)

	activeDAGs, listError := service.source.ListActiveDAGs(spanContext)
	if listError != nil {
		return Result{}, service.fail(span, passLogger, listError)
	}

	selectedDAGs := FilterDAGIdentifiers(activeDAGs, request.Prefix, request.Suffix)
	span.SetAttributes(attribute.Int(selectedDAGsAttributeConstant, len(selectedDAGs)))
	passLogger.Info(dagsSelectedMessageConstant,
		zap.Int(activeDAGsLogFieldConstant, len(activeDAGs)),
		zap.Int(selectedDAGsLogFieldConstant, len(selectedDAGs)),
	)

	tallies, tallyError := service.collectTallies(spanContext, passLogger, selectedDAGs, window)
	if tallyError != nil {
		return Result{}, service.fail(span, passLogger, tallyError)
	}

	consolidation, consolidateError := Consolidate(tallies)
	if consolidateError != nil {
		return Result{}, service.fail(span, passLogger, consolidateError)
	}
	span.SetAttributes(attribute.Float64(failureRatioAttributeConstant, consolidation.FailureRatio))

	result := Result{
		PassID:         passID,
		StartedAt:      startedAt,
		Duration:       service.clock().Sub(startedAt),
		Window:         window,
		Prefix:         request.Prefix,
		Suffix:         request.Suffix,
		ActiveDAGCount: len(activeDAGs),
		Tallies:        tallies,
		Consolidation:  consolidation,
	}

	passLogger.Info(auditCompletedMessageConstant,
		zap.Int(totalRunsLogFieldConstant, consolidation.TotalRuns),
		zap.Int(totalFailsLogFieldConstant, consolidation.TotalFails),
		zap.Float64(failureRatioLogFieldConstant, consolidation.FailureRatio),
		zap.Duration(durationLogFieldConstant, result.Duration),
	)

	if service.recorder != nil {
		if recordError := service.recorder.Record(spanContext, result); recordError != nil {
			span.RecordError(recordError)
			span.SetStatus(codes.Error, recordingFailedSpanStatusConstant)
			return result, recordError
		}
		passLogger.Debug(resultRecordedMessageConstant)
	}

	return result, nil
}

func (service *Service) collectTallies(executionContext context.Context, logger *zap.Logger, dagIDs []string, window Window) ([]PerWorkflowTally, error) {
	tallies := make([]PerWorkflowTally, len(dagIDs))

	group, groupContext := errgroup.WithContext(executionContext)
	group.SetLimit(service.concurrency)

	for dagIndex, dagID := range dagIDs {
		group.Go(func() error {
			if groupContext.Err() != nil {
				return nil
			}
			runs, fetchError := service.source.ListDAGRuns(groupContext, dagID, window.Start, window.End)
			if fetchError != nil {
				return fetchError
			}
			tallies[dagIndex] = Tally(dagID, runs)
			logger.Debug(dagTalliedMessageConstant,
				zap.String(dagIdentifierLogFieldConstant, dagID),
				zap.Int(runCountLogFieldConstant, tallies[dagIndex].RunCount),
				zap.Int(failCountLogFieldConstant, tallies[dagIndex].FailCount),
			)
			return nil
		})
	}

	if waitError := group.Wait(); waitError != nil {
		return nil, waitError
	}
	if contextError := executionContext.Err(); contextError != nil {
		return nil, contextError
	}

	return tallies, nil
}

func (service *Service) fail(span trace.Span, logger *zap.Logger, failure error) error {
	span.RecordError(failure)
	span.SetStatus(codes.Error, auditFailedSpanStatusConstant)
	logger.Warn(auditFailedMessageConstant, zap.Error(failure))
	return failure
}
