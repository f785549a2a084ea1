package airflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

const (
	// TimestampLayout renders UTC instants the way the Airflow run list endpoint expects them.
	TimestampLayout = "2006-01-02T15:04:05Z"
	// RunStateFailed marks a DAG run that ended in failure.
	RunStateFailed = "failed"

	dagsPathConstant                    = "/api/v1/dags"
	dagRunsListPathConstant             = "/api/v1/dags/~/dagRuns/list"
	onlyActiveQueryParameterConstant    = "only_active"
	limitQueryParameterConstant         = "limit"
	offsetQueryParameterConstant        = "offset"
	defaultPageSizeConstant             = 100
	executorMissingMessageConstant      = "request executor must be provided"
	dagIdentifierMissingMessageConstant = "dag id must be provided"
	windowInvertedMessageConstant       = "window end precedes window start"
	enumerationStartMessageConstant     = "Enumerating active DAGs"
	enumerationPageMessageConstant      = "Fetched active DAG page"
	enumerationCompleteMessageConstant  = "Enumerated active DAGs"
	runsFetchedMessageConstant          = "Fetched DAG runs"
	runsTruncatedMessageConstant        = "DAG run list truncated by server page size"
	pageSizeLogFieldConstant            = "page_size"
	offsetLogFieldConstant              = "offset"
	pageCountLogFieldConstant           = "page_count"
	totalEntriesLogFieldConstant        = "total_entries"
	collectedLogFieldConstant           = "collected"
	dagIdentifierLogFieldConstant       = "dag_id"
	runCountLogFieldConstant            = "run_count"
)

// Executor issues authenticated Airflow API calls.
type Executor interface {
	Execute(executionContext context.Context, method string, path string, query url.Values, body any) ([]byte, error)
}

// ClientConfiguration specifies pagination behavior for the Airflow client.
type ClientConfiguration struct {
	PageSize     int
	RunPageLimit int
}

// RunRecord describes a single DAG run.
type RunRecord struct {
	DAGRunID string `json:"dag_run_id"`
	State    string `json:"state"`
}

// Failed reports whether the run ended in failure.
func (record RunRecord) Failed() bool {
	return record.State == RunStateFailed
}

// Client enumerates active DAGs and retrieves their run history.
type Client struct {
	logger       *zap.Logger
	executor     Executor
	pageSize     int
	runPageLimit int
}

// NewClient constructs a Client with sane defaults.
func NewClient(logger *zap.Logger, executor Executor, configuration ClientConfiguration) (*Client, error) {
	if executor == nil {
		return nil, errors.New(executorMissingMessageConstant)
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	resolvedPageSize := configuration.PageSize
	if resolvedPageSize <= 0 {
		resolvedPageSize = defaultPageSizeConstant
	}

	resolvedRunPageLimit := configuration.RunPageLimit
	if resolvedRunPageLimit < 0 {
		resolvedRunPageLimit = 0
	}

	return &Client{
		logger:       resolvedLogger,
		executor:     executor,
		pageSize:     resolvedPageSize,
		runPageLimit: resolvedRunPageLimit,
	}, nil
}

// ListActiveDAGs returns the ids of every active DAG in server order without duplicates.
// Pages are requested until the server-reported total is consumed or a page comes back empty.
func (client *Client) ListActiveDAGs(executionContext context.Context) ([]string, error) {
	client.logger.Debug(enumerationStartMessageConstant, zap.Int(pageSizeLogFieldConstant, client.pageSize))

	identifiers := make([]string, 0, client.pageSize)
	seenIdentifiers := make(map[string]struct{}, client.pageSize)
	offset := 0
	for {
		page, fetchError := client.fetchDAGPage(executionContext, offset)
		if fetchError != nil {
			return nil, fetchError
		}

		pageCount := len(page.DAGs)
		for _, dag := range page.DAGs {
			if _, seen := seenIdentifiers[dag.DAGID]; seen {
				continue
			}
			seenIdentifiers[dag.DAGID] = struct{}{}
			identifiers = append(identifiers, dag.DAGID)
		}
		offset += pageCount

		client.logger.Debug(
			enumerationPageMessageConstant,
			zap.Int(offsetLogFieldConstant, offset-pageCount),
			zap.Int(pageCountLogFieldConstant, pageCount),
			zap.Int(totalEntriesLogFieldConstant, page.TotalEntries),
		)

		if pageCount == 0 || offset >= page.TotalEntries {
			break
		}
	}

	client.logger.Debug(enumerationCompleteMessageConstant, zap.Int(collectedLogFieldConstant, len(identifiers)))

	return identifiers, nil
}

// ListDAGRuns returns the runs of dagID whose start is at or after windowStart and whose end is at or before windowEnd.
func (client *Client) ListDAGRuns(executionContext context.Context, dagID string, windowStart time.Time, windowEnd time.Time) ([]RunRecord, error) {
	trimmedIdentifier := strings.TrimSpace(dagID)
	if len(trimmedIdentifier) == 0 {
		return nil, auditerrors.WrapMessage(auditerrors.OperationDAGRunList, "", auditerrors.ErrConfiguration, dagIdentifierMissingMessageConstant)
	}
	if windowEnd.Before(windowStart) {
		return nil, auditerrors.WrapMessage(auditerrors.OperationDAGRunList, trimmedIdentifier, auditerrors.ErrConfiguration, windowInvertedMessageConstant)
	}

	requestBody := dagRunListRequest{
		DAGIDs:       []string{trimmedIdentifier},
		StartDateGTE: FormatTimestamp(windowStart),
		EndDateLTE:   FormatTimestamp(windowEnd),
	}
	if client.runPageLimit > 0 {
		requestBody.PageLimit = client.runPageLimit
	}

	responseBody, executeError := client.executor.Execute(executionContext, http.MethodPost, dagRunsListPathConstant, nil, requestBody)
	if executeError != nil {
		return nil, auditerrors.Wrap(auditerrors.OperationDAGRunList, trimmedIdentifier, "", executeError)
	}

	var response dagRunListResponse
	if decodeError := json.Unmarshal(responseBody, &response); decodeError != nil {
		return nil, auditerrors.Wrap(auditerrors.OperationDAGRunList, trimmedIdentifier, auditerrors.ErrResponseDecode, decodeError)
	}

	if response.TotalEntries > len(response.DAGRuns) {
		client.logger.Warn(
			runsTruncatedMessageConstant,
			zap.String(dagIdentifierLogFieldConstant, trimmedIdentifier),
			zap.Int(runCountLogFieldConstant, len(response.DAGRuns)),
			zap.Int(totalEntriesLogFieldConstant, response.TotalEntries),
		)
	}

	client.logger.Debug(
		runsFetchedMessageConstant,
		zap.String(dagIdentifierLogFieldConstant, trimmedIdentifier),
		zap.Int(runCountLogFieldConstant, len(response.DAGRuns)),
	)

	records := make([]RunRecord, len(response.DAGRuns))
	copy(records, response.DAGRuns)
	return records, nil
}

// FormatTimestamp renders an instant as YYYY-MM-DDTHH:MM:SSZ in UTC.
func FormatTimestamp(instant time.Time) string {
	return instant.UTC().Format(TimestampLayout)
}

func (client *Client) fetchDAGPage(executionContext context.Context, offset int) (dagPageResponse, error) {
	query := url.Values{}
	query.Set(onlyActiveQueryParameterConstant, strconv.FormatBool(true))
	query.Set(limitQueryParameterConstant, strconv.Itoa(client.pageSize))
	query.Set(offsetQueryParameterConstant, strconv.Itoa(offset))

	responseBody, executeError := client.executor.Execute(executionContext, http.MethodGet, dagsPathConstant, query, nil)
	if executeError != nil {
		return dagPageResponse{}, auditerrors.Wrap(auditerrors.OperationDAGList, strconv.Itoa(offset), "", executeError)
	}

	var page dagPageResponse
	if decodeError := json.Unmarshal(responseBody, &page); decodeError != nil {
		return dagPageResponse{}, auditerrors.Wrap(auditerrors.OperationDAGList, strconv.Itoa(offset), auditerrors.ErrResponseDecode, decodeError)
	}

	return page, nil
}

type dagPageResponse struct {
	DAGs         []dagSummary `json:"dags"`
	TotalEntries int          `json:"total_entries"`
}

type dagSummary struct {
	DAGID string `json:"dag_id"`
}

type dagRunListRequest struct {
	DAGIDs       []string `json:"dag_ids"`
	StartDateGTE string   `json:"start_date_gte"`
	EndDateLTE   string   `json:"end_date_lte"`
	PageLimit    int      `json:"page_limit,omitempty"`
}

type dagRunListResponse struct {
	DAGRuns      []RunRecord `json:"dag_runs"`
	TotalEntries int         `json:"total_entries"`
}
