package airflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/dagwatch/internal/airflow"
	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

type recordedExecution struct {
	method string
	path   string
	query  url.Values
	body   any
}

type scriptedExecutor struct {
	executions []recordedExecution
	respond    func(execution recordedExecution) ([]byte, error)
}

func (executor *scriptedExecutor) Execute(_ context.Context, method string, path string, query url.Values, body any) ([]byte, error) {
	execution := recordedExecution{method: method, path: path, query: query, body: body}
	executor.executions = append(executor.executions, execution)
	return executor.respond(execution)
}

func dagPage(totalEntries int, identifiers ...string) []byte {
	dags := make([]map[string]string, 0, len(identifiers))
	for _, identifier := range identifiers {
		dags = append(dags, map[string]string{"dag_id": identifier})
	}
	encoded, _ := json.Marshal(map[string]any{"dags": dags, "total_entries": totalEntries})
	return encoded
}

func generatedIdentifiers(start int, count int) []string {
	identifiers := make([]string, 0, count)
	for index := start; index < start+count; index++ {
		identifiers = append(identifiers, fmt.Sprintf("dag_%03d", index))
	}
	return identifiers
}

func TestClientListActiveDAGsPagination(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name            string
		totalEntries    int
		pageSize        int
		servedPageSize  int
		expectedOffsets []string
		expectedCount   int
	}{
		{
			name:            "two_additional_pages",
			totalEntries:    250,
			pageSize:        100,
			servedPageSize:  100,
			expectedOffsets: []string{"0", "100", "200"},
			expectedCount:   250,
		},
		{
			name:            "exact_multiple_needs_no_empty_page",
			totalEntries:    200,
			pageSize:        100,
			servedPageSize:  100,
			expectedOffsets: []string{"0", "100"},
			expectedCount:   200,
		},
		{
			name:            "server_caps_page_size",
			totalEntries:    120,
			pageSize:        100,
			servedPageSize:  50,
			expectedOffsets: []string{"0", "50", "100"},
			expectedCount:   120,
		},
		{
			name:            "single_page",
			totalEntries:    7,
			pageSize:        100,
			servedPageSize:  100,
			expectedOffsets: []string{"0"},
			expectedCount:   7,
		},
		{
			name:            "no_dags",
			totalEntries:    0,
			pageSize:        100,
			servedPageSize:  100,
			expectedOffsets: []string{"0"},
			expectedCount:   0,
		},
	}

	for testCaseIndex := range testCases {
		testCase := testCases[testCaseIndex]
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testInstance.Parallel()

			executor := &scriptedExecutor{respond: func(execution recordedExecution) ([]byte, error) {
				offset, _ := strconv.Atoi(execution.query.Get("offset"))
				remaining := testCase.totalEntries - offset
				if remaining < 0 {
					remaining = 0
				}
				if remaining > testCase.servedPageSize {
					remaining = testCase.servedPageSize
				}
				return dagPage(testCase.totalEntries, generatedIdentifiers(offset, remaining)...), nil
			}}

			client, clientError := airflow.NewClient(zap.NewNop(), executor, airflow.ClientConfiguration{PageSize: testCase.pageSize})
			require.NoError(testInstance, clientError)

			identifiers, listError := client.ListActiveDAGs(context.Background())
			require.NoError(testInstance, listError)
			require.Len(testInstance, identifiers, testCase.expectedCount)

			uniqueIdentifiers := make(map[string]struct{}, len(identifiers))
			for _, identifier := range identifiers {
				uniqueIdentifiers[identifier] = struct{}{}
			}
			require.Len(testInstance, uniqueIdentifiers, testCase.expectedCount)

			recordedOffsets := make([]string, 0, len(executor.executions))
			for _, execution := range executor.executions {
				require.Equal(testInstance, http.MethodGet, execution.method)
				require.Equal(testInstance, "/api/v1/dags", execution.path)
				require.Equal(testInstance, "true", execution.query.Get("only_active"))
				require.Equal(testInstance, strconv.Itoa(testCase.pageSize), execution.query.Get("limit"))
				recordedOffsets = append(recordedOffsets, execution.query.Get("offset"))
			}
			require.Equal(testInstance, testCase.expectedOffsets, recordedOffsets)
		})
	}
}

func TestClientListActiveDAGsDropsDuplicatesAcrossPages(testInstance *testing.T) {
	testInstance.Parallel()

	pages := [][]byte{
		dagPage(4, "ingest", "transform"),
		dagPage(4, "transform", "publish"),
	}
	executor := &scriptedExecutor{respond: func(recordedExecution) ([]byte, error) {
		page := pages[0]
		pages = pages[1:]
		return page, nil
	}}

	client, clientError := airflow.NewClient(nil, executor, airflow.ClientConfiguration{PageSize: 2})
	require.NoError(testInstance, clientError)

	identifiers, listError := client.ListActiveDAGs(context.Background())
	require.NoError(testInstance, listError)
	require.Equal(testInstance, []string{"ingest", "transform", "publish"}, identifiers)
	require.Len(testInstance, executor.executions, 2)
}

func TestClientListActiveDAGsAbortsOnPageFailure(testInstance *testing.T) {
	testInstance.Parallel()

	pageFailure := &auditerrors.RequestError{Method: http.MethodGet, URL: "https://airflow.example.com/api/v1/dags?offset=100", StatusCode: http.StatusBadGateway}
	executor := &scriptedExecutor{respond: func(execution recordedExecution) ([]byte, error) {
		if execution.query.Get("offset") == "0" {
			return dagPage(250, generatedIdentifiers(0, 100)...), nil
		}
		return nil, pageFailure
	}}

	client, clientError := airflow.NewClient(zap.NewNop(), executor, airflow.ClientConfiguration{})
	require.NoError(testInstance, clientError)

	identifiers, listError := client.ListActiveDAGs(context.Background())
	require.Nil(testInstance, identifiers)
	require.ErrorIs(testInstance, listError, auditerrors.ErrRequest)

	var requestError *auditerrors.RequestError
	require.True(testInstance, errors.As(listError, &requestError))
	require.Equal(testInstance, http.StatusBadGateway, requestError.StatusCode)
	require.Len(testInstance, executor.executions, 2)
}

func TestClientListActiveDAGsRejectsMalformedPayload(testInstance *testing.T) {
	testInstance.Parallel()

	executor := &scriptedExecutor{respond: func(recordedExecution) ([]byte, error) {
		return []byte("<html>login</html>"), nil
	}}
	client, clientError := airflow.NewClient(zap.NewNop(), executor, airflow.ClientConfiguration{})
	require.NoError(testInstance, clientError)

	_, listError := client.ListActiveDAGs(context.Background())
	require.ErrorIs(testInstance, listError, auditerrors.ErrResponseDecode)
}

func TestClientListDAGRunsRequestShape(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name              string
		runPageLimit      int
		expectedPageLimit bool
	}{
		{name: "default_without_page_limit"},
		{name: "configured_page_limit", runPageLimit: 1000, expectedPageLimit: true},
	}

	for testCaseIndex := range testCases {
		testCase := testCases[testCaseIndex]
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testInstance.Parallel()

			executor := &scriptedExecutor{respond: func(recordedExecution) ([]byte, error) {
				return []byte(`{"dag_runs":[{"dag_run_id":"r1","state":"success"},{"dag_run_id":"r2","state":"failed"}],"total_entries":2}`), nil
			}}
			client, clientError := airflow.NewClient(zap.NewNop(), executor, airflow.ClientConfiguration{RunPageLimit: testCase.runPageLimit})
			require.NoError(testInstance, clientError)

			windowStart := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
			windowEnd := time.Date(2024, 8, 15, 23, 59, 59, 0, time.UTC)
			runs, listError := client.ListDAGRuns(context.Background(), " DL_sales_bi ", windowStart, windowEnd)
			require.NoError(testInstance, listError)
			require.Equal(testInstance, []airflow.RunRecord{{DAGRunID: "r1", State: "success"}, {DAGRunID: "r2", State: "failed"}}, runs)
			require.False(testInstance, runs[0].Failed())
			require.True(testInstance, runs[1].Failed())

			require.Len(testInstance, executor.executions, 1)
			execution := executor.executions[0]
			require.Equal(testInstance, http.MethodPost, execution.method)
			require.Equal(testInstance, "/api/v1/dags/~/dagRuns/list", execution.path)

			encodedBody, encodeError := json.Marshal(execution.body)
			require.NoError(testInstance, encodeError)
			expectedBody := `{"dag_ids":["DL_sales_bi"],"start_date_gte":"2024-05-17T00:00:00Z","end_date_lte":"2024-08-15T23:59:59Z"}`
			if testCase.expectedPageLimit {
				expectedBody = `{"dag_ids":["DL_sales_bi"],"start_date_gte":"2024-05-17T00:00:00Z","end_date_lte":"2024-08-15T23:59:59Z","page_limit":1000}`
			}
			require.JSONEq(testInstance, expectedBody, string(encodedBody))
		})
	}
}

func TestClientListDAGRunsValidatesInput(testInstance *testing.T) {
	testInstance.Parallel()

	executor := &scriptedExecutor{respond: func(recordedExecution) ([]byte, error) { return []byte(`{}`), nil }}
	client, clientError := airflow.NewClient(zap.NewNop(), executor, airflow.ClientConfiguration{})
	require.NoError(testInstance, clientError)

	now := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

	_, missingIdentifierError := client.ListDAGRuns(context.Background(), "  ", now.Add(-time.Hour), now)
	require.ErrorIs(testInstance, missingIdentifierError, auditerrors.ErrConfiguration)

	_, invertedWindowError := client.ListDAGRuns(context.Background(), "etl", now, now.Add(-time.Hour))
	require.ErrorIs(testInstance, invertedWindowError, auditerrors.ErrConfiguration)

	require.Empty(testInstance, executor.executions)
}

func TestClientListDAGRunsWrapsRequestFailureWithDAGIdentifier(testInstance *testing.T) {
	testInstance.Parallel()

	executor := &scriptedExecutor{respond: func(recordedExecution) ([]byte, error) {
		return nil, &auditerrors.RequestError{Method: http.MethodPost, URL: "https://airflow.example.com/api/v1/dags/~/dagRuns/list", StatusCode: http.StatusForbidden}
	}}
	client, clientError := airflow.NewClient(zap.NewNop(), executor, airflow.ClientConfiguration{})
	require.NoError(testInstance, clientError)

	now := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
	_, listError := client.ListDAGRuns(context.Background(), "etl", now.Add(-time.Hour), now)
	require.ErrorIs(testInstance, listError, auditerrors.ErrRequest)

	var operationError auditerrors.OperationError
	require.True(testInstance, errors.As(listError, &operationError))
	require.Equal(testInstance, auditerrors.OperationDAGRunList, operationError.Operation())
	require.Equal(testInstance, "etl", operationError.Subject())
}

func TestFormatTimestamp(testInstance *testing.T) {
	testInstance.Parallel()

	require.Equal(testInstance, "2024-08-15T12:30:30Z", airflow.FormatTimestamp(time.Date(2024, 8, 15, 12, 30, 30, 0, time.UTC)))

	saoPaulo := time.FixedZone("BRT", -3*60*60)
	require.Equal(testInstance, "2024-08-15T15:30:30Z", airflow.FormatTimestamp(time.Date(2024, 8, 15, 12, 30, 30, 999, saoPaulo)))
}

func TestNewClientRequiresExecutor(testInstance *testing.T) {
	testInstance.Parallel()

	client, clientError := airflow.NewClient(zap.NewNop(), nil, airflow.ClientConfiguration{})
	require.Nil(testInstance, client)
	require.Error(testInstance, clientError)
}
