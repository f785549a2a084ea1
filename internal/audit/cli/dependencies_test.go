package cli_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	auditcli "github.com/tyemirov/dagwatch/internal/audit/cli"
	"github.com/tyemirov/dagwatch/internal/config"
	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

func TestNewAirflowDAGSourceBasicAuth(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, httpRequest *http.Request) {
		username, password, basicAuthPresent := httpRequest.BasicAuth()
		if !basicAuthPresent || username != "auditor" || password != "secret" {
			responseWriter.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case httpRequest.Method == http.MethodGet && httpRequest.URL.Path == "/api/v1/dags":
			_, _ = responseWriter.Write([]byte(`{"dags":[{"dag_id":"dl_orders_prd"},{"dag_id":"dl_users_prd"}],"total_entries":2}`))
		case httpRequest.Method == http.MethodPost && httpRequest.URL.Path == "/api/v1/dags/~/dagRuns/list":
			_, _ = responseWriter.Write([]byte(`{"dag_runs":[{"dag_run_id":"a","state":"failed"},{"dag_run_id":"b","state":"success"}],"total_entries":2}`))
		default:
			responseWriter.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	configuration := config.AirflowConfiguration{
		BaseURL:  server.URL + "/",
		Username: "auditor",
		Password: "secret",
	}.Sanitize()
	require.NoError(testInstance, configuration.Validate())

	client, clientError := auditcli.NewAirflowDAGSource(context.Background(), zap.NewNop(), configuration)
	require.NoError(testInstance, clientError)

	identifiers, listError := client.ListActiveDAGs(context.Background())
	require.NoError(testInstance, listError)
	require.Equal(testInstance, []string{"dl_orders_prd", "dl_users_prd"}, identifiers)

	runs, runsError := client.ListDAGRuns(context.Background(), "dl_orders_prd",
		time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.August, 15, 23, 59, 59, 0, time.UTC),
	)
	require.NoError(testInstance, runsError)
	require.Len(testInstance, runs, 2)
	require.True(testInstance, runs[0].Failed())
}

func TestAuditCommandAgainstAirflowServer(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, httpRequest *http.Request) {
		switch httpRequest.URL.Path {
		case "/api/v1/dags":
			_, _ = responseWriter.Write([]byte(`{"dags":[{"dag_id":"dl_orders_prd"},{"dag_id":"ops_cleanup"}],"total_entries":2}`))
		case "/api/v1/dags/~/dagRuns/list":
			_, _ = responseWriter.Write([]byte(`{"dag_runs":[{"dag_run_id":"a","state":"failed"},{"dag_run_id":"b","state":"success"},{"dag_run_id":"c","state":"success"},{"dag_run_id":"d","state":"success"}],"total_entries":4}`))
		default:
			responseWriter.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	builder := auditcli.CommandBuilder{
		AirflowConfigurationProvider: func() config.AirflowConfiguration {
			return config.AirflowConfiguration{BaseURL: server.URL, Username: "auditor", Password: "secret"}
		},
	}

	output, errorOutput, executeError := executeAudit(testInstance, builder, "--prefix", "dl", "--end-date", "2024-08-15")
	require.NoError(testInstance, executeError)
	require.Equal(testInstance, "dag_id,run_count,fail_count,failure_ratio\ndl_orders_prd,4,1,0.2500\n", output)
	require.Contains(testInstance, errorOutput, "total.dags=1 total.runs=4 total.fails=1 failure_ratio=0.2500")
}

func TestNewAirflowDAGSourceMWAARequiresRegion(testInstance *testing.T) {
	configuration := config.AirflowConfiguration{
		AuthMode: string(config.AuthModeMWAA),
		MWAA:     config.MWAAConfiguration{Environment: "analytics-prd"},
	}.Sanitize()

	client, clientError := auditcli.NewAirflowDAGSource(context.Background(), zap.NewNop(), configuration)
	require.Nil(testInstance, client)
	require.ErrorIs(testInstance, clientError, auditerrors.ErrConfiguration)
	require.EqualError(testInstance, clientError, "configuration.validate[airflow.mwaa]: missing required parameters: region")
}
