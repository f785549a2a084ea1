package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/tyemirov/dagwatch/internal/airflow"
	"github.com/tyemirov/dagwatch/internal/audit"
	"github.com/tyemirov/dagwatch/internal/config"
	"github.com/tyemirov/dagwatch/internal/history"
	"github.com/tyemirov/dagwatch/internal/mwaa"
)

// SourceFactory builds the DAG source for one audit pass.
type SourceFactory func(executionContext context.Context, logger *zap.Logger, configuration config.AirflowConfiguration) (audit.DAGSource, error)

// RecorderFactory opens the recorder that persists completed passes. The returned close function releases it.
type RecorderFactory func(path string) (audit.ResultRecorder, func() error, error)

// NewAirflowDAGSource assembles the credential provider, session manager, request executor, and client
// for the configured auth mode. The configuration must already be sanitized and validated.
func NewAirflowDAGSource(executionContext context.Context, logger *zap.Logger, configuration config.AirflowConfiguration) (*airflow.Client, error) {
	provider, providerError := newCredentialProvider(executionContext, logger, configuration)
	if providerError != nil {
		return nil, providerError
	}

	sessionManager, sessionError := airflow.NewSessionManager(logger, provider, airflow.SessionManagerConfiguration{
		TTL: configuration.SessionTTL,
	})
	if sessionError != nil {
		return nil, sessionError
	}

	executor, executorError := airflow.NewRequestExecutor(logger, sessionManager, nil, airflow.ExecutorConfiguration{
		RequestTimeout:    configuration.RequestTimeout,
		RequestsPerSecond: configuration.RequestsPerSecond,
	})
	if executorError != nil {
		return nil, executorError
	}

	return airflow.NewClient(logger, executor, airflow.ClientConfiguration{
		PageSize:     configuration.PageSize,
		RunPageLimit: configuration.RunPageLimit,
	})
}

func newCredentialProvider(executionContext context.Context, logger *zap.Logger, configuration config.AirflowConfiguration) (airflow.CredentialProvider, error) {
	if configuration.ResolvedAuthMode() != config.AuthModeMWAA {
		return airflow.NewStaticCredentialProvider(configuration.BaseURL, configuration.Username, configuration.Password)
	}

	tokenClient, clientError := mwaa.NewWebLoginTokenClient(executionContext, configuration.MWAA)
	if clientError != nil {
		return nil, clientError
	}

	return mwaa.NewCredentialProvider(logger, tokenClient, nil, mwaa.ProviderConfiguration{
		Environment:  configuration.MWAA.Environment,
		LoginTimeout: configuration.LoginTimeout,
	})
}

func defaultSourceFactory(executionContext context.Context, logger *zap.Logger, configuration config.AirflowConfiguration) (audit.DAGSource, error) {
	client, clientError := NewAirflowDAGSource(executionContext, logger, configuration)
	if clientError != nil {
		return nil, clientError
	}
	return client, nil
}

func defaultRecorderFactory(path string) (audit.ResultRecorder, func() error, error) {
	store, openError := history.Open(path)
	if openError != nil {
		return nil, nil, openError
	}
	return store, store.Close, nil
}
