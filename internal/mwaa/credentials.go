// Package mwaa exchanges AWS Managed Workflows for Apache Airflow web login tokens for Airflow session cookies.
package mwaa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmwaa "github.com/aws/aws-sdk-go-v2/service/mwaa"
	smithy "github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/tyemirov/dagwatch/internal/airflow"
	"github.com/tyemirov/dagwatch/internal/config"
	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

const (
	defaultLoginTimeoutConstant            = 50 * time.Second
	loginPathConstant                      = "/aws_mwaa/login"
	loginTokenFieldNameConstant            = "token"
	httpsSchemePrefixConstant              = "https://"
	formContentTypeConstant                = "application/x-www-form-urlencoded"
	contentTypeHeaderNameConstant          = "Content-Type"
	loginResponseBodyLimitConstant         = 4096
	mwaaSubjectConstant                    = "airflow.mwaa"
	environmentParameterConstant           = "environment"
	tokenAPIMissingMessageConstant         = "web login token API must be provided"
	tokenResponseIncompleteMessageConstant = "web login token response is missing the hostname or token"
	sessionCookieMissingMessageConstant    = "login response did not set a session cookie"
	apiErrorTemplateConstant               = "%s: %s"
	loginRequestBuildErrorTemplateConstant = "unable to build login request: %w"
	loginStartedMessageConstant            = "Exchanging MWAA web login token"
	loginCompletedMessageConstant          = "MWAA login exchange completed"
	environmentLogFieldConstant            = "environment"
	hostnameLogFieldConstant               = "web_server_hostname"
	loginStatusCodeLogFieldNameConstant    = "status_code"
	loginRejectedMessageConstant           = "MWAA login exchange rejected"
	loginFailureStatusLowerBoundConstant   = http.StatusBadRequest
	loginStatusTemplateConstant            = "POST %s: unexpected status code %d"
	loginStatusBodyTemplateConstant        = "POST %s: unexpected status code %d: %s"
	loginTransportTemplateConstant         = "POST %s: %v"
)

// LoginError describes a rejected or failed MWAA login exchange.
// It is reported under the authentication sentinel and never as a data request failure.
type LoginError struct {
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

// Error implements the error interface.
func (loginError *LoginError) Error() string {
	switch {
	case loginError.StatusCode > 0 && len(loginError.Body) > 0:
		return fmt.Sprintf(loginStatusBodyTemplateConstant, loginError.URL, loginError.StatusCode, loginError.Body)
	case loginError.StatusCode > 0:
		return fmt.Sprintf(loginStatusTemplateConstant, loginError.URL, loginError.StatusCode)
	default:
		return fmt.Sprintf(loginTransportTemplateConstant, loginError.URL, loginError.Cause)
	}
}

// Unwrap exposes the transport cause.
func (loginError *LoginError) Unwrap() error {
	return loginError.Cause
}

// WebLoginTokenAPI is the subset of the MWAA service client used to mint web login tokens.
type WebLoginTokenAPI interface {
	CreateWebLoginToken(ctx context.Context, params *awsmwaa.CreateWebLoginTokenInput, optFns ...func(*awsmwaa.Options)) (*awsmwaa.CreateWebLoginTokenOutput, error)
}

// ProviderConfiguration identifies the managed environment and bounds the login exchange.
type ProviderConfiguration struct {
	Environment  string
	LoginTimeout time.Duration
}

// CredentialProvider acquires Airflow session cookies through the MWAA web login exchange.
type CredentialProvider struct {
	logger       *zap.Logger
	tokenAPI     WebLoginTokenAPI
	httpClient   airflow.HTTPClient
	environment  string
	loginTimeout time.Duration
}

// NewCredentialProvider validates the environment name and constructs a CredentialProvider.
// A nil httpClient selects a client that does not follow the post-login redirect.
func NewCredentialProvider(logger *zap.Logger, tokenAPI WebLoginTokenAPI, httpClient airflow.HTTPClient, configuration ProviderConfiguration) (*CredentialProvider, error) {
	if config.IsAbsent(configuration.Environment) {
		return nil, auditerrors.MissingParameters(mwaaSubjectConstant, []string{environmentParameterConstant})
	}
	if tokenAPI == nil {
		return nil, errors.New(tokenAPIMissingMessageConstant)
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	resolvedHTTPClient := httpClient
	if resolvedHTTPClient == nil {
		resolvedHTTPClient = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	resolvedLoginTimeout := configuration.LoginTimeout
	if resolvedLoginTimeout <= 0 {
		resolvedLoginTimeout = defaultLoginTimeoutConstant
	}

	return &CredentialProvider{
		logger:       resolvedLogger,
		tokenAPI:     tokenAPI,
		httpClient:   resolvedHTTPClient,
		environment:  strings.TrimSpace(configuration.Environment),
		loginTimeout: resolvedLoginTimeout,
	}, nil
}

// Acquire mints a web login token and exchanges it for a session cookie on the environment's web server.
func (provider *CredentialProvider) Acquire(executionContext context.Context) (airflow.AuthContext, error) {
	tokenOutput, tokenError := provider.tokenAPI.CreateWebLoginToken(executionContext, &awsmwaa.CreateWebLoginTokenInput{
		Name: aws.String(provider.environment),
	})
	if tokenError != nil {
		return airflow.AuthContext{}, auditerrors.Wrap(auditerrors.OperationCredentialAcquire, provider.environment, auditerrors.ErrAuthentication, describeAPIError(tokenError))
	}

	hostname := strings.TrimSpace(aws.ToString(tokenOutput.WebServerHostname))
	webToken := aws.ToString(tokenOutput.WebToken)
	if len(hostname) == 0 || len(webToken) == 0 {
		return airflow.AuthContext{}, auditerrors.WrapMessage(auditerrors.OperationCredentialAcquire, provider.environment, auditerrors.ErrAuthentication, tokenResponseIncompleteMessageConstant)
	}

	provider.logger.Debug(loginStartedMessageConstant,
		zap.String(environmentLogFieldConstant, provider.environment),
		zap.String(hostnameLogFieldConstant, hostname),
	)

	sessionCookie, loginError := provider.exchangeToken(executionContext, hostname, webToken)
	if loginError != nil {
		return airflow.AuthContext{}, loginError
	}

	provider.logger.Info(loginCompletedMessageConstant,
		zap.String(environmentLogFieldConstant, provider.environment),
		zap.String(hostnameLogFieldConstant, hostname),
	)

	return airflow.AuthContext{
		BaseURL:       httpsSchemePrefixConstant + hostname,
		SessionCookie: sessionCookie,
	}, nil
}

func (provider *CredentialProvider) exchangeToken(executionContext context.Context, hostname string, webToken string) (string, error) {
	loginContext, cancel := context.WithTimeout(executionContext, provider.loginTimeout)
	defer cancel()

	loginURL := httpsSchemePrefixConstant + hostname + loginPathConstant
	form := url.Values{}
	form.Set(loginTokenFieldNameConstant, webToken)

	request, requestError := http.NewRequestWithContext(loginContext, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if requestError != nil {
		return "", auditerrors.Wrap(auditerrors.OperationCredentialAcquire, provider.environment, auditerrors.ErrAuthentication, fmt.Errorf(loginRequestBuildErrorTemplateConstant, requestError))
	}
	request.Header.Set(contentTypeHeaderNameConstant, formContentTypeConstant)

	response, responseError := provider.httpClient.Do(request)
	if responseError != nil {
		return "", auditerrors.Wrap(auditerrors.OperationCredentialAcquire, provider.environment, auditerrors.ErrAuthentication, &LoginError{
			URL:   loginURL,
			Cause: responseError,
		})
	}
	defer response.Body.Close()

	if !loginSucceeded(response.StatusCode) {
		responseBody, _ := io.ReadAll(io.LimitReader(response.Body, loginResponseBodyLimitConstant))
		provider.logger.Warn(loginRejectedMessageConstant,
			zap.String(environmentLogFieldConstant, provider.environment),
			zap.Int(loginStatusCodeLogFieldNameConstant, response.StatusCode),
		)
		return "", auditerrors.Wrap(auditerrors.OperationCredentialAcquire, provider.environment, auditerrors.ErrAuthentication, &LoginError{
			URL:        loginURL,
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(responseBody)),
		})
	}

	for _, cookie := range response.Cookies() {
		if cookie.Name == airflow.SessionCookieName && len(cookie.Value) > 0 {
			return cookie.Value, nil
		}
	}

	return "", auditerrors.WrapMessage(auditerrors.OperationCredentialAcquire, provider.environment, auditerrors.ErrAuthentication, sessionCookieMissingMessageConstant)
}

// The MWAA login endpoint answers with a redirect to the web UI once the session cookie is set.
func loginSucceeded(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < loginFailureStatusLowerBoundConstant
}

func describeAPIError(err error) error {
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		return fmt.Errorf(apiErrorTemplateConstant, apiError.ErrorCode(), apiError.ErrorMessage())
	}
	return err
}
