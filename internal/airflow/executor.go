package airflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

const (
	tracerNameConstant                     = "github.com/tyemirov/dagwatch/internal/airflow"
	requestSpanNameConstant                = "airflow.request"
	defaultRequestTimeoutConstant          = 30 * time.Second
	authSourceMissingMessageConstant       = "auth context source must be provided"
	requestBodyEncodeErrorTemplateConstant = "unable to encode request body for %s %s: %w"
	requestCreationErrorTemplateConstant   = "unable to create %s request for %s: %w"
	baseURLParseErrorTemplateConstant      = "unable to parse base URL %q: %w"
	requestLogMessageConstant              = "Issuing Airflow request"
	requestFailedLogMessageConstant        = "Airflow request failed"
	methodLogFieldConstant                 = "method"
	urlLogFieldConstant                    = "url"
	statusCodeLogFieldConstant             = "status_code"
	durationLogFieldConstant               = "duration"
	httpMethodAttributeConstant            = "http.request.method"
	httpURLAttributeConstant               = "url.full"
	httpStatusAttributeConstant            = "http.response.status_code"
	requestFailedSpanStatusConstant        = "airflow request failed"
)

// HTTPClient abstracts the Do method of http.Client for easier testing.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// AuthContextSource supplies the credentials attached to each request.
type AuthContextSource interface {
	AuthContext(executionContext context.Context) (AuthContext, error)
}

// ExecutorConfiguration tunes per-request timeouts and optional client-side pacing.
type ExecutorConfiguration struct {
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Tracer            trace.Tracer
}

// RequestExecutor issues authenticated Airflow API calls and normalizes failures into RequestError values.
type RequestExecutor struct {
	logger         *zap.Logger
	authSource     AuthContextSource
	httpClient     HTTPClient
	requestTimeout time.Duration
	limiter        *rate.Limiter
	tracer         trace.Tracer
}

// NewRequestExecutor constructs a RequestExecutor with sane defaults.
func NewRequestExecutor(logger *zap.Logger, authSource AuthContextSource, httpClient HTTPClient, configuration ExecutorConfiguration) (*RequestExecutor, error) {
	if authSource == nil {
		return nil, errors.New(authSourceMissingMessageConstant)
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	resolvedClient := httpClient
	if resolvedClient == nil {
		resolvedClient = http.DefaultClient
	}

	resolvedTimeout := configuration.RequestTimeout
	if resolvedTimeout <= 0 {
		resolvedTimeout = defaultRequestTimeoutConstant
	}

	var limiter *rate.Limiter
	if configuration.RequestsPerSecond > 0 {
		burst := int(configuration.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(configuration.RequestsPerSecond), burst)
	}

	resolvedTracer := configuration.Tracer
	if resolvedTracer == nil {
		resolvedTracer = otel.Tracer(tracerNameConstant)
	}

	return &RequestExecutor{
		logger:         resolvedLogger,
		authSource:     authSource,
		httpClient:     resolvedClient,
		requestTimeout: resolvedTimeout,
		limiter:        limiter,
		tracer:         resolvedTracer,
	}, nil
}

// Execute sends method to path below the session's base URL and returns the response body on a 2xx status.
// A non-nil body is encoded as JSON.
func (executor *RequestExecutor) Execute(executionContext context.Context, method string, path string, query url.Values, body any) ([]byte, error) {
	authContext, authError := executor.authSource.AuthContext(executionContext)
	if authError != nil {
		return nil, authError
	}

	requestURL, urlError := buildRequestURL(authContext.BaseURL, path, query)
	if urlError != nil {
		return nil, urlError
	}

	if executor.limiter != nil {
		if waitError := executor.limiter.Wait(executionContext); waitError != nil {
			return nil, &auditerrors.RequestError{Method: method, URL: requestURL, Cause: waitError}
		}
	}

	var requestBody io.Reader
	if body != nil {
		encodedBody, encodeError := json.Marshal(body)
		if encodeError != nil {
			return nil, fmt.Errorf(requestBodyEncodeErrorTemplateConstant, method, requestURL, encodeError)
		}
		requestBody = bytes.NewReader(encodedBody)
	}

	requestContext, cancel := context.WithTimeout(executionContext, executor.requestTimeout)
	defer cancel()

	requestContext, span := executor.tracer.Start(
		requestContext,
		requestSpanNameConstant,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(httpMethodAttributeConstant, method),
			attribute.String(httpURLAttributeConstant, requestURL),
		),
	)
	defer span.End()

	httpRequest, requestCreationError := http.NewRequestWithContext(requestContext, method, requestURL, requestBody)
	if requestCreationError != nil {
		return nil, fmt.Errorf(requestCreationErrorTemplateConstant, method, requestURL, requestCreationError)
	}
	httpRequest.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)
	if body != nil {
		httpRequest.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
	}
	authContext.apply(httpRequest)

	executor.logger.Debug(
		requestLogMessageConstant,
		zap.String(methodLogFieldConstant, method),
		zap.String(urlLogFieldConstant, requestURL),
	)

	startedAt := time.Now()
	httpResponse, transportError := executor.httpClient.Do(httpRequest)
	if transportError != nil {
		requestError := &auditerrors.RequestError{Method: method, URL: requestURL, Cause: transportError}
		executor.recordFailure(span, requestError, time.Since(startedAt))
		return nil, requestError
	}
	defer httpResponse.Body.Close()

	span.SetAttributes(attribute.Int(httpStatusAttributeConstant, httpResponse.StatusCode))

	responseBody, readError := io.ReadAll(httpResponse.Body)
	if readError != nil {
		requestError := &auditerrors.RequestError{Method: method, URL: requestURL, StatusCode: httpResponse.StatusCode, Cause: readError}
		executor.recordFailure(span, requestError, time.Since(startedAt))
		return nil, requestError
	}

	if httpResponse.StatusCode < http.StatusOK || httpResponse.StatusCode >= http.StatusMultipleChoices {
		requestError := &auditerrors.RequestError{
			Method:     method,
			URL:        requestURL,
			StatusCode: httpResponse.StatusCode,
			Body:       strings.TrimSpace(string(responseBody)),
		}
		executor.recordFailure(span, requestError, time.Since(startedAt))
		return nil, requestError
	}

	return responseBody, nil
}

func (executor *RequestExecutor) recordFailure(span trace.Span, requestError *auditerrors.RequestError, elapsed time.Duration) {
	span.RecordError(requestError)
	span.SetStatus(codes.Error, requestFailedSpanStatusConstant)
	executor.logger.Debug(
		requestFailedLogMessageConstant,
		zap.String(methodLogFieldConstant, requestError.Method),
		zap.String(urlLogFieldConstant, requestError.URL),
		zap.Int(statusCodeLogFieldConstant, requestError.StatusCode),
		zap.Duration(durationLogFieldConstant, elapsed),
		zap.Error(requestError),
	)
}

func buildRequestURL(baseURL string, path string, query url.Values) (string, error) {
	parsedBaseURL, parseError := url.Parse(strings.TrimSpace(baseURL))
	if parseError != nil {
		return "", fmt.Errorf(baseURLParseErrorTemplateConstant, baseURL, parseError)
	}

	parsedBaseURL.Path = strings.TrimSuffix(parsedBaseURL.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	parsedBaseURL.RawQuery = ""
	if len(query) > 0 {
		parsedBaseURL.RawQuery = query.Encode()
	}

	return parsedBaseURL.String(), nil
}
