package airflow

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/tyemirov/dagwatch/internal/config"
	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

const (
	// SessionCookieName is the cookie carrying an authenticated Airflow web session.
	SessionCookieName = "session"

	authorizationHeaderNameConstant = "Authorization"
	contentTypeHeaderNameConstant   = "Content-Type"
	acceptHeaderNameConstant        = "Accept"
	jsonContentTypeConstant         = "application/json"
	basicAuthorizationPrefix        = "Basic "
	staticCredentialSubjectConstant = "airflow"
	baseURLParameterNameConstant    = "base_url"
	usernameParameterNameConstant   = "username"
	passwordParameterNameConstant   = "password"
)

// AuthContext carries the credentials attached to every Airflow API call.
// Exactly one of Headers or SessionCookie is populated.
type AuthContext struct {
	BaseURL       string
	Headers       map[string]string
	SessionCookie string
}

// Clone returns a copy that shares no mutable state with the receiver.
func (authContext AuthContext) Clone() AuthContext {
	cloned := AuthContext{BaseURL: authContext.BaseURL, SessionCookie: authContext.SessionCookie}
	if authContext.Headers != nil {
		cloned.Headers = make(map[string]string, len(authContext.Headers))
		for headerName, headerValue := range authContext.Headers {
			cloned.Headers[headerName] = headerValue
		}
	}
	return cloned
}

func (authContext AuthContext) apply(request *http.Request) {
	for headerName, headerValue := range authContext.Headers {
		request.Header.Set(headerName, headerValue)
	}
	if len(authContext.SessionCookie) > 0 {
		request.AddCookie(&http.Cookie{Name: SessionCookieName, Value: authContext.SessionCookie})
	}
}

// CredentialProvider obtains a fresh AuthContext.
type CredentialProvider interface {
	Acquire(executionContext context.Context) (AuthContext, error)
}

// StaticCredentialProvider issues HTTP basic authentication headers for a fixed user.
type StaticCredentialProvider struct {
	baseURL  string
	username string
	password string
}

// NewStaticCredentialProvider validates the connection parameters and constructs a StaticCredentialProvider.
func NewStaticCredentialProvider(baseURL string, username string, password string) (*StaticCredentialProvider, error) {
	missingParameters := make([]string, 0, 3)
	if config.IsAbsent(baseURL) {
		missingParameters = append(missingParameters, baseURLParameterNameConstant)
	}
	if config.IsAbsent(username) {
		missingParameters = append(missingParameters, usernameParameterNameConstant)
	}
	if config.IsAbsent(password) {
		missingParameters = append(missingParameters, passwordParameterNameConstant)
	}
	if len(missingParameters) > 0 {
		return nil, auditerrors.MissingParameters(staticCredentialSubjectConstant, missingParameters)
	}

	return &StaticCredentialProvider{baseURL: baseURL, username: username, password: password}, nil
}

// Acquire returns basic authentication headers. No network call is made.
func (provider *StaticCredentialProvider) Acquire(executionContext context.Context) (AuthContext, error) {
	encodedCredentials := base64.StdEncoding.EncodeToString([]byte(provider.username + ":" + provider.password))
	return AuthContext{
		BaseURL: provider.baseURL,
		Headers: map[string]string{
			authorizationHeaderNameConstant: basicAuthorizationPrefix + encodedCredentials,
			contentTypeHeaderNameConstant:   jsonContentTypeConstant,
		},
	}, nil
}
