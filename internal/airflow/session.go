package airflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSessionTTLConstant         = 9 * time.Hour
	credentialProviderMissingMessage  = "credential provider must be provided"
	sessionRenewedMessageConstant     = "Acquired Airflow session"
	sessionRenewalFailedMessage       = "Airflow session acquisition failed"
	sessionExpiresAtLogFieldConstant  = "expires_at"
	sessionBaseURLLogFieldConstant    = "base_url"
	sessionCookieAuthLogFieldConstant = "session_cookie"
)

// SessionState records the current credentials and the instant they stop being trusted.
type SessionState struct {
	Auth       AuthContext
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Valid reports whether the session may still be used at the provided instant.
func (state SessionState) Valid(now time.Time) bool {
	return now.Before(state.ExpiresAt)
}

// SessionManagerConfiguration tunes session lifetime and the clock used to evaluate it.
type SessionManagerConfiguration struct {
	TTL   time.Duration
	Clock func() time.Time
}

// SessionManager hands out the current AuthContext and renews it lazily once it expires.
type SessionManager struct {
	logger   *zap.Logger
	provider CredentialProvider
	ttl      time.Duration
	clock    func() time.Time

	mutex    sync.Mutex
	state    SessionState
	hasState bool
}

// NewSessionManager constructs a SessionManager around the provided credential provider.
func NewSessionManager(logger *zap.Logger, provider CredentialProvider, configuration SessionManagerConfiguration) (*SessionManager, error) {
	if provider == nil {
		return nil, errors.New(credentialProviderMissingMessage)
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	resolvedTTL := configuration.TTL
	if resolvedTTL <= 0 {
		resolvedTTL = defaultSessionTTLConstant
	}

	resolvedClock := configuration.Clock
	if resolvedClock == nil {
		resolvedClock = time.Now
	}

	return &SessionManager{
		logger:   resolvedLogger,
		provider: provider,
		ttl:      resolvedTTL,
		clock:    resolvedClock,
	}, nil
}

// AuthContext returns a copy of the current credentials, acquiring new ones first when the session has expired.
// Concurrent callers observe a single renewal.
func (manager *SessionManager) AuthContext(executionContext context.Context) (AuthContext, error) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	now := manager.clock()
	if manager.hasState && manager.state.Valid(now) {
		return manager.state.Auth.Clone(), nil
	}

	acquired, acquireError := manager.provider.Acquire(executionContext)
	if acquireError != nil {
		manager.logger.Warn(sessionRenewalFailedMessage, zap.Error(acquireError))
		return AuthContext{}, acquireError
	}

	manager.state = SessionState{
		Auth:       acquired.Clone(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(manager.ttl),
	}
	manager.hasState = true

	manager.logger.Debug(
		sessionRenewedMessageConstant,
		zap.String(sessionBaseURLLogFieldConstant, acquired.BaseURL),
		zap.Bool(sessionCookieAuthLogFieldConstant, len(acquired.SessionCookie) > 0),
		zap.Time(sessionExpiresAtLogFieldConstant, manager.state.ExpiresAt),
	)

	return manager.state.Auth.Clone(), nil
}

// State returns a copy of the current session state when one has been acquired.
func (manager *SessionManager) State() (SessionState, bool) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if !manager.hasState {
		return SessionState{}, false
	}
	snapshot := manager.state
	snapshot.Auth = manager.state.Auth.Clone()
	return snapshot, true
}
