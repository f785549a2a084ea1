// Package config describes the Airflow connection and authentication settings shared by every command.
package config

import (
	"fmt"
	"strings"
	"time"

	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

// AuthMode selects how credentials for the Airflow API are obtained.
type AuthMode string

// Supported authentication modes.
const (
	AuthModeBasic AuthMode = "basic"
	AuthModeMWAA  AuthMode = "mwaa"
)

const (
	defaultPageSizeConstant             = 100
	defaultSessionTTLConstant           = 9 * time.Hour
	defaultRequestTimeoutConstant       = 30 * time.Second
	defaultLoginTimeoutConstant         = 50 * time.Second
	defaultRoleSessionNameConstant      = "dagwatch"
	airflowSubjectConstant              = "airflow"
	mwaaSubjectConstant                 = "airflow.mwaa"
	baseURLParameterConstant            = "base_url"
	usernameParameterConstant           = "username"
	passwordParameterConstant           = "password"
	regionParameterConstant             = "region"
	environmentParameterConstant        = "environment"
	authModeParameterConstant           = "auth_mode"
	nullSentinelConstant                = "null"
	unsetSentinelConstant               = "unset"
	unsupportedAuthModeTemplateConstant = "unsupported auth_mode %q"
)

// MWAAConfiguration describes the managed Airflow environment used for federated login.
type MWAAConfiguration struct {
	Region          string `mapstructure:"region"`
	Environment     string `mapstructure:"environment"`
	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
}

// AirflowConfiguration captures connection, pagination, and timeout settings for the Airflow API.
type AirflowConfiguration struct {
	BaseURL           string            `mapstructure:"base_url"`
	Username          string            `mapstructure:"username"`
	Password          string            `mapstructure:"password"`
	AuthMode          string            `mapstructure:"auth_mode"`
	PageSize          int               `mapstructure:"page_size"`
	RunPageLimit      int               `mapstructure:"run_page_limit"`
	SessionTTL        time.Duration     `mapstructure:"session_ttl"`
	RequestTimeout    time.Duration     `mapstructure:"request_timeout"`
	LoginTimeout      time.Duration     `mapstructure:"login_timeout"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	MWAA              MWAAConfiguration `mapstructure:"mwaa"`
}

// DefaultAirflowConfiguration returns the baseline connection settings.
func DefaultAirflowConfiguration() AirflowConfiguration {
	return AirflowConfiguration{
		PageSize:       defaultPageSizeConstant,
		SessionTTL:     defaultSessionTTLConstant,
		RequestTimeout: defaultRequestTimeoutConstant,
		LoginTimeout:   defaultLoginTimeoutConstant,
	}
}

// IsAbsent reports whether a configured value is empty or one of the placeholder sentinels NULL or unset.
func IsAbsent(value string) bool {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return true
	}
	return strings.EqualFold(trimmedValue, nullSentinelConstant) || strings.EqualFold(trimmedValue, unsetSentinelConstant)
}

// Sanitize trims values, clears sentinel placeholders, and restores defaults for non-positive settings.
func (configuration AirflowConfiguration) Sanitize() AirflowConfiguration {
	defaults := DefaultAirflowConfiguration()
	sanitized := configuration

	sanitized.BaseURL = strings.TrimRight(presentOrEmpty(configuration.BaseURL), "/")
	sanitized.Username = presentOrEmpty(configuration.Username)
	sanitized.Password = presentOrEmpty(configuration.Password)
	sanitized.AuthMode = strings.ToLower(presentOrEmpty(configuration.AuthMode))
	sanitized.MWAA = MWAAConfiguration{
		Region:          presentOrEmpty(configuration.MWAA.Region),
		Environment:     presentOrEmpty(configuration.MWAA.Environment),
		RoleARN:         presentOrEmpty(configuration.MWAA.RoleARN),
		RoleSessionName: presentOrEmpty(configuration.MWAA.RoleSessionName),
	}
	if len(sanitized.MWAA.RoleARN) > 0 && len(sanitized.MWAA.RoleSessionName) == 0 {
		sanitized.MWAA.RoleSessionName = defaultRoleSessionNameConstant
	}

	if sanitized.PageSize <= 0 {
		sanitized.PageSize = defaults.PageSize
	}
	if sanitized.RunPageLimit < 0 {
		sanitized.RunPageLimit = 0
	}
	if sanitized.SessionTTL <= 0 {
		sanitized.SessionTTL = defaults.SessionTTL
	}
	if sanitized.RequestTimeout <= 0 {
		sanitized.RequestTimeout = defaults.RequestTimeout
	}
	if sanitized.LoginTimeout <= 0 {
		sanitized.LoginTimeout = defaults.LoginTimeout
	}
	if sanitized.RequestsPerSecond < 0 {
		sanitized.RequestsPerSecond = 0
	}

	return sanitized
}

// ResolvedAuthMode returns the explicit auth mode or infers MWAA when an environment name is configured.
func (configuration AirflowConfiguration) ResolvedAuthMode() AuthMode {
	explicitMode := AuthMode(strings.ToLower(presentOrEmpty(configuration.AuthMode)))
	if len(explicitMode) > 0 {
		return explicitMode
	}
	if !IsAbsent(configuration.MWAA.Environment) {
		return AuthModeMWAA
	}
	return AuthModeBasic
}

// Validate reports every missing parameter required by the resolved auth mode in a single error.
func (configuration AirflowConfiguration) Validate() error {
	switch configuration.ResolvedAuthMode() {
	case AuthModeBasic:
		missingParameters := collectMissing(
			namedValue{name: baseURLParameterConstant, value: configuration.BaseURL},
			namedValue{name: usernameParameterConstant, value: configuration.Username},
			namedValue{name: passwordParameterConstant, value: configuration.Password},
		)
		if len(missingParameters) > 0 {
			return auditerrors.MissingParameters(airflowSubjectConstant, missingParameters)
		}
	case AuthModeMWAA:
		missingParameters := collectMissing(
			namedValue{name: regionParameterConstant, value: configuration.MWAA.Region},
			namedValue{name: environmentParameterConstant, value: configuration.MWAA.Environment},
		)
		if len(missingParameters) > 0 {
			return auditerrors.MissingParameters(mwaaSubjectConstant, missingParameters)
		}
	default:
		return auditerrors.WrapMessage(
			auditerrors.OperationConfigurationValidate,
			authModeParameterConstant,
			auditerrors.ErrConfiguration,
			fmt.Sprintf(unsupportedAuthModeTemplateConstant, configuration.ResolvedAuthMode()),
		)
	}
	return nil
}

type namedValue struct {
	name  string
	value string
}

func collectMissing(values ...namedValue) []string {
	missing := make([]string, 0, len(values))
	for _, candidate := range values {
		if IsAbsent(candidate.value) {
			missing = append(missing, candidate.name)
		}
	}
	return missing
}

func presentOrEmpty(value string) string {
	if IsAbsent(value) {
		return ""
	}
	return strings.TrimSpace(value)
}
