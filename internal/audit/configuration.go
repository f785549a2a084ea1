package audit

import "strings"

const (
	defaultLookbackDaysConstant = 90
	defaultConcurrencyConstant  = 1
)

// CommandConfiguration captures persistent settings for the audit command.
type CommandConfiguration struct {
	EndDate         string `mapstructure:"end_date"`
	LookbackDays    int    `mapstructure:"lookback_days"`
	Prefix          string `mapstructure:"prefix"`
	Suffix          string `mapstructure:"suffix"`
	Format          string `mapstructure:"format"`
	Concurrency     int    `mapstructure:"concurrency"`
	HistoryDatabase string `mapstructure:"history_database"`
}

// DefaultCommandConfiguration returns baseline configuration values for the audit command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		LookbackDays: defaultLookbackDaysConstant,
		Format:       string(ReportFormatCSV),
		Concurrency:  defaultConcurrencyConstant,
	}
}

// Sanitize trims whitespace and applies defaults to unset configuration values.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration

	sanitized.EndDate = strings.TrimSpace(configuration.EndDate)
	sanitized.Prefix = strings.TrimSpace(configuration.Prefix)
	sanitized.Suffix = strings.TrimSpace(configuration.Suffix)
	sanitized.Format = strings.ToLower(strings.TrimSpace(configuration.Format))
	sanitized.HistoryDatabase = strings.TrimSpace(configuration.HistoryDatabase)

	if sanitized.LookbackDays < 0 {
		sanitized.LookbackDays = defaultLookbackDaysConstant
	}
	if len(sanitized.Format) == 0 {
		sanitized.Format = string(ReportFormatCSV)
	}
	if sanitized.Concurrency < 1 {
		sanitized.Concurrency = defaultConcurrencyConstant
	}

	return sanitized
}
