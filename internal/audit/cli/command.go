package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/dagwatch/internal/audit"
	"github.com/tyemirov/dagwatch/internal/config"
	flagutils "github.com/tyemirov/dagwatch/internal/utils/flags"
)

const (
	commandUseConstant                 = "audit"
	commandAliasConstant               = "a"
	commandShortDescriptionConstant    = "Compute the DAG run failure ratio over an audit window"
	commandLongDescriptionConstant     = "Enumerates active Airflow DAGs, keeps those matching the prefix and suffix filters, counts their runs and failures over the audit window, and reports the consolidated failure ratio."
	formatFlagNameConstant             = "format"
	formatFlagUsageConstant            = "Per-DAG report format"
	concurrencyFlagNameConstant        = "concurrency"
	concurrencyFlagUsageConstant       = "Number of DAGs fetched in parallel"
	historyFlagNameConstant            = "history-db"
	historyFlagUsageConstant           = "Path of the SQLite audit history database (recording is skipped when empty)"
	summaryLineTemplateConstant        = "%s\n"
	historyDisabledMessageConstant     = "Audit history recording disabled"
	recorderCloseFailedMessageConstant = "Closing audit history failed"
	historyPathLogFieldConstant        = "history_database"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the audit command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        func() audit.CommandConfiguration
	AirflowConfigurationProvider func() config.AirflowConfiguration
	SourceFactory                SourceFactory
	RecorderFactory              RecorderFactory
	Clock                        func() time.Time
}

type commandOptions struct {
	request         audit.Request
	format          audit.ReportFormat
	concurrency     int
	historyDatabase string
}

// Build constructs the audit command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:     commandUseConstant,
		Aliases: []string{commandAliasConstant},
		Short:   commandShortDescriptionConstant,
		Long:    commandLongDescriptionConstant,
		Args:    builder.noArgumentValidator(),
	}

	defaults := audit.DefaultCommandConfiguration()
	windowValues := flagutils.BindAuditWindowFlags(command, flagutils.AuditWindowFlagValues{LookbackDays: defaults.LookbackDays})

	formatChoices := []string{string(audit.ReportFormatCSV), string(audit.ReportFormatJSON), string(audit.ReportFormatYAML)}
	command.Flags().String(formatFlagNameConstant, defaults.Format, flagutils.FormatChoiceUsage(defaults.Format, formatChoices, formatFlagUsageConstant))
	command.Flags().Int(concurrencyFlagNameConstant, defaults.Concurrency, concurrencyFlagUsageConstant)
	command.Flags().String(historyFlagNameConstant, "", historyFlagUsageConstant)

	command.RunE = func(command *cobra.Command, arguments []string) error {
		return builder.run(command, *windowValues)
	}

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, windowValues flagutils.AuditWindowFlagValues) error {
	options, optionsError := builder.parseOptions(command, windowValues)
	if optionsError != nil {
		return optionsError
	}

	airflowConfiguration := builder.resolveAirflowConfiguration()
	if validationError := airflowConfiguration.Validate(); validationError != nil {
		return validationError
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}
	logger := builder.resolveLogger()

	source, sourceError := builder.resolveSourceFactory()(executionContext, logger, airflowConfiguration)
	if sourceError != nil {
		return sourceError
	}

	serviceConfiguration := audit.ServiceConfiguration{
		Concurrency: options.concurrency,
		Clock:       builder.Clock,
	}

	if len(options.historyDatabase) > 0 {
		recorder, closeRecorder, recorderError := builder.resolveRecorderFactory()(options.historyDatabase)
		if recorderError != nil {
			return recorderError
		}
		defer func() {
			if closeError := closeRecorder(); closeError != nil {
				logger.Warn(recorderCloseFailedMessageConstant, zap.String(historyPathLogFieldConstant, options.historyDatabase), zap.Error(closeError))
			}
		}()
		serviceConfiguration.Recorder = recorder
	} else {
		logger.Debug(historyDisabledMessageConstant)
	}

	service, serviceError := audit.NewService(logger, source, serviceConfiguration)
	if serviceError != nil {
		return serviceError
	}

	result, runError := service.Run(executionContext, options.request)
	if runError != nil && len(result.PassID) == 0 {
		return runError
	}

	if writeError := audit.WriteReport(command.OutOrStdout(), options.format, result); writeError != nil {
		return writeError
	}
	fmt.Fprintf(command.ErrOrStderr(), summaryLineTemplateConstant, audit.RenderSummaryLine(result))

	return runError
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, windowValues flagutils.AuditWindowFlagValues) (commandOptions, error) {
	configuration := builder.resolveConfiguration()

	window := flagutils.ResolveAuditWindow(command, windowValues, flagutils.AuditWindowFlagValues{
		EndDate:      configuration.EndDate,
		LookbackDays: configuration.LookbackDays,
		Prefix:       configuration.Prefix,
		Suffix:       configuration.Suffix,
	})

	endDate, endDateError := audit.ParseEndDate(window.EndDate)
	if endDateError != nil {
		return commandOptions{}, endDateError
	}

	formatValue := configuration.Format
	flagFormat, formatChanged, formatFlagError := flagutils.StringFlag(command, formatFlagNameConstant)
	if formatFlagError != nil {
		return commandOptions{}, formatFlagError
	}
	if formatChanged {
		formatValue = flagFormat
	}
	reportFormat, formatError := audit.ParseReportFormat(formatValue)
	if formatError != nil {
		return commandOptions{}, formatError
	}

	concurrency := configuration.Concurrency
	flagConcurrency, concurrencyChanged, concurrencyFlagError := flagutils.IntFlag(command, concurrencyFlagNameConstant)
	if concurrencyFlagError != nil {
		return commandOptions{}, concurrencyFlagError
	}
	if concurrencyChanged {
		concurrency = flagConcurrency
	}

	historyDatabase := configuration.HistoryDatabase
	flagHistory, historyChanged, historyFlagError := flagutils.StringFlag(command, historyFlagNameConstant)
	if historyFlagError != nil {
		return commandOptions{}, historyFlagError
	}
	if historyChanged {
		historyDatabase = strings.TrimSpace(flagHistory)
	}

	return commandOptions{
		request: audit.Request{
			EndDate:      endDate,
			LookbackDays: window.LookbackDays,
			Prefix:       window.Prefix,
			Suffix:       window.Suffix,
		},
		format:          reportFormat,
		concurrency:     concurrency,
		historyDatabase: historyDatabase,
	}, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveConfiguration() audit.CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return audit.DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveAirflowConfiguration() config.AirflowConfiguration {
	if builder.AirflowConfigurationProvider == nil {
		return config.DefaultAirflowConfiguration()
	}
	return builder.AirflowConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveSourceFactory() SourceFactory {
	if builder.SourceFactory == nil {
		return defaultSourceFactory
	}
	return builder.SourceFactory
}

func (builder *CommandBuilder) resolveRecorderFactory() RecorderFactory {
	if builder.RecorderFactory == nil {
		return defaultRecorderFactory
	}
	return builder.RecorderFactory
}

func (builder *CommandBuilder) noArgumentValidator() cobra.PositionalArgs {
	return func(command *cobra.Command, arguments []string) error {
		if len(arguments) == 0 {
			return nil
		}
		_ = command.Help()
		return cobra.NoArgs(command, arguments)
	}
}
