package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/dagwatch/internal/airflow"
	"github.com/tyemirov/dagwatch/internal/audit"
	"github.com/tyemirov/dagwatch/internal/history"
	flagutils "github.com/tyemirov/dagwatch/internal/utils/flags"
)

const (
	commandUseConstant              = "history"
	commandAliasConstant            = "h"
	commandShortDescriptionConstant = "List recorded audit passes"
	commandLongDescriptionConstant  = "Lists audit passes recorded in the history database, newest first, or renders the per-DAG report of one pass."
	databaseFlagNameConstant        = "history-db"
	databaseFlagUsageConstant       = "Path of the SQLite audit history database"
	limitFlagNameConstant           = "limit"
	limitFlagUsageConstant          = "Maximum number of passes to list"
	passFlagNameConstant            = "pass"
	passFlagUsageConstant           = "Render the per-DAG report of this pass id instead of the pass list"
	formatFlagNameConstant          = "format"
	formatFlagUsageConstant         = "Report format used with --pass"
	defaultLimitConstant            = 10
	missingDatabaseMessageConstant  = "no history database configured; specify --history-db or set operations audit history_database"
	invalidLimitMessageConstant     = "limit must be positive"
	historyListedMessageConstant    = "Listed audit history"
	databaseLogFieldConstant        = "database"
	passCountLogFieldConstant       = "passes"
	ratioPrecisionConstant          = 4
)

var passListHeader = []string{
	"pass_id",
	"started_at",
	"window_start",
	"window_end",
	"prefix",
	"suffix",
	"active_dags",
	"total_runs",
	"total_fails",
	"failure_ratio",
	"duration_ms",
}

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the history command.
type CommandBuilder struct {
	LoggerProvider       LoggerProvider
	DatabasePathProvider func() string
	StoreOpener          func(path string) (*history.Store, error)
}

// Build constructs the history command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:     commandUseConstant,
		Aliases: []string{commandAliasConstant},
		Short:   commandShortDescriptionConstant,
		Long:    commandLongDescriptionConstant,
		Args:    cobra.NoArgs,
		RunE:    builder.run,
	}

	command.Flags().String(databaseFlagNameConstant, "", databaseFlagUsageConstant)
	command.Flags().Int(limitFlagNameConstant, defaultLimitConstant, limitFlagUsageConstant)
	command.Flags().String(passFlagNameConstant, "", passFlagUsageConstant)
	command.Flags().String(formatFlagNameConstant, string(audit.ReportFormatCSV), flagutils.FormatChoiceUsage(string(audit.ReportFormatCSV), []string{string(audit.ReportFormatCSV), string(audit.ReportFormatJSON), string(audit.ReportFormatYAML)}, formatFlagUsageConstant))

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	databasePath := builder.resolveDatabasePath()
	flagDatabasePath, databaseChanged, databaseFlagError := flagutils.StringFlag(command, databaseFlagNameConstant)
	if databaseFlagError != nil {
		return databaseFlagError
	}
	if databaseChanged {
		databasePath = strings.TrimSpace(flagDatabasePath)
	}
	if len(databasePath) == 0 {
		return errors.New(missingDatabaseMessageConstant)
	}

	limit, _, limitError := flagutils.IntFlag(command, limitFlagNameConstant)
	if limitError != nil {
		return limitError
	}
	if limit < 1 {
		return errors.New(invalidLimitMessageConstant)
	}

	passID, _, passError := flagutils.StringFlag(command, passFlagNameConstant)
	if passError != nil {
		return passError
	}

	formatValue, _, formatFlagError := flagutils.StringFlag(command, formatFlagNameConstant)
	if formatFlagError != nil {
		return formatFlagError
	}
	reportFormat, formatError := audit.ParseReportFormat(formatValue)
	if formatError != nil {
		return formatError
	}

	store, openError := builder.openStore(databasePath)
	if openError != nil {
		return openError
	}
	defer store.Close()

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	if len(strings.TrimSpace(passID)) > 0 {
		result, loadError := store.Load(executionContext, passID)
		if loadError != nil {
			return loadError
		}
		return audit.WriteReport(command.OutOrStdout(), reportFormat, result)
	}

	records, recentError := store.Recent(executionContext, limit)
	if recentError != nil {
		return recentError
	}

	builder.resolveLogger().Debug(historyListedMessageConstant,
		zap.String(databaseLogFieldConstant, databasePath),
		zap.Int(passCountLogFieldConstant, len(records)),
	)

	return writePassList(command, records)
}

func writePassList(command *cobra.Command, records []history.PassRecord) error {
	csvWriter := csv.NewWriter(command.OutOrStdout())
	if writeError := csvWriter.Write(passListHeader); writeError != nil {
		return writeError
	}

	for _, record := range records {
		row := []string{
			record.PassID,
			airflow.FormatTimestamp(record.StartedAt),
			airflow.FormatTimestamp(record.WindowStart),
			airflow.FormatTimestamp(record.WindowEnd),
			record.Prefix,
			record.Suffix,
			strconv.Itoa(record.ActiveDAGs),
			strconv.Itoa(record.TotalRuns),
			strconv.Itoa(record.TotalFails),
			strconv.FormatFloat(record.FailureRatio, 'f', ratioPrecisionConstant, 64),
			strconv.FormatInt(record.Duration.Milliseconds(), 10),
		}
		if writeError := csvWriter.Write(row); writeError != nil {
			return writeError
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (builder *CommandBuilder) openStore(path string) (*history.Store, error) {
	if builder.StoreOpener != nil {
		return builder.StoreOpener(path)
	}
	return history.OpenExisting(path)
}

func (builder *CommandBuilder) resolveDatabasePath() string {
	if builder.DatabasePathProvider == nil {
		return ""
	}
	return strings.TrimSpace(builder.DatabasePathProvider())
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
