package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	auditcli "github.com/tyemirov/dagwatch/internal/audit/cli"
	historycli "github.com/tyemirov/dagwatch/internal/history/cli"
)

const commandBuildFailedMessageConstant = "unable to build command"

func (application *Application) registerCommands(cobraCommand *cobra.Command) {
	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	auditBuilder := auditcli.CommandBuilder{
		LoggerProvider:               loggerProvider,
		ConfigurationProvider:        application.auditCommandConfiguration,
		AirflowConfigurationProvider: application.airflowConfiguration,
	}
	application.addBuiltCommand(cobraCommand, auditOperationNameConstant, auditBuilder.Build)

	historyBuilder := historycli.CommandBuilder{
		LoggerProvider:       loggerProvider,
		DatabasePathProvider: application.historyDatabasePath,
	}
	application.addBuiltCommand(cobraCommand, historyCommandNameConstant, historyBuilder.Build)
}

func (application *Application) addBuiltCommand(parent *cobra.Command, commandName string, build func() (*cobra.Command, error)) {
	command, buildError := build()
	if buildError != nil {
		application.logger.Error(
			commandBuildFailedMessageConstant,
			zap.String(logFieldCommandNameConstant, commandName),
			zap.Error(buildError),
		)
		return
	}
	parent.AddCommand(command)
}
