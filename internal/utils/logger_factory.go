package utils

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel enumerates supported diagnostic log levels.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat enumerates supported log encodings.
type LogFormat string

// Supported log formats.
const (
	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level %q"
	unsupportedLogFormatTemplateConstant = "unsupported log format %q"
	timestampFieldNameConstant           = "timestamp"
	messageFieldNameConstant             = "msg"
	levelFieldNameConstant               = "level"
	loggerFieldNameConstant              = "logger"
	callerFieldNameConstant              = "caller"
)

var supportedLogLevels = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

// LoggerOutputs groups the loggers produced for a command invocation.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
}

// LoggerFactory creates zap loggers for the requested level and format.
type LoggerFactory struct{}

// NewLoggerFactory constructs a LoggerFactory.
func NewLoggerFactory() LoggerFactory {
	return LoggerFactory{}
}

// CreateLoggerOutputs builds the diagnostic and console loggers writing to standard error.
func (factory LoggerFactory) CreateLoggerOutputs(requestedLevel LogLevel, requestedFormat LogFormat) (LoggerOutputs, error) {
	zapLevel, levelSupported := supportedLogLevels[LogLevel(strings.ToLower(strings.TrimSpace(string(requestedLevel))))]
	if !levelSupported {
		return LoggerOutputs{}, fmt.Errorf(unsupportedLogLevelTemplateConstant, requestedLevel)
	}

	outputSink := zapcore.AddSync(NewFlushingWriter(os.Stderr))
	levelEnabler := zap.NewAtomicLevelAt(zapLevel)

	switch LogFormat(strings.ToLower(strings.TrimSpace(string(requestedFormat)))) {
	case LogFormatStructured:
		diagnosticCore := zapcore.NewCore(zapcore.NewJSONEncoder(structuredEncoderConfiguration()), outputSink, levelEnabler)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(diagnosticCore, zap.AddCaller()),
			ConsoleLogger:    zap.NewNop(),
		}, nil
	case LogFormatConsole:
		diagnosticCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfiguration()), outputSink, levelEnabler)
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfiguration()), outputSink, levelEnabler)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(diagnosticCore),
			ConsoleLogger:    zap.New(consoleCore),
		}, nil
	default:
		return LoggerOutputs{}, fmt.Errorf(unsupportedLogFormatTemplateConstant, requestedFormat)
	}
}

func structuredEncoderConfiguration() zapcore.EncoderConfig {
	encoderConfiguration := zap.NewProductionEncoderConfig()
	encoderConfiguration.TimeKey = timestampFieldNameConstant
	encoderConfiguration.MessageKey = messageFieldNameConstant
	encoderConfiguration.LevelKey = levelFieldNameConstant
	encoderConfiguration.NameKey = loggerFieldNameConstant
	encoderConfiguration.CallerKey = callerFieldNameConstant
	encoderConfiguration.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderConfiguration
}

func consoleEncoderConfiguration() zapcore.EncoderConfig {
	encoderConfiguration := zap.NewDevelopmentEncoderConfig()
	encoderConfiguration.TimeKey = ""
	encoderConfiguration.CallerKey = ""
	encoderConfiguration.NameKey = ""
	encoderConfiguration.EncodeLevel = zapcore.CapitalLevelEncoder
	return encoderConfiguration
}
