package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebugStringConstant          = "debug"
	logLevelInfoStringConstant           = "info"
	logLevelWarnStringConstant           = "warn"
	logLevelErrorStringConstant          = "error"
	logFormatStructuredStringConstant    = "structured"
	logFormatConsoleStringConstant       = "console"
	unsupportedLogLevelTemplateConstant  = "unsupported log level: %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format: %s"
)

// LogLevel enumerates supported logging granularities.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = LogLevel(logLevelDebugStringConstant)
	LogLevelInfo  LogLevel = LogLevel(logLevelInfoStringConstant)
	LogLevelWarn  LogLevel = LogLevel(logLevelWarnStringConstant)
	LogLevelError LogLevel = LogLevel(logLevelErrorStringConstant)
)

// LogFormat enumerates supported logger output encodings.
type LogFormat string

// Supported log formats.
const (
	LogFormatStructured LogFormat = LogFormat(logFormatStructuredStringConstant)
	LogFormatConsole    LogFormat = LogFormat(logFormatConsoleStringConstant)
)

var logLevelMapping = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

// LoggerFactoryOption customizes a LoggerFactory.
type LoggerFactoryOption func(factory *LoggerFactory)

// WithLoggerOutput redirects log output away from standard error.
func WithLoggerOutput(writer io.Writer) LoggerFactoryOption {
	return func(factory *LoggerFactory) {
		if writer != nil {
			factory.output = zapcore.AddSync(writer)
		}
	}
}

// WithLoggerFields attaches fields to every entry of every created logger.
func WithLoggerFields(fields ...zap.Field) LoggerFactoryOption {
	return func(factory *LoggerFactory) {
		factory.fields = append(factory.fields, fields...)
	}
}

// LoggerFactory builds zap.Logger instances with consistent configuration.
type LoggerFactory struct {
	output zapcore.WriteSyncer
	fields []zap.Field
}

// NewLoggerFactory constructs a logger factory writing to standard error.
func NewLoggerFactory(options ...LoggerFactoryOption) *LoggerFactory {
	factory := &LoggerFactory{output: zapcore.Lock(os.Stderr)}
	for _, option := range options {
		option(factory)
	}
	return factory
}

// NormalizeLogLevel lowercases and trims a configured log level.
func NormalizeLogLevel(value string) LogLevel {
	return LogLevel(strings.ToLower(strings.TrimSpace(value)))
}

// NormalizeLogFormat lowercases and trims a configured log format.
func NormalizeLogFormat(value string) LogFormat {
	return LogFormat(strings.ToLower(strings.TrimSpace(value)))
}

// CreateLogger produces a zap.Logger honoring the requested log level and format.
// Structured output is JSON with ISO-8601 timestamps and caller information.
// Console output is human readable and omits callers and stack traces.
// Entries are never sampled so that every per-entity outcome reaches the log.
func (factory *LoggerFactory) CreateLogger(requestedLogLevel LogLevel, requestedLogFormat LogFormat) (*zap.Logger, error) {
	zapLogLevel, levelExists := logLevelMapping[requestedLogLevel]
	if !levelExists {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, requestedLogLevel)
	}

	var (
		encoder       zapcore.Encoder
		loggerOptions []zap.Option
	)
	switch requestedLogFormat {
	case LogFormatStructured:
		encoderConfiguration := zap.NewProductionEncoderConfig()
		encoderConfiguration.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfiguration)
		loggerOptions = append(loggerOptions, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	case LogFormatConsole:
		encoderConfiguration := zap.NewDevelopmentEncoderConfig()
		encoderConfiguration.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfiguration.CallerKey = zapcore.OmitKey
		encoder = zapcore.NewConsoleEncoder(encoderConfiguration)
	default:
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, requestedLogFormat)
	}

	output := factory.output
	if output == nil {
		output = zapcore.Lock(os.Stderr)
	}

	logger := zap.New(zapcore.NewCore(encoder, output, zap.NewAtomicLevelAt(zapLogLevel)), loggerOptions...)
	if len(factory.fields) > 0 {
		logger = logger.With(factory.fields...)
	}
	return logger, nil
}
