package ui

import (
	"time"

	"go.uber.org/zap"

	"github.com/temirov/orgmigrate/internal/execshell"
)

const (
	elapsedFieldConstant  = "elapsed"
	exitCodeFieldConstant = "exit_code"
	millisecondPrecision  = time.Millisecond
)

// ConsoleCommandEventLogger prints one line when an external command starts and
// one when it finishes. Failures are raised to warning or error level.
type ConsoleCommandEventLogger struct {
	logger    *zap.Logger
	formatter execshell.CommandMessageFormatter
}

// NewConsoleCommandEventLogger constructs a ConsoleCommandEventLogger.
func NewConsoleCommandEventLogger(logger *zap.Logger) *ConsoleCommandEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleCommandEventLogger{logger: logger}
}

// CommandStarted implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandStarted(event execshell.CommandEvent) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStartedMessage(event.Command))
}

// CommandFinished implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandFinished(event execshell.CommandEvent) {
	if eventLogger == nil {
		return
	}
	elapsedField := zap.Duration(elapsedFieldConstant, event.Elapsed.Round(millisecondPrecision))
	switch {
	case event.Failure != nil:
		eventLogger.logger.Error(eventLogger.formatter.BuildExecutionFailureMessage(event.Command, event.Failure), elapsedField)
	case event.Result.ExitCode != 0:
		eventLogger.logger.Warn(eventLogger.formatter.BuildFailureMessage(event.Command, event.Result), elapsedField, zap.Int(exitCodeFieldConstant, event.Result.ExitCode))
	default:
		eventLogger.logger.Info(eventLogger.formatter.BuildSuccessMessage(event.Command), elapsedField)
	}
}
