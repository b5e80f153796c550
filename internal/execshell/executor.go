package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
)

// CommandName identifies an executable invoked by the executor.
type CommandName string

const (
	// CommandGit invokes the git client.
	CommandGit    CommandName = "git"
	// CommandBridge invokes the legacy version-control bridge. The executable
	// is configurable, see WithBridgeExecutable.
	CommandBridge CommandName = "git-tfs"
)

const (
	loggerMissingMessageConstant        = "logger not configured"
	commandRunnerMissingMessageConstant = "command runner not configured"
	commandExecutionTemplateConstant    = "%s: %s"
	commandFieldConstant                = "command"
	workingDirectoryFieldConstant       = "working_directory"
	exitCodeFieldConstant               = "exit_code"
	durationFieldConstant               = "duration"
	timeoutFieldConstant                = "timeout"
)

var (
	// ErrLoggerNotConfigured indicates the executor was created without a logger.
	ErrLoggerNotConfigured        = errors.New(loggerMissingMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the executor was created without a runner.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerMissingMessageConstant)
)

// CommandDetails describes how a command is invoked.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	Timeout              time.Duration
}

// ShellCommand couples an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures process output.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner runs a command and reports its output.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command that exited with a non-zero status.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error renders the failure with credentials redacted.
func (commandError CommandFailedError) Error() string {
	return CommandMessageFormatter{}.BuildFailureMessage(commandError.Command, commandError.Result)
}

// CommandExecutionError reports a command that could not be run to completion.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error renders the failure with credentials redacted.
func (commandError CommandExecutionError) Error() string {
	causeMessage := unknownFailureMessageConstant
	if commandError.Cause != nil {
		causeMessage = commandError.Cause.Error()
	}
	return fmt.Sprintf(commandExecutionTemplateConstant, CommandMessageFormatter{}.formatCommandLabel(commandError.Command), causeMessage)
}

// Unwrap exposes the underlying cause.
func (commandError CommandExecutionError) Unwrap() error {
	return commandError.Cause
}

// ShellExecutorOption customizes a ShellExecutor.
type ShellExecutorOption func(executor *ShellExecutor)

// WithCommandEventObserver registers an observer for command lifecycle events.
func WithCommandEventObserver(observer CommandEventObserver) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		if observer != nil {
			executor.observer = observer
		}
	}
}

// WithBridgeExecutable overrides the executable used for bridge commands.
func WithBridgeExecutable(executable string) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		trimmedExecutable := strings.TrimSpace(executable)
		if len(trimmedExecutable) > 0 {
			executor.bridgeExecutable = CommandName(trimmedExecutable)
		}
	}
}

// WithDefaultTimeout bounds commands that do not carry their own timeout.
func WithDefaultTimeout(timeout time.Duration) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		if timeout > 0 {
			executor.defaultTimeout = timeout
		}
	}
}

// WithClock replaces the wall clock used to measure command durations.
func WithClock(executorClock clock.Clock) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		if executorClock != nil {
			executor.clock = executorClock
		}
	}
}

// ShellExecutor runs external commands with logging and timeouts.
type ShellExecutor struct {
	logger           *zap.Logger
	runner           CommandRunner
	observer         CommandEventObserver
	formatter        CommandMessageFormatter
	clock            clock.Clock
	bridgeExecutable CommandName
	defaultTimeout   time.Duration
}

// NewShellExecutor constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, options ...ShellExecutorOption) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	executor := &ShellExecutor{
		logger:           logger,
		runner:           runner,
		observer:         noopCommandEventObserver{},
		formatter:        CommandMessageFormatter{},
		clock:            clock.WallClock,
		bridgeExecutable: CommandBridge,
	}
	for _, option := range options {
		option(executor)
	}
	return executor, nil
}

// ExecuteGit runs git with the supplied details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteBridge runs the legacy version-control bridge with the supplied details.
func (executor *ShellExecutor) ExecuteBridge(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: executor.bridgeExecutable, Details: details})
}

// Execute runs the command. A non-zero exit status yields CommandFailedError;
// a process that could not be started or was cancelled yields CommandExecutionError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	timeout := command.Details.Timeout
	if timeout <= 0 {
		timeout = executor.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		executionContext, cancel = context.WithTimeout(executionContext, timeout)
		defer cancel()
	}

	commandLabel := executor.formatter.formatCommandLabel(command)
	executor.logger.Debug(executor.formatter.BuildStartedMessage(command), zap.String(workingDirectoryFieldConstant, command.Details.WorkingDirectory), zap.Duration(timeoutFieldConstant, timeout))
	executor.observer.CommandStarted(CommandEvent{Command: command})

	startedAt := executor.clock.Now()
	executionResult, runError := executor.runner.Run(executionContext, command)
	event := CommandEvent{Command: command, Result: executionResult, Failure: runError, Elapsed: executor.clock.Now().Sub(startedAt)}
	executor.observer.CommandFinished(event)

	if runError != nil {
		executor.logger.Error(executor.formatter.BuildExecutionFailureMessage(command, runError), zap.String(commandFieldConstant, commandLabel), zap.Duration(durationFieldConstant, event.Elapsed))
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}
	if executionResult.ExitCode != 0 {
		executor.logger.Warn(executor.formatter.BuildFailureMessage(command, executionResult), zap.Int(exitCodeFieldConstant, executionResult.ExitCode), zap.Duration(durationFieldConstant, event.Elapsed))
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logger.Debug(executor.formatter.BuildSuccessMessage(command), zap.Duration(durationFieldConstant, event.Elapsed))
	return executionResult, nil
}
