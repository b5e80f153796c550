package execshell

import "time"

// CommandEvent describes one command lifecycle notification. Result and
// Elapsed are set once the command finished; Failure is set when the process
// could not run to completion.
type CommandEvent struct {
	Command ShellCommand
	Result  ExecutionResult
	Failure error
	Elapsed time.Duration
}

// Succeeded reports whether the command finished with a zero exit status.
func (event CommandEvent) Succeeded() bool {
	return event.Failure == nil && event.Result.ExitCode == 0
}

// CommandEventObserver receives lifecycle notifications for external commands.
type CommandEventObserver interface {
	CommandStarted(event CommandEvent)
	CommandFinished(event CommandEvent)
}

type noopCommandEventObserver struct{}

func (noopCommandEventObserver) CommandStarted(CommandEvent) {}

func (noopCommandEventObserver) CommandFinished(CommandEvent) {}
