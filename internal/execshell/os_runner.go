package execshell

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"os"
	"os/exec"
	"slices"
	"time"
)

const (
	environmentAssignmentSeparatorConstant = "="
	processWaitDelayConstant               = 5 * time.Second
	// DefaultOutputLimit bounds the bytes kept from each output stream.
	DefaultOutputLimit = 1 << 20
)

// OSCommandRunner executes commands through os/exec.
type OSCommandRunner struct {
	outputLimit int
}

// NewOSCommandRunner constructs a runner keeping at most DefaultOutputLimit
// trailing bytes of each output stream.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{outputLimit: DefaultOutputLimit}
}

// NewOSCommandRunnerWithOutputLimit constructs a runner keeping at most
// outputLimit trailing bytes of each output stream. Non-positive limits keep
// everything.
func NewOSCommandRunnerWithOutputLimit(outputLimit int) *OSCommandRunner {
	return &OSCommandRunner{outputLimit: outputLimit}
}

// Run executes the command. Environment variables apply to the child process
// only. Cancelling the context terminates the whole process group and returns
// the context error. A non-zero exit status is reported through ExitCode.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable := exec.CommandContext(executionContext, string(command.Name), command.Details.Arguments...)
	configureProcessTermination(executable)
	executable.WaitDelay = processWaitDelayConstant
	executable.Dir = command.Details.WorkingDirectory
	if len(command.Details.EnvironmentVariables) > 0 {
		executable.Env = mergeEnvironment(os.Environ(), command.Details.EnvironmentVariables)
	}
	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	standardOutput := &tailBuffer{limit: runner.outputLimit}
	standardError := &tailBuffer{limit: runner.outputLimit}
	executable.Stdout = standardOutput
	executable.Stderr = standardError

	runError := executable.Run()
	if contextError := executionContext.Err(); contextError != nil {
		return ExecutionResult{}, contextError
	}

	result := ExecutionResult{StandardOutput: standardOutput.String(), StandardError: standardError.String()}
	var exitError *exec.ExitError
	switch {
	case runError == nil:
		return result, nil
	case errors.As(runError, &exitError):
		result.ExitCode = exitError.ExitCode()
		return result, nil
	default:
		return ExecutionResult{}, runError
	}
}

// mergeEnvironment appends overrides in key order. os/exec keeps the last
// assignment of a duplicated key, so overrides win over inherited values.
func mergeEnvironment(baseEnvironment []string, overrides map[string]string) []string {
	mergedEnvironment := slices.Clone(baseEnvironment)
	for _, environmentKey := range slices.Sorted(maps.Keys(overrides)) {
		mergedEnvironment = append(mergedEnvironment, environmentKey+environmentAssignmentSeparatorConstant+overrides[environmentKey])
	}
	return mergedEnvironment
}

// tailBuffer keeps the trailing limit bytes written to it. Git reports the
// reason for a failure at the end of its output.
type tailBuffer struct {
	limit  int
	buffer []byte
}

func (tail *tailBuffer) Write(data []byte) (int, error) {
	tail.buffer = append(tail.buffer, data...)
	if tail.limit > 0 && len(tail.buffer) > tail.limit {
		tail.buffer = slices.Clone(tail.buffer[len(tail.buffer)-tail.limit:])
	}
	return len(data), nil
}

func (tail *tailBuffer) String() string {
	return string(tail.buffer)
}
