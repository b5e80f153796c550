package execshell

import (
	"fmt"
	"net/url"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	flagPrefixConstant                      = "-"
	urlSchemeSeparatorConstant              = "://"
	quoteCharactersConstant                 = "'\""
	redactedCredentialConstant              = "xxxxx"
)

const (
	gitCloneSubcommandNameConstant      = "clone"
	gitRemoteSubcommandNameConstant     = "remote"
	gitRemoteAddSubcommandNameConstant  = "add"
	gitPushSubcommandNameConstant       = "push"
	gitLSRemoteSubcommandNameConstant   = "ls-remote"
	gitForEachRefSubcommandNameConstant = "for-each-ref"
	gitMirrorFlagConstant               = "--mirror"
)

const (
	gitMirrorCloneStartTemplateConstant                = "Mirroring %s into %s"
	gitMirrorCloneSuccessTemplateConstant              = "Mirrored %s into %s"
	gitMirrorCloneFailureTemplateConstant              = "Failed to mirror %s into %s (exit code %d%s)"
	gitMirrorCloneExecutionFailureTemplateConstant     = "Unable to mirror %s into %s: %s"
	gitRemoteAddStartTemplateConstant                  = "Adding %s remote %s in %s"
	gitRemoteAddSuccessTemplateConstant                = "Added %s remote %s in %s"
	gitRemoteAddFailureTemplateConstant                = "Failed to add %s remote %s in %s (exit code %d%s)"
	gitRemoteAddExecutionFailureTemplateConstant       = "Unable to add %s remote %s in %s: %s"
	gitPushStartTemplateConstant                       = "Pushing %s to %s from %s"
	gitPushSuccessTemplateConstant                     = "Pushed %s to %s from %s"
	gitPushFailureTemplateConstant                     = "Failed to push %s to %s from %s (exit code %d%s)"
	gitPushExecutionFailureTemplateConstant            = "Unable to push %s to %s from %s: %s"
	gitLSRemoteStartTemplateConstant                   = "Querying remote references on %s"
	gitLSRemoteSuccessTemplateConstant                 = "Queried remote references on %s"
	gitLSRemoteFailureTemplateConstant                 = "Failed to query remote references on %s (exit code %d%s)"
	gitLSRemoteExecutionFailureTemplateConstant        = "Unable to query remote references on %s: %s"
	gitLocalReferencesStartTemplateConstant            = "Listing local references in %s"
	gitLocalReferencesSuccessTemplateConstant          = "Listed local references in %s"
	gitLocalReferencesFailureTemplateConstant          = "Failed to list local references in %s (exit code %d%s)"
	gitLocalReferencesExecutionFailureTemplateConstant = "Unable to list local references in %s: %s"
	bridgeCloneStartTemplateConstant                   = "Converting %s from %s into %s"
	bridgeCloneSuccessTemplateConstant                 = "Converted %s from %s into %s"
	bridgeCloneFailureTemplateConstant                 = "Failed to convert %s from %s into %s (exit code %d%s)"
	bridgeCloneExecutionFailureTemplateConstant        = "Unable to convert %s from %s into %s: %s"
	referenceListSeparatorConstant                     = ", "
)

// CommandMessageFormatter renders human-readable lifecycle messages. Remote
// URLs are always rendered with their credentials redacted.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage describes a command that exited cleanly.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage describes a command that exited with a non-zero status.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage describes a command that could not be run.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

// RedactArgument hides credentials embedded in a URL argument.
func RedactArgument(argument string) string {
	if !strings.Contains(argument, urlSchemeSeparatorConstant) {
		return argument
	}
	parsedURL, parseError := url.Parse(argument)
	if parseError != nil || parsedURL.User == nil {
		return argument
	}
	if _, hasPassword := parsedURL.User.Password(); hasPassword {
		return parsedURL.Redacted()
	}
	parsedURL.User = url.User(redactedCredentialConstant)
	return parsedURL.String()
}

// RedactArguments applies RedactArgument to every argument.
func RedactArguments(arguments []string) []string {
	redactedArguments := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		redactedArguments = append(redactedArguments, RedactArgument(argument))
	}
	return redactedArguments
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name == CommandGit {
		return formatter.describeGitMessage(command, result, failure, stage)
	}
	if formatter.isBridgeClone(command) {
		return formatter.describeBridgeCloneMessage(command, result, failure, stage)
	}
	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	switch strings.TrimSpace(command.Details.Arguments[0]) {
	case gitCloneSubcommandNameConstant:
		if containsArgument(command.Details.Arguments, gitMirrorFlagConstant) {
			return formatter.describeGitMirrorCloneMessage(command, result, failure, stage)
		}
	case gitRemoteSubcommandNameConstant:
		if strings.TrimSpace(formatter.argumentAtIndex(command.Details.Arguments, 1)) == gitRemoteAddSubcommandNameConstant {
			return formatter.describeGitRemoteAddMessage(command, result, failure, stage)
		}
	case gitPushSubcommandNameConstant:
		return formatter.describeGitPushMessage(command, result, failure, stage)
	case gitLSRemoteSubcommandNameConstant:
		return formatter.describeGitLSRemoteMessage(command, result, failure, stage)
	case gitForEachRefSubcommandNameConstant:
		return formatter.describeGitLocalReferencesMessage(command, result, failure, stage)
	}
	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) describeGitMirrorCloneMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	positionalArguments := formatter.positionalArguments(command.Details.Arguments[1:])
	sourceURL := formatter.ensureValue(RedactArgument(formatter.argumentAtIndex(positionalArguments, 0)))
	destination := formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, 1))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitMirrorCloneStartTemplateConstant, sourceURL, destination)
	case messageStageSuccess:
		return fmt.Sprintf(gitMirrorCloneSuccessTemplateConstant, sourceURL, destination)
	case messageStageFailure:
		return fmt.Sprintf(gitMirrorCloneFailureTemplateConstant, sourceURL, destination, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitMirrorCloneExecutionFailureTemplateConstant, sourceURL, destination, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitRemoteAddMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	remoteName := formatter.ensureValue(formatter.argumentAtIndex(command.Details.Arguments, 2))
	remoteURL := formatter.ensureValue(RedactArgument(formatter.argumentAtIndex(command.Details.Arguments, 3)))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitRemoteAddStartTemplateConstant, remoteName, remoteURL, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitRemoteAddSuccessTemplateConstant, remoteName, remoteURL, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitRemoteAddFailureTemplateConstant, remoteName, remoteURL, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitRemoteAddExecutionFailureTemplateConstant, remoteName, remoteURL, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitPushMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	positionalArguments := formatter.positionalArguments(command.Details.Arguments[1:])
	remoteName := formatter.ensureValue(RedactArgument(formatter.argumentAtIndex(positionalArguments, 0)))
	references := fallbackUnknownValueLabelConstant
	if len(positionalArguments) > 1 {
		references = strings.Join(positionalArguments[1:], referenceListSeparatorConstant)
	}

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitPushStartTemplateConstant, references, remoteName, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitPushSuccessTemplateConstant, references, remoteName, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitPushFailureTemplateConstant, references, remoteName, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitPushExecutionFailureTemplateConstant, references, remoteName, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitLSRemoteMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	positionalArguments := formatter.positionalArguments(command.Details.Arguments[1:])
	remote := formatter.ensureValue(RedactArgument(formatter.argumentAtIndex(positionalArguments, 0)))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitLSRemoteStartTemplateConstant, remote)
	case messageStageSuccess:
		return fmt.Sprintf(gitLSRemoteSuccessTemplateConstant, remote)
	case messageStageFailure:
		return fmt.Sprintf(gitLSRemoteFailureTemplateConstant, remote, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitLSRemoteExecutionFailureTemplateConstant, remote, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitLocalReferencesMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitLocalReferencesStartTemplateConstant, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitLocalReferencesSuccessTemplateConstant, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitLocalReferencesFailureTemplateConstant, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitLocalReferencesExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) isBridgeClone(command ShellCommand) bool {
	if command.Name == CommandGit || len(command.Details.Arguments) == 0 {
		return false
	}
	return strings.TrimSpace(command.Details.Arguments[0]) == gitCloneSubcommandNameConstant
}

func (formatter CommandMessageFormatter) describeBridgeCloneMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	positionalArguments := formatter.positionalArguments(command.Details.Arguments[1:])
	collectionURL := formatter.ensureValue(RedactArgument(formatter.argumentAtIndex(positionalArguments, 0)))
	sourcePath := formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, 1))
	destination := formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, 2))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(bridgeCloneStartTemplateConstant, sourcePath, collectionURL, destination)
	case messageStageSuccess:
		return fmt.Sprintf(bridgeCloneSuccessTemplateConstant, sourcePath, collectionURL, destination)
	case messageStageFailure:
		return fmt.Sprintf(bridgeCloneFailureTemplateConstant, sourcePath, collectionURL, destination, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(bridgeCloneExecutionFailureTemplateConstant, sourcePath, collectionURL, destination, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandParts := append([]string{string(command.Name)}, RedactArguments(command.Details.Arguments)...)
	commandLabel := shellquote.Join(commandParts...)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(redactText(standardError))
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return redactText(failure.Error())
}

func (formatter CommandMessageFormatter) positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		trimmedArgument := strings.TrimSpace(argument)
		if len(trimmedArgument) == 0 || strings.HasPrefix(trimmedArgument, flagPrefixConstant) {
			continue
		}
		positional = append(positional, trimmedArgument)
	}
	return positional
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index >= 0 && index < len(arguments) {
		return arguments[index]
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

// redactText hides credentials in any URL that appears in free-form output.
func redactText(text string) string {
	if !strings.Contains(text, urlSchemeSeparatorConstant) {
		return text
	}
	for _, field := range strings.Fields(text) {
		candidate := strings.Trim(field, quoteCharactersConstant)
		redactedCandidate := RedactArgument(candidate)
		if redactedCandidate != candidate {
			text = strings.ReplaceAll(text, candidate, redactedCandidate)
		}
	}
	return text
}
