package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"

	"github.com/temirov/orgmigrate/internal/execshell"
	"github.com/temirov/orgmigrate/internal/gitrepo"
	"github.com/temirov/orgmigrate/internal/migration"
)

const (
	targetRemoteNameConstant           = "target"
	bridgeTokenEnvironmentConstant     = "GIT_TFS_PAT"
	legacyRootPathTemplateConstant     = "$/%s"
	workDirectoryTemplateConstant      = "%s-%s"
	defaultPushAttemptsConstant        = 3
	defaultPushRetryDelayConstant      = 10 * time.Second
	gitLsRemoteSubcommandConstant      = "ls-remote"
	gitCloneSubcommandConstant         = "clone"
	gitRemoteSubcommandConstant        = "remote"
	gitPushSubcommandConstant          = "push"
	gitForEachRefSubcommandConstant    = "for-each-ref"
	gitHeadsFlagConstant               = "--heads"
	gitTagsFlagConstant                = "--tags"
	gitMirrorFlagConstant              = "--mirror"
	gitPruneFlagConstant               = "--prune"
	gitAddActionConstant               = "add"
	bridgeAllBranchesFlagConstant      = "--branches=all"
	forEachRefFormatConstant           = "--format=%(objectname) %(refname)"
	headsReferencePrefixConstant       = "refs/heads"
	tagsReferencePrefixConstant        = "refs/tags"
	headsRefspecConstant               = "+refs/heads/*:refs/heads/*"
	tagsRefspecConstant                = "+refs/tags/*:refs/tags/*"
	peeledReferenceSuffixConstant      = "^{}"
	noBranchesMessageConstant          = "No branches to migrate"
	executorMissingMessageConstant     = "git executor not configured"
	sourceUnreachableTemplateConstant  = "source repository unreachable: %w"
	cloneFailedTemplateConstant        = "clone failed: %w"
	conversionFailedTemplateConstant   = "legacy conversion failed: %w"
	remoteSetupFailedTemplateConstant  = "target remote setup failed: %w"
	pushFailedTemplateConstant         = "push failed after %d attempts: %w"
	workspaceFailedTemplateConstant    = "workspace unavailable: %w"
	targetURLFailedTemplateConstant    = "target url invalid: %w"
	sourceURLFailedTemplateConstant    = "source url invalid: %w"
	verificationFailedTemplateConstant = "reference verification failed: %w"
	historyDivergesTemplateConstant    = "history diverges: %d of %d references differ on target"
	transferStartedLogMessageConstant  = "repository transfer started"
	transferFinishedLogMessageConstant = "repository transfer finished"
	pushRetryLogMessageConstant        = "push attempt failed"
	cleanupFailedLogMessageConstant    = "temporary directory cleanup failed"
	repositoryFieldConstant            = "repository"
	kindFieldConstant                  = "kind"
	statusFieldConstant                = "status"
	attemptFieldConstant               = "attempt"
	directoryFieldConstant             = "directory"
	referenceLineSeparatorConstant     = "\n"
	referenceFieldCountConstant        = 2
)

// ErrExecutorNotConfigured indicates the transferer was built without a git executor.
var ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// GitExecutor runs git and bridge commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteBridge(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Request describes one repository transfer.
type Request struct {
	Repository       *migration.Repository
	ProjectName      string
	SourceURL        string
	SourceToken      string
	SourceCollection string
	TargetURL        string
	TargetToken      string
}

// Outcome reports the result of a transfer.
type Outcome struct {
	Status       migration.Status
	Error        error
	PushAttempts int
}

// TransfererDependencies provides the collaborators required by Transferer.
type TransfererDependencies struct {
	Executor            GitExecutor
	Logger              *zap.Logger
	Clock               clock.Clock
	IdentifierGenerator func() string
}

// TransfererOptions configures transfer behavior.
type TransfererOptions struct {
	Workspace        string
	PushAttempts     int
	PushRetryDelay   time.Duration
	CommandTimeout   time.Duration
	VerifyReferences bool
}

// Transferer moves repository content to the target platform.
type Transferer struct {
	executor            GitExecutor
	logger              *zap.Logger
	clock               clock.Clock
	identifierGenerator func() string
	options             TransfererOptions
}

// NewTransferer validates dependencies and applies option defaults.
func NewTransferer(dependencies TransfererDependencies, options TransfererOptions) (*Transferer, error) {
	if dependencies.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	transfererClock := dependencies.Clock
	if transfererClock == nil {
		transfererClock = clock.WallClock
	}
	identifierGenerator := dependencies.IdentifierGenerator
	if identifierGenerator == nil {
		identifierGenerator = uuid.NewString
	}

	if len(strings.TrimSpace(options.Workspace)) == 0 {
		options.Workspace = os.TempDir()
	}
	if options.PushAttempts <= 0 {
		options.PushAttempts = defaultPushAttemptsConstant
	}
	if options.PushRetryDelay <= 0 {
		options.PushRetryDelay = defaultPushRetryDelayConstant
	}

	return &Transferer{
		executor:            dependencies.Executor,
		logger:              logger,
		clock:               transfererClock,
		identifierGenerator: identifierGenerator,
		options:             options,
	}, nil
}

// Transfer copies the repository described by request to its target. The
// returned outcome never carries InProgress or Pending.
func (transferer *Transferer) Transfer(executionContext context.Context, request Request) Outcome {
	repository := request.Repository
	if repository == nil {
		return Outcome{Status: migration.StatusSkipped}
	}
	if !repository.Kind.IsLegacy() && repository.BranchCount == 0 {
		return Outcome{Status: migration.StatusSkipped, Error: errors.New(noBranchesMessageConstant)}
	}

	transferer.logger.Info(transferStartedLogMessageConstant, zap.String(repositoryFieldConstant, repository.Name), zap.String(kindFieldConstant, string(repository.Kind)))
	outcome := transferer.transfer(executionContext, request)
	transferer.logger.Info(transferFinishedLogMessageConstant, zap.String(repositoryFieldConstant, repository.Name), zap.String(statusFieldConstant, outcome.Status.String()))
	return outcome
}

func (transferer *Transferer) transfer(executionContext context.Context, request Request) Outcome {
	repository := request.Repository

	authenticatedTarget, targetError := gitrepo.Authenticate(request.TargetURL, gitrepo.GitHubCredential(request.TargetToken))
	if targetError != nil {
		return failed(fmt.Errorf(targetURLFailedTemplateConstant, targetError))
	}

	if mkdirError := os.MkdirAll(transferer.options.Workspace, 0o755); mkdirError != nil {
		return failed(fmt.Errorf(workspaceFailedTemplateConstant, mkdirError))
	}
	workDirectory := filepath.Join(transferer.options.Workspace, fmt.Sprintf(workDirectoryTemplateConstant, sanitizeDirectoryName(repository.Name), transferer.identifierGenerator()))
	defer transferer.removeDirectory(workDirectory)

	var fetchError error
	if repository.Kind.IsLegacy() {
		fetchError = transferer.convertLegacy(executionContext, request, workDirectory)
	} else {
		fetchError = transferer.mirror(executionContext, request, workDirectory)
	}
	if fetchError != nil {
		return failed(fetchError)
	}

	_, remoteError := transferer.executor.ExecuteGit(executionContext, transferer.details(workDirectory, gitRemoteSubcommandConstant, gitAddActionConstant, targetRemoteNameConstant, authenticatedTarget))
	if remoteError != nil {
		return failed(fmt.Errorf(remoteSetupFailedTemplateConstant, remoteError))
	}

	attempts, pushError := transferer.push(executionContext, repository.Name, workDirectory)
	if pushError != nil {
		return Outcome{Status: migration.StatusFailed, Error: fmt.Errorf(pushFailedTemplateConstant, attempts, pushError), PushAttempts: attempts}
	}

	outcome := Outcome{Status: migration.StatusCompleted, PushAttempts: attempts}
	if !transferer.options.VerifyReferences {
		return outcome
	}
	if verificationError := transferer.verify(executionContext, workDirectory); verificationError != nil {
		outcome.Status = migration.StatusPartiallyCompleted
		outcome.Error = verificationError
	}
	return outcome
}

func (transferer *Transferer) mirror(executionContext context.Context, request Request, workDirectory string) error {
	if _, locationError := gitrepo.ParseAzureReposRemote(request.SourceURL); locationError != nil {
		return fmt.Errorf(sourceURLFailedTemplateConstant, locationError)
	}
	authenticatedSource, sourceError := gitrepo.Authenticate(request.SourceURL, gitrepo.AzureDevOpsCredential(request.SourceToken))
	if sourceError != nil {
		return fmt.Errorf(sourceURLFailedTemplateConstant, sourceError)
	}

	if _, probeError := transferer.executor.ExecuteGit(executionContext, transferer.details("", gitLsRemoteSubcommandConstant, gitHeadsFlagConstant, authenticatedSource)); probeError != nil {
		return fmt.Errorf(sourceUnreachableTemplateConstant, probeError)
	}
	if _, cloneError := transferer.executor.ExecuteGit(executionContext, transferer.details("", gitCloneSubcommandConstant, gitMirrorFlagConstant, authenticatedSource, workDirectory)); cloneError != nil {
		return fmt.Errorf(cloneFailedTemplateConstant, cloneError)
	}
	return nil
}

func (transferer *Transferer) convertLegacy(executionContext context.Context, request Request, workDirectory string) error {
	details := transferer.details("", gitCloneSubcommandConstant, request.SourceCollection, fmt.Sprintf(legacyRootPathTemplateConstant, request.ProjectName), workDirectory, bridgeAllBranchesFlagConstant)
	if len(request.SourceToken) > 0 {
		details.EnvironmentVariables = map[string]string{bridgeTokenEnvironmentConstant: request.SourceToken}
	}
	if _, conversionError := transferer.executor.ExecuteBridge(executionContext, details); conversionError != nil {
		return fmt.Errorf(conversionFailedTemplateConstant, conversionError)
	}
	return nil
}

// push retries the full push with a fixed delay and returns the number of attempts made.
func (transferer *Transferer) push(executionContext context.Context, repositoryName string, workDirectory string) (int, error) {
	attempts := 0
	callError := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			_, pushError := transferer.executor.ExecuteGit(executionContext, transferer.details(workDirectory, gitPushSubcommandConstant, gitPruneFlagConstant, targetRemoteNameConstant, headsRefspecConstant, tagsRefspecConstant))
			return pushError
		},
		IsFatalError: func(error) bool {
			return executionContext.Err() != nil
		},
		NotifyFunc: func(lastError error, attempt int) {
			transferer.logger.Warn(pushRetryLogMessageConstant, zap.String(repositoryFieldConstant, repositoryName), zap.Int(attemptFieldConstant, attempt), zap.Error(lastError))
		},
		Attempts: transferer.options.PushAttempts,
		Delay:    transferer.options.PushRetryDelay,
		Clock:    transferer.clock,
		Stop:     executionContext.Done(),
	})
	if callError == nil {
		return attempts, nil
	}
	if contextError := executionContext.Err(); contextError != nil {
		return attempts, contextError
	}
	if retry.IsAttemptsExceeded(callError) {
		return attempts, retry.LastError(callError)
	}
	return attempts, callError
}

// verify compares local branch and tag references with the target remote.
func (transferer *Transferer) verify(executionContext context.Context, workDirectory string) error {
	localResult, localError := transferer.executor.ExecuteGit(executionContext, transferer.details(workDirectory, gitForEachRefSubcommandConstant, forEachRefFormatConstant, headsReferencePrefixConstant, tagsReferencePrefixConstant))
	if localError != nil {
		return fmt.Errorf(verificationFailedTemplateConstant, localError)
	}
	remoteResult, remoteError := transferer.executor.ExecuteGit(executionContext, transferer.details(workDirectory, gitLsRemoteSubcommandConstant, gitHeadsFlagConstant, gitTagsFlagConstant, targetRemoteNameConstant))
	if remoteError != nil {
		return fmt.Errorf(verificationFailedTemplateConstant, remoteError)
	}

	localReferences := ParseReferences(localResult.StandardOutput)
	remoteReferences := ParseReferences(remoteResult.StandardOutput)
	divergent := 0
	for referenceName, objectName := range localReferences {
		if remoteReferences[referenceName] != objectName {
			divergent++
		}
	}
	if divergent > 0 {
		return fmt.Errorf(historyDivergesTemplateConstant, divergent, len(localReferences))
	}
	return nil
}

// ParseReferences reads "<object> <ref>" lines as produced by for-each-ref or
// ls-remote into a map keyed by reference name. Peeled tag entries are ignored.
func ParseReferences(output string) map[string]string {
	references := map[string]string{}
	for _, line := range strings.Split(output, referenceLineSeparatorConstant) {
		fields := strings.Fields(line)
		if len(fields) != referenceFieldCountConstant {
			continue
		}
		if strings.HasSuffix(fields[1], peeledReferenceSuffixConstant) {
			continue
		}
		references[fields[1]] = fields[0]
	}
	return references
}

func (transferer *Transferer) details(workingDirectory string, arguments ...string) execshell.CommandDetails {
	return execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
		Timeout:          transferer.options.CommandTimeout,
	}
}

func (transferer *Transferer) removeDirectory(workDirectory string) {
	if removeError := os.RemoveAll(workDirectory); removeError != nil {
		transferer.logger.Warn(cleanupFailedLogMessageConstant, zap.String(directoryFieldConstant, workDirectory), zap.Error(removeError))
	}
}

func sanitizeDirectoryName(name string) string {
	sanitized := strings.Map(func(character rune) rune {
		switch {
		case character >= 'a' && character <= 'z', character >= 'A' && character <= 'Z', character >= '0' && character <= '9', character == '-', character == '_', character == '.':
			return character
		default:
			return '_'
		}
	}, name)
	return strings.Trim(sanitized, ".")
}

func failed(failure error) Outcome {
	return Outcome{Status: migration.StatusFailed, Error: failure}
}
