package migrate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/orgmigrate/internal/azuredevops"
	"github.com/temirov/orgmigrate/internal/credentials"
	"github.com/temirov/orgmigrate/internal/execshell"
	"github.com/temirov/orgmigrate/internal/githubapi"
	"github.com/temirov/orgmigrate/internal/httpclient"
	"github.com/temirov/orgmigrate/internal/identity"
	"github.com/temirov/orgmigrate/internal/migration"
	"github.com/temirov/orgmigrate/internal/naming"
	"github.com/temirov/orgmigrate/internal/reconcile"
	"github.com/temirov/orgmigrate/internal/report"
	"github.com/temirov/orgmigrate/internal/transfer"
	"github.com/temirov/orgmigrate/internal/ui"
	"github.com/temirov/orgmigrate/internal/utils"
	"github.com/temirov/orgmigrate/internal/utils/flags"
	pathutils "github.com/temirov/orgmigrate/internal/utils/path"
)

const (
	migrateCommandUseConstant              = "migrate"
	migrateCommandShortDescriptionConstant = "Migrate source projects to the target organization"
	migrateCommandLongDescriptionConstant  = "migrate assesses every selected source project against the target organization, creates missing repositories and teams, transfers repository content, and writes a status report."
	assessCommandUseConstant               = "assess"
	assessCommandShortDescriptionConstant  = "Report migration state without changing the target"
	assessCommandLongDescriptionConstant   = "assess compares every selected source project with the target organization and writes a status report. The target is only read."
	sourcePlatformNameConstant             = "azure_devops"
	targetPlatformNameConstant             = "github"
	mappingLoadErrorTemplateConstant       = "identity mapping load failed: %w"
	platformCreationErrorTemplateConstant  = "unable to construct platform clients: %w"
	reportCreationErrorTemplateConstant    = "unable to write report %s: %w"
	runFailedTemplateConstant              = "%w: run %s"
	runFailedMessageConstant               = "migration run failed"
	reportWrittenMessageConstant           = "migration report written"
	membersCheckFailedMessageConstant      = "organization member listing failed"
	unknownUsernamesMessageConstant        = "mapped usernames are not organization members"
	ssoCheckFailedMessageConstant          = "single sign-on identity listing failed"
	ssoMismatchMessageConstant             = "mapped username differs from single sign-on identity"
	reportPathFieldConstant                = "report"
	usernamesFieldConstant                 = "usernames"
	sourceIdentityFieldConstant            = "source_identity"
	mappedUsernameFieldConstant            = "mapped_username"
	linkedUsernameFieldConstant            = "linked_username"
	reportDirectoryPermissionsConstant     = 0o755
	permissionFlagNameConstant             = "permission"
	permissionFlagUsageConstant            = "Access level granted to each migrated team on its project repositories"
	permissionChoiceSubjectConstant        = "permission"
	runConfigurationMessageConstant        = "run configuration resolved"
	configurationFileFieldConstant         = "config_file"
)

// ErrRunFailed indicates the run finished with a Failed aggregate status.
var ErrRunFailed = errors.New(runFailedMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// OrganizationDirectory lists target organization identities for early mapping checks.
type OrganizationDirectory interface {
	ListOrganizationMembers(executionContext context.Context) ([]string, error)
	ListSSOIdentities(executionContext context.Context) ([]githubapi.SSOIdentity, error)
}

// Platforms bundles the collaborators a command run talks to. Transferer
// takes precedence over Executor when both are set.
type Platforms struct {
	Source     SourcePlatform
	Target     TargetPlatform
	Directory  OrganizationDirectory
	Executor   transfer.GitExecutor
	Transferer ContentTransferer
}

// PlatformRequest carries everything a PlatformFactory needs.
type PlatformRequest struct {
	Configuration        Configuration
	SourceToken          string
	TargetToken          string
	Logger               *zap.Logger
	HumanReadableLogging bool
}

// PlatformFactory constructs Platforms for one command run.
type PlatformFactory func(request PlatformRequest) (Platforms, error)

// CommandBuilder assembles the migrate and assess Cobra commands.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() Configuration
	PlatformFactory              PlatformFactory
	Environment                  map[string]string
	Clock                        clock.Clock
	PathResolver                 *pathutils.PathResolver
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           migrateCommandUseConstant,
		Short:         migrateCommandShortDescriptionConstant,
		Long:          migrateCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
	}
	flagValues := flags.BindMigrationFlags(command, builder.flagDefaults(), true)
	defaultPermission := DefaultConfiguration().Migration.RepositoryPermission
	command.Flags().String(permissionFlagNameConstant, defaultPermission, flags.FormatChoiceUsage(defaultPermission, permissionChoices(), permissionFlagUsageConstant))
	command.RunE = func(command *cobra.Command, arguments []string) error {
		return builder.run(command, *flagValues, false)
	}
	return command, nil
}

// BuildAssess constructs the assess command.
func (builder *CommandBuilder) BuildAssess() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           assessCommandUseConstant,
		Short:         assessCommandShortDescriptionConstant,
		Long:          assessCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
	}
	flagValues := flags.BindMigrationFlags(command, builder.flagDefaults(), false)
	command.RunE = func(command *cobra.Command, arguments []string) error {
		return builder.run(command, *flagValues, true)
	}
	return command, nil
}

func (builder *CommandBuilder) flagDefaults() flags.MigrationFlagValues {
	defaults := DefaultConfiguration()
	return flags.MigrationFlagValues{
		VerifyReferences: defaults.Transfer.VerifyReferences,
		Concurrency:      defaults.Migration.Concurrency,
		ReportPath:       defaults.Report.Output,
	}
}

func (builder *CommandBuilder) run(command *cobra.Command, flagValues flags.MigrationFlagValues, forceAssessOnly bool) error {
	configuration, flagError := builder.applyFlags(command, builder.resolveConfiguration(), flagValues)
	if flagError != nil {
		return flagError
	}
	assessOnly := forceAssessOnly || flagValues.AssessOnly

	if validationError := configuration.Validate(); validationError != nil {
		return validationError
	}

	sourceToken, sourceTokenError := credentials.RequireToken(credentials.PlatformAzureDevOps, configuration.Source.Token, builder.Environment)
	if sourceTokenError != nil {
		return sourceTokenError
	}
	targetToken, targetTokenError := credentials.RequireToken(credentials.PlatformGitHub, configuration.Target.Token, builder.Environment)
	if targetTokenError != nil {
		return targetTokenError
	}

	logger := builder.resolveLogger()
	resolver := builder.resolvePathResolver()

	mapping, mappingError := identity.LoadFile(resolver.Resolve(configuration.Identity.MappingFile))
	if mappingError != nil {
		return fmt.Errorf(mappingLoadErrorTemplateConstant, mappingError)
	}

	platforms, platformsError := builder.resolvePlatforms(PlatformRequest{
		Configuration:        configuration,
		SourceToken:          sourceToken,
		TargetToken:          targetToken,
		Logger:               logger,
		HumanReadableLogging: builder.humanReadableLogging(),
	})
	if platformsError != nil {
		return fmt.Errorf(platformCreationErrorTemplateConstant, platformsError)
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}
	contextAccessor := utils.NewCommandContextAccessor()
	runIdentifier := uuid.NewString()
	executionContext = contextAccessor.WithRunIdentifier(executionContext, runIdentifier)
	configurationFilePath, _ := contextAccessor.ConfigurationFilePath(executionContext)
	logger.Debug(runConfigurationMessageConstant, zap.String(runIdentifierFieldConstant, runIdentifier), zap.String(configurationFileFieldConstant, configurationFilePath))

	if assessOnly && platforms.Directory != nil {
		checkIdentities(executionContext, platforms.Directory, mapping, logger)
	}

	progress := ui.NewConsoleProgressReporter(logger)
	reconciler, reconcilerError := reconcile.NewReconciler(
		reconcile.ReconcilerDependencies{
			Target:     platforms.Target,
			Identities: mapping,
			Names:      naming.NewResolver(configuration.Naming.MaximumLength),
			Logger:     logger,
			Progress:   progress,
		},
		reconcile.ReconcilerOptions{
			OrganizationName:  configuration.Source.Organization,
			RepositoryPattern: configuration.Naming.RepositoryPattern,
			TeamPattern:       configuration.Naming.TeamPattern,
		},
	)
	if reconcilerError != nil {
		return reconcilerError
	}

	contentTransferer, transfererError := builder.resolveTransferer(platforms, configuration, logger, resolver)
	if transfererError != nil {
		return transfererError
	}

	service, serviceError := NewService(ServiceDependencies{
		Source:     platforms.Source,
		Target:     platforms.Target,
		Assessor:   reconciler,
		Transferer: contentTransferer,
		Logger:     logger,
		Progress:   progress,
		Clock:      builder.Clock,
	})
	if serviceError != nil {
		return serviceError
	}

	result, executionError := service.Execute(executionContext, Options{
		Projects:                configuration.Source.Projects,
		AssessOnly:              assessOnly,
		Concurrency:             configuration.Migration.Concurrency,
		MemberBatchSize:         configuration.Migration.MemberBatchSize,
		RepositoryPermission:    githubapi.RepositoryPermission(configuration.Migration.RepositoryPermission),
		DefaultBranchAttempts:   configuration.Migration.DefaultBranchAttempts,
		DefaultBranchRetryDelay: configuration.Migration.DefaultBranchRetryDelay,
		SourceToken:             sourceToken,
		TargetToken:             targetToken,
	})
	if result.Run == nil {
		return executionError
	}

	if publishError := publishRun(command, logger, resolver.Resolve(configuration.Report.Output), result.Run); publishError != nil {
		return errors.Join(executionError, publishError)
	}
	if executionError != nil {
		return executionError
	}

	if result.Run.Status == migration.StatusFailed {
		return fmt.Errorf(runFailedTemplateConstant, ErrRunFailed, result.Run.ID)
	}
	return nil
}

func (builder *CommandBuilder) applyFlags(command *cobra.Command, configuration Configuration, flagValues flags.MigrationFlagValues) (Configuration, error) {
	overrides := flags.ChangedMigrationFlags(command)
	if overrides.Projects {
		configuration.Source.Projects = append([]string{}, flagValues.Projects...)
	}
	if overrides.Concurrency {
		configuration.Migration.Concurrency = flagValues.Concurrency
	}
	if overrides.ReportPath {
		configuration.Report.Output = flagValues.ReportPath
	}
	if overrides.VerifyReferences {
		configuration.Transfer.VerifyReferences = flagValues.VerifyReferences
	}
	if permissionFlag := command.Flags().Lookup(permissionFlagNameConstant); permissionFlag != nil && permissionFlag.Changed {
		permission, choiceError := flags.NormalizeChoice(permissionChoiceSubjectConstant, permissionFlag.Value.String(), permissionChoices())
		if choiceError != nil {
			return Configuration{}, choiceError
		}
		configuration.Migration.RepositoryPermission = permission
	}
	return configuration.Sanitize(), nil
}

func permissionChoices() []string {
	permissions := githubapi.RepositoryPermissions()
	choices := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		choices = append(choices, string(permission))
	}
	return choices
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return DefaultConfiguration()
	}
	return builder.ConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolvePathResolver() *pathutils.PathResolver {
	if builder.PathResolver != nil {
		return builder.PathResolver
	}
	return pathutils.NewPathResolver()
}

func (builder *CommandBuilder) humanReadableLogging() bool {
	if builder.HumanReadableLoggingProvider == nil {
		return false
	}
	return builder.HumanReadableLoggingProvider()
}

func (builder *CommandBuilder) resolvePlatforms(request PlatformRequest) (Platforms, error) {
	if builder.PlatformFactory != nil {
		return builder.PlatformFactory(request)
	}
	return NewPlatforms(request)
}

func (builder *CommandBuilder) resolveTransferer(platforms Platforms, configuration Configuration, logger *zap.Logger, resolver *pathutils.PathResolver) (ContentTransferer, error) {
	if platforms.Transferer != nil {
		return platforms.Transferer, nil
	}
	return transfer.NewTransferer(
		transfer.TransfererDependencies{Executor: platforms.Executor, Logger: logger, Clock: builder.Clock},
		transfer.TransfererOptions{
			Workspace:        resolver.Resolve(configuration.Transfer.Workspace),
			PushAttempts:     configuration.Transfer.PushAttempts,
			PushRetryDelay:   configuration.Transfer.PushRetryDelay,
			CommandTimeout:   configuration.Transfer.CommandTimeout,
			VerifyReferences: configuration.Transfer.VerifyReferences,
		},
	)
}

// NewPlatforms builds the production adapters: REST clients sharing the
// rate-limit aware transport and a shell executor for git and the bridge.
func NewPlatforms(request PlatformRequest) (Platforms, error) {
	logger := request.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	configuration := request.Configuration

	sourceHTTPClient, sourceHTTPError := httpclient.NewClient(
		httpclient.ClientDependencies{HTTPClient: &http.Client{}, Logger: logger},
		httpclient.ClientOptions{
			PlatformName:      sourcePlatformNameConstant,
			MaximumAttempts:   configuration.HTTP.MaximumAttempts,
			RequestsPerSecond: configuration.HTTP.RequestsPerSecond,
		},
	)
	if sourceHTTPError != nil {
		return Platforms{}, sourceHTTPError
	}
	sourceClient, sourceError := azuredevops.NewClient(
		azuredevops.ClientDependencies{HTTPClient: sourceHTTPClient, Logger: logger},
		azuredevops.ClientOptions{
			BaseURL:      configuration.Source.BaseURL,
			Organization: configuration.Source.Organization,
			Token:        request.SourceToken,
		},
	)
	if sourceError != nil {
		return Platforms{}, sourceError
	}

	targetHTTPClient, targetHTTPError := httpclient.NewClient(
		httpclient.ClientDependencies{HTTPClient: &http.Client{}, Logger: logger},
		httpclient.ClientOptions{
			PlatformName:      targetPlatformNameConstant,
			MaximumAttempts:   configuration.HTTP.MaximumAttempts,
			RequestsPerSecond: configuration.HTTP.RequestsPerSecond,
		},
	)
	if targetHTTPError != nil {
		return Platforms{}, targetHTTPError
	}
	targetClient, targetError := githubapi.NewClient(
		githubapi.ClientDependencies{HTTPClient: targetHTTPClient, Logger: logger},
		githubapi.ClientOptions{
			Organization: configuration.Target.Organization,
			Token:        request.TargetToken,
			BaseURL:      configuration.Target.BaseURL,
			GraphQLURL:   configuration.Target.GraphQLURL,
			WebURL:       configuration.Target.WebURL,
		},
	)
	if targetError != nil {
		return Platforms{}, targetError
	}

	executorOptions := []execshell.ShellExecutorOption{
		execshell.WithBridgeExecutable(configuration.Transfer.BridgeExecutable),
		execshell.WithDefaultTimeout(configuration.Transfer.CommandTimeout),
	}
	if request.HumanReadableLogging {
		executorOptions = append(executorOptions, execshell.WithCommandEventObserver(ui.NewConsoleCommandEventLogger(logger)))
	}
	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), executorOptions...)
	if executorError != nil {
		return Platforms{}, executorError
	}

	return Platforms{
		Source:    sourceClient,
		Target:    targetClient,
		Directory: targetClient,
		Executor:  shellExecutor,
	}, nil
}

// checkIdentities warns about mapping entries that cannot succeed on the
// target. Listing failures are logged and never stop the run.
func checkIdentities(executionContext context.Context, directory OrganizationDirectory, mapping *identity.Mapping, logger *zap.Logger) {
	members, membersError := directory.ListOrganizationMembers(executionContext)
	if membersError != nil {
		logger.Warn(membersCheckFailedMessageConstant, zap.Error(membersError))
	} else if unknownUsernames := mapping.ValidateAgainst(members); len(unknownUsernames) > 0 {
		logger.Warn(unknownUsernamesMessageConstant, zap.Strings(usernamesFieldConstant, unknownUsernames))
	}

	ssoIdentities, ssoError := directory.ListSSOIdentities(executionContext)
	if ssoError != nil {
		logger.Debug(ssoCheckFailedMessageConstant, zap.Error(ssoError))
		return
	}
	for _, ssoIdentity := range ssoIdentities {
		if len(ssoIdentity.NameID) == 0 || len(ssoIdentity.Login) == 0 {
			continue
		}
		mappedUsername, mapped := mapping.Lookup(ssoIdentity.NameID)
		if !mapped || strings.EqualFold(mappedUsername, ssoIdentity.Login) {
			continue
		}
		logger.Warn(
			ssoMismatchMessageConstant,
			zap.String(sourceIdentityFieldConstant, ssoIdentity.NameID),
			zap.String(mappedUsernameFieldConstant, mappedUsername),
			zap.String(linkedUsernameFieldConstant, ssoIdentity.Login),
		)
	}
}

// publishRun renders the console summary and the Markdown report. Interrupted
// runs are published with their partial tree.
func publishRun(command *cobra.Command, logger *zap.Logger, reportPath string, run *migration.Run) error {
	renderer := report.NewRenderer()
	if summaryError := renderer.RenderSummary(command.OutOrStdout(), run); summaryError != nil {
		return summaryError
	}
	if reportError := writeReport(renderer, reportPath, run); reportError != nil {
		return reportError
	}
	if len(reportPath) > 0 {
		logger.Info(reportWrittenMessageConstant, zap.String(reportPathFieldConstant, reportPath))
	}
	return nil
}

func writeReport(renderer *report.Renderer, reportPath string, run *migration.Run) error {
	if len(reportPath) == 0 {
		return nil
	}
	if directory := filepath.Dir(reportPath); len(directory) > 0 {
		if directoryError := os.MkdirAll(directory, reportDirectoryPermissionsConstant); directoryError != nil {
			return fmt.Errorf(reportCreationErrorTemplateConstant, reportPath, directoryError)
		}
	}
	reportFile, createError := os.Create(reportPath)
	if createError != nil {
		return fmt.Errorf(reportCreationErrorTemplateConstant, reportPath, createError)
	}
	renderError := renderer.RenderMarkdown(reportFile, run)
	closeError := reportFile.Close()
	if renderError != nil {
		return fmt.Errorf(reportCreationErrorTemplateConstant, reportPath, renderError)
	}
	if closeError != nil {
		return fmt.Errorf(reportCreationErrorTemplateConstant, reportPath, closeError)
	}
	return nil
}
