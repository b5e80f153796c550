package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/temirov/orgmigrate/internal/azuredevops"
	"github.com/temirov/orgmigrate/internal/githubapi"
	"github.com/temirov/orgmigrate/internal/migration"
	"github.com/temirov/orgmigrate/internal/reconcile"
	"github.com/temirov/orgmigrate/internal/transfer"
	"github.com/temirov/orgmigrate/internal/utils"
)

const (
	sourceMissingMessageConstant          = "source platform not configured"
	targetMissingMessageConstant          = "target platform not configured"
	assessorMissingMessageConstant        = "assessor not configured"
	transfererMissingMessageConstant      = "content transferer not configured"
	userNotMappedMessageConstant          = "User not found in mapping file"
	organizationCheckTemplateConstant     = "target organization check failed: %w"
	projectListingTemplateConstant        = "source project listing failed: %w"
	repositoryCreationTemplateConstant    = "target repository creation failed: %w"
	teamCreationTemplateConstant          = "target team creation failed: %w"
	permissionTemplateConstant            = "permission on %s failed: %w"
	defaultBranchTemplateConstant         = "default branch %q not applied: %w"
	repositoryDescriptionTemplateConstant = "Migrated from %s/%s/%s"
	runStartedLogMessageConstant          = "migration run started"
	runFinishedLogMessageConstant         = "migration run finished"
	projectFailedLogMessageConstant       = "source project could not be loaded"
	projectFinishedLogMessageConstant     = "project processed"
	defaultBranchRetryLogMessageConstant  = "default branch update failed"
	runIdentifierFieldConstant            = "run_id"
	projectFieldConstant                  = "project"
	repositoryFieldConstant               = "repository"
	statusFieldConstant                   = "status"
	attemptFieldConstant                  = "attempt"
	assessOnlyFieldConstant               = "assess_only"
	projectCountFieldConstant             = "projects"
	durationFieldConstant                 = "duration"
	memberEntityNameTemplateConstant      = "%s/%s"
	memberFailureTemplateConstant         = "%s/%s: %w"
	memberBatchFailedLogMessageConstant   = "team member batch finished with failures"
	teamFieldConstant                     = "team"
	batchStartFieldConstant               = "batch_start"
)

var (
	// ErrSourceNotConfigured indicates the service was built without a source adapter.
	ErrSourceNotConfigured     = errors.New(sourceMissingMessageConstant)
	// ErrTargetNotConfigured indicates the service was built without a target adapter.
	ErrTargetNotConfigured     = errors.New(targetMissingMessageConstant)
	// ErrAssessorNotConfigured indicates the service was built without a reconciler.
	ErrAssessorNotConfigured   = errors.New(assessorMissingMessageConstant)
	// ErrTransfererNotConfigured indicates the service was built without a content transferer.
	ErrTransfererNotConfigured = errors.New(transfererMissingMessageConstant)
)

// SourcePlatform reads the source organization.
type SourcePlatform interface {
	Organization() string
	CollectionURL() string
	ListProjects(executionContext context.Context) ([]azuredevops.ProjectSummary, error)
	GetProject(executionContext context.Context, projectName string) (*migration.Project, error)
}

// TargetPlatform reads and mutates the target organization.
type TargetPlatform interface {
	reconcile.TargetReader
	Organization() string
	RemoteURL(repositoryName string) string
	CheckOrganizationAccess(executionContext context.Context) error
	CreateRepository(executionContext context.Context, repositoryName string, description string) (githubapi.CreateRepositoryResult, error)
	SetDefaultBranch(executionContext context.Context, repositoryName string, branch string) error
	CreateTeam(executionContext context.Context, name string, description string) (githubapi.CreateTeamResult, error)
	SetTeamRepositoryPermission(executionContext context.Context, teamSlug string, repositoryName string, permission githubapi.RepositoryPermission) error
	SetTeamMembership(executionContext context.Context, teamSlug string, username string, role githubapi.TeamRole) (githubapi.MembershipState, error)
}

// Assessor assigns statuses to a project tree from live target state.
type Assessor interface {
	Assess(executionContext context.Context, project *migration.Project) error
}

// ContentTransferer copies repository content to the target.
type ContentTransferer interface {
	Transfer(executionContext context.Context, request transfer.Request) transfer.Outcome
}

// ServiceDependencies describes the collaborators required by Service.
type ServiceDependencies struct {
	Source              SourcePlatform
	Target              TargetPlatform
	Assessor            Assessor
	Transferer          ContentTransferer
	Logger              *zap.Logger
	Progress            migration.ProgressObserver
	Clock               clock.Clock
	IdentifierGenerator func() string
}

// Options configure a single run.
type Options struct {
	Projects                []string
	AssessOnly              bool
	Concurrency             int
	MemberBatchSize         int
	RepositoryPermission    githubapi.RepositoryPermission
	DefaultBranchAttempts   int
	DefaultBranchRetryDelay time.Duration
	SourceToken             string
	TargetToken             string
}

// RunResult carries the completed run tree.
type RunResult struct {
	Run *migration.Run
}

// Service orchestrates migration runs.
type Service struct {
	source              SourcePlatform
	target              TargetPlatform
	assessor            Assessor
	transferer          ContentTransferer
	logger              *zap.Logger
	progress            migration.ProgressObserver
	clock               clock.Clock
	identifierGenerator func() string
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Source == nil {
		return nil, ErrSourceNotConfigured
	}
	if dependencies.Target == nil {
		return nil, ErrTargetNotConfigured
	}
	if dependencies.Assessor == nil {
		return nil, ErrAssessorNotConfigured
	}
	if dependencies.Transferer == nil {
		return nil, ErrTransfererNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progress := dependencies.Progress
	if progress == nil {
		progress = migration.NoopProgressObserver{}
	}
	serviceClock := dependencies.Clock
	if serviceClock == nil {
		serviceClock = clock.WallClock
	}
	identifierGenerator := dependencies.IdentifierGenerator
	if identifierGenerator == nil {
		identifierGenerator = uuid.NewString
	}

	return &Service{
		source:              dependencies.Source,
		target:              dependencies.Target,
		assessor:            dependencies.Assessor,
		transferer:          dependencies.Transferer,
		logger:              logger,
		progress:            progress,
		clock:               serviceClock,
		identifierGenerator: identifierGenerator,
	}, nil
}

// Execute performs one run. Only configuration problems, an inaccessible
// target organization, a failed project listing, and context cancellation
// are returned as errors; every other failure is recorded on its entity.
// RunResult.Run is nil when the run failed before any project was read, and
// holds the partial tree otherwise.
func (service *Service) Execute(executionContext context.Context, options Options) (RunResult, error) {
	normalizedOptions, optionsError := normalizeOptions(options)
	if optionsError != nil {
		return RunResult{}, optionsError
	}

	runIdentifier, identifierAvailable := utils.NewCommandContextAccessor().RunIdentifier(executionContext)
	if !identifierAvailable {
		runIdentifier = service.identifierGenerator()
	}

	run := &migration.Run{
		ID:                 runIdentifier,
		SourceOrganization: service.source.Organization(),
		TargetOrganization: service.target.Organization(),
		StartedAt:          service.clock.Now(),
	}
	result := RunResult{Run: run}

	if accessError := service.target.CheckOrganizationAccess(executionContext); accessError != nil {
		return RunResult{}, fmt.Errorf(organizationCheckTemplateConstant, accessError)
	}

	projectNames, listingError := service.resolveProjectNames(executionContext, normalizedOptions.Projects)
	if listingError != nil {
		return RunResult{}, fmt.Errorf(projectListingTemplateConstant, listingError)
	}

	service.logger.Info(runStartedLogMessageConstant, zap.String(runIdentifierFieldConstant, run.ID), zap.Int(projectCountFieldConstant, len(projectNames)), zap.Bool(assessOnlyFieldConstant, normalizedOptions.AssessOnly))

	var transferred []transferredRepository
	for _, projectName := range projectNames {
		if contextError := executionContext.Err(); contextError != nil {
			return service.finish(result), contextError
		}

		project, projectError := service.source.GetProject(executionContext, projectName)
		if projectError != nil {
			if contextError := executionContext.Err(); contextError != nil {
				return service.finish(result), contextError
			}
			service.logger.Warn(projectFailedLogMessageConstant, zap.String(projectFieldConstant, projectName), zap.Error(projectError))
			run.Projects = append(run.Projects, &migration.Project{Name: projectName, Status: migration.StatusFailed, Error: projectError.Error()})
			service.notifyProject(run.Projects[len(run.Projects)-1])
			continue
		}
		run.Projects = append(run.Projects, project)

		if assessError := service.assessor.Assess(executionContext, project); assessError != nil {
			return service.finish(result), assessError
		}

		if !normalizedOptions.AssessOnly {
			transferred = append(transferred, service.migrateProject(executionContext, project, normalizedOptions)...)
			project.RecomputeStatus()
			service.notifyProject(project)
		}
		service.logger.Info(projectFinishedLogMessageConstant, zap.String(projectFieldConstant, project.Name), zap.String(statusFieldConstant, project.Status.String()))
	}

	if !normalizedOptions.AssessOnly {
		service.reconcileDefaultBranches(executionContext, transferred, normalizedOptions)
	}

	if contextError := executionContext.Err(); contextError != nil {
		return service.finish(result), contextError
	}
	return service.finish(result), nil
}

func (service *Service) finish(result RunResult) RunResult {
	result.Run.RecomputeStatus()
	result.Run.FinishedAt = service.clock.Now()
	service.logger.Info(runFinishedLogMessageConstant, zap.String(runIdentifierFieldConstant, result.Run.ID), zap.String(statusFieldConstant, result.Run.Status.String()), zap.Duration(durationFieldConstant, result.Run.FinishedAt.Sub(result.Run.StartedAt)))
	return result
}

func (service *Service) resolveProjectNames(executionContext context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	summaries, listingError := service.source.ListProjects(executionContext)
	if listingError != nil {
		return nil, listingError
	}
	projectNames := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		projectNames = append(projectNames, summary.Name)
	}
	return projectNames, nil
}

type transferredRepository struct {
	project    *migration.Project
	repository *migration.Repository
}

// migrateProject transfers every unfinished repository, then ensures teams.
// It returns the repositories whose content reached the target in this run.
func (service *Service) migrateProject(executionContext context.Context, project *migration.Project, options Options) []transferredRepository {
	limiter := semaphore.NewWeighted(int64(options.Concurrency))
	var waitGroup sync.WaitGroup
	var mutex sync.Mutex
	var transferred []transferredRepository

	for _, repository := range project.Repositories {
		if repository.Status.IsTerminal() {
			continue
		}
		if acquireError := limiter.Acquire(executionContext, 1); acquireError != nil {
			break
		}
		waitGroup.Add(1)
		go func(repository *migration.Repository) {
			defer waitGroup.Done()
			defer limiter.Release(1)
			if service.migrateRepository(executionContext, project, repository, options) {
				mutex.Lock()
				transferred = append(transferred, transferredRepository{project: project, repository: repository})
				mutex.Unlock()
			}
		}(repository)
	}
	waitGroup.Wait()

	for _, team := range project.Teams {
		if executionContext.Err() != nil {
			break
		}
		if team.Status.IsTerminal() {
			continue
		}
		service.migrateTeam(executionContext, project, team, options)
	}
	return transferred
}

func (service *Service) migrateRepository(executionContext context.Context, project *migration.Project, repository *migration.Repository, options Options) bool {
	service.setRepositoryStatus(project, repository, migration.StatusInProgress, nil)

	description := fmt.Sprintf(repositoryDescriptionTemplateConstant, service.source.Organization(), project.Name, repository.Name)
	creation, creationError := service.target.CreateRepository(executionContext, repository.TargetName, description)
	if creationError != nil {
		service.setRepositoryStatus(project, repository, migration.StatusFailed, fmt.Errorf(repositoryCreationTemplateConstant, creationError))
		return false
	}
	if len(creation.Repository.URL) > 0 {
		repository.TargetURL = creation.Repository.URL
	}

	outcome := service.transferer.Transfer(executionContext, transfer.Request{
		Repository:       repository,
		ProjectName:      project.Name,
		SourceURL:        repository.URL,
		SourceToken:      options.SourceToken,
		SourceCollection: service.source.CollectionURL(),
		TargetURL:        service.target.RemoteURL(repository.TargetName),
		TargetToken:      options.TargetToken,
	})
	service.setRepositoryStatus(project, repository, outcome.Status, outcome.Error)
	return outcome.Status == migration.StatusCompleted || outcome.Status == migration.StatusPartiallyCompleted
}

func (service *Service) migrateTeam(executionContext context.Context, project *migration.Project, team *migration.Team, options Options) {
	service.setTeamStatus(project, team, migration.StatusInProgress, nil)

	creation, creationError := service.target.CreateTeam(executionContext, team.TargetName, team.Description)
	if creationError != nil {
		service.setTeamStatus(project, team, migration.StatusFailed, fmt.Errorf(teamCreationTemplateConstant, creationError))
		return
	}
	teamSlug := creation.Team.Slug
	if len(teamSlug) == 0 {
		teamSlug = team.TargetName
	}
	if len(creation.Team.URL) > 0 {
		team.TargetURL = creation.Team.URL
	}

	service.migrateMembers(executionContext, project, team, teamSlug, options.MemberBatchSize)

	var permissionFailures []error
	for _, repository := range project.Repositories {
		if repository.Status != migration.StatusCompleted && repository.Status != migration.StatusPartiallyCompleted {
			continue
		}
		if permissionError := service.target.SetTeamRepositoryPermission(executionContext, teamSlug, repository.TargetName, options.RepositoryPermission); permissionError != nil {
			permissionFailures = append(permissionFailures, fmt.Errorf(permissionTemplateConstant, repository.TargetName, permissionError))
		}
	}

	allMembersDone := true
	for _, member := range team.Members {
		if !member.Status.IsDone() {
			allMembersDone = false
			break
		}
	}
	if allMembersDone && len(permissionFailures) == 0 {
		service.setTeamStatus(project, team, migration.StatusCompleted, nil)
		return
	}
	service.setTeamStatus(project, team, migration.StatusPartiallyCompleted, errors.Join(permissionFailures...))
}

// migrateMembers adds unfinished members in batches; each membership is independent.
func (service *Service) migrateMembers(executionContext context.Context, project *migration.Project, team *migration.Team, teamSlug string, batchSize int) {
	pending := make([]*migration.TeamMember, 0, len(team.Members))
	for _, member := range team.Members {
		if !member.Status.IsTerminal() {
			pending = append(pending, member)
		}
	}

	for batchStart := 0; batchStart < len(pending); batchStart += batchSize {
		if executionContext.Err() != nil {
			return
		}
		batchEnd := min(batchStart+batchSize, len(pending))

		var batch errgroup.Group
		for _, member := range pending[batchStart:batchEnd] {
			batch.Go(func() error {
				return service.migrateMember(executionContext, project, team, teamSlug, member)
			})
		}
		if batchError := batch.Wait(); batchError != nil {
			service.logger.Debug(memberBatchFailedLogMessageConstant, zap.String(teamFieldConstant, team.TargetName), zap.Int(batchStartFieldConstant, batchStart), zap.Error(batchError))
		}
	}
}

func (service *Service) migrateMember(executionContext context.Context, project *migration.Project, team *migration.Team, teamSlug string, member *migration.TeamMember) error {
	if member.IsGroup {
		return nil
	}
	service.setMemberStatus(project, team, member, migration.StatusInProgress, nil)
	if len(strings.TrimSpace(member.TargetUsername)) == 0 {
		unmappedError := errors.New(userNotMappedMessageConstant)
		service.setMemberStatus(project, team, member, migration.StatusFailed, unmappedError)
		return unmappedError
	}

	role := githubapi.TeamRoleMember
	if member.IsSourceAdmin {
		role = githubapi.TeamRoleMaintainer
	}
	state, membershipError := service.target.SetTeamMembership(executionContext, teamSlug, member.TargetUsername, role)
	if membershipError != nil {
		service.setMemberStatus(project, team, member, migration.StatusFailed, membershipError)
		return fmt.Errorf(memberFailureTemplateConstant, teamSlug, member.TargetUsername, membershipError)
	}
	status, failure := reconcile.ClassifyMembership(state)
	service.setMemberStatus(project, team, member, status, failure)
	return nil
}

// reconcileDefaultBranches applies the source default branch to every
// repository transferred in this run, retrying each a bounded number of times.
func (service *Service) reconcileDefaultBranches(executionContext context.Context, transferred []transferredRepository, options Options) {
	touched := map[*migration.Project]struct{}{}
	for _, item := range transferred {
		repository := item.repository
		if len(repository.DefaultBranch) == 0 {
			continue
		}
		if executionContext.Err() != nil {
			return
		}

		callError := retry.Call(retry.CallArgs{
			Func: func() error {
				return service.target.SetDefaultBranch(executionContext, repository.TargetName, repository.DefaultBranch)
			},
			IsFatalError: func(error) bool {
				return executionContext.Err() != nil
			},
			NotifyFunc: func(lastError error, attempt int) {
				service.logger.Warn(defaultBranchRetryLogMessageConstant, zap.String(repositoryFieldConstant, repository.TargetName), zap.Int(attemptFieldConstant, attempt), zap.Error(lastError))
			},
			Attempts: options.DefaultBranchAttempts,
			Delay:    options.DefaultBranchRetryDelay,
			Clock:    service.clock,
			Stop:     executionContext.Done(),
		})
		if callError == nil {
			continue
		}
		if retry.IsAttemptsExceeded(callError) {
			callError = retry.LastError(callError)
		}
		service.setRepositoryStatus(item.project, repository, migration.StatusPartiallyCompleted, fmt.Errorf(defaultBranchTemplateConstant, repository.DefaultBranch, callError))
		touched[item.project] = struct{}{}
	}

	for project := range touched {
		project.RecomputeStatus()
		service.notifyProject(project)
	}
}

func (service *Service) setRepositoryStatus(project *migration.Project, repository *migration.Repository, status migration.Status, failure error) {
	repository.MarkStatus(status, failure)
	service.progress.StatusChanged(migration.StatusChange{Kind: migration.EntityKindRepository, ProjectName: project.Name, EntityName: repository.Name, Status: status, Reason: repository.Error})
}

func (service *Service) setTeamStatus(project *migration.Project, team *migration.Team, status migration.Status, failure error) {
	team.MarkStatus(status, failure)
	service.progress.StatusChanged(migration.StatusChange{Kind: migration.EntityKindTeam, ProjectName: project.Name, EntityName: team.Name, Status: status, Reason: team.Error})
}

func (service *Service) setMemberStatus(project *migration.Project, team *migration.Team, member *migration.TeamMember, status migration.Status, failure error) {
	member.MarkStatus(status, failure)
	service.progress.StatusChanged(migration.StatusChange{Kind: migration.EntityKindMember, ProjectName: project.Name, EntityName: fmt.Sprintf(memberEntityNameTemplateConstant, team.Name, member.UniqueName), Status: status, Reason: member.Error})
}

func (service *Service) notifyProject(project *migration.Project) {
	service.progress.StatusChanged(migration.StatusChange{Kind: migration.EntityKindProject, ProjectName: project.Name, EntityName: project.Name, Status: project.Status, Reason: project.Error})
}

func normalizeOptions(options Options) (Options, error) {
	normalized := options
	if normalized.Concurrency <= 0 {
		normalized.Concurrency = defaultConcurrencyConstant
	}
	if normalized.MemberBatchSize <= 0 {
		normalized.MemberBatchSize = defaultMemberBatchSizeConstant
	}
	if normalized.DefaultBranchAttempts <= 0 {
		normalized.DefaultBranchAttempts = defaultDefaultBranchAttemptsConstant
	}
	if normalized.DefaultBranchRetryDelay <= 0 {
		normalized.DefaultBranchRetryDelay = defaultDefaultBranchRetryDelayConstant
	}
	if len(normalized.RepositoryPermission) == 0 {
		normalized.RepositoryPermission = githubapi.PermissionPush
	}
	if !normalized.RepositoryPermission.IsValid() {
		return Options{}, ConfigurationError{Key: migrationPermissionKeyConstant, Message: fmt.Sprintf(unsupportedPermissionTemplateConstant, normalized.RepositoryPermission)}
	}

	seen := map[string]struct{}{}
	projects := make([]string, 0, len(options.Projects))
	for _, projectName := range options.Projects {
		trimmed := strings.TrimSpace(projectName)
		if len(trimmed) == 0 {
			continue
		}
		if _, duplicate := seen[strings.ToLower(trimmed)]; duplicate {
			continue
		}
		seen[strings.ToLower(trimmed)] = struct{}{}
		projects = append(projects, trimmed)
	}
	normalized.Projects = projects
	return normalized, nil
}
