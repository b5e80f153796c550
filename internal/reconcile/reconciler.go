package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/orgmigrate/internal/githubapi"
	"github.com/temirov/orgmigrate/internal/migration"
	"github.com/temirov/orgmigrate/internal/naming"
)

const (
	noBranchesMessageConstant             = "No branches to migrate"
	userNotMappedMessageConstant          = "User not found in mapping file"
	groupMemberMessageConstant            = "group members are not migrated"
	noMembersMessageConstant              = "No members to migrate"
	emptyTargetMessageConstant            = "target repository exists but contains no branches"
	membershipAbsentMessageConstant       = "no team membership on target"
	membershipPendingMessageConstant      = "team membership invitation pending"
	defaultBranchMismatchTemplateConstant = "target default branch %q differs from source default branch %q"
	nameNotGeneratedTemplateConstant      = "%s %q skipped: %w"
	targetMissingMessageConstant          = "target reader not configured"
	identitiesMissingMessageConstant      = "identity mapping not configured"
	nameSkippedLogMessageConstant         = "entity skipped because no target name could be generated"
	targetQueryFailedLogMessageConstant   = "target state query failed"
	projectAssessedLogMessageConstant     = "project assessed"
	projectFieldConstant                  = "project"
	repositoryFieldConstant               = "repository"
	teamFieldConstant                     = "team"
	memberFieldConstant                   = "member"
	statusFieldConstant                   = "status"
	repositoryEntityLabelConstant         = "repository"
	teamEntityLabelConstant               = "team"
)

var (
	// ErrTargetReaderNotConfigured indicates the reconciler was built without target access.
	ErrTargetReaderNotConfigured = errors.New(targetMissingMessageConstant)
	// ErrIdentitiesNotConfigured indicates the reconciler was built without an identity mapping.
	ErrIdentitiesNotConfigured   = errors.New(identitiesMissingMessageConstant)
)

// TargetReader exposes the read-only target queries used during assessment.
type TargetReader interface {
	GetRepository(executionContext context.Context, repositoryName string) (githubapi.RepositoryState, error)
	GetTeam(executionContext context.Context, slug string) (githubapi.TeamState, error)
	GetTeamMembership(executionContext context.Context, teamSlug string, username string) (githubapi.MembershipState, error)
}

// IdentityLookup resolves a source unique name to a target username.
type IdentityLookup interface {
	Lookup(uniqueName string) (string, bool)
}

// NameResolver produces target names from patterns.
type NameResolver interface {
	Resolve(pattern string, values naming.Placeholders) (string, error)
}

// ReconcilerDependencies provides the collaborators required by Reconciler.
type ReconcilerDependencies struct {
	Target     TargetReader
	Identities IdentityLookup
	Names      NameResolver
	Logger     *zap.Logger
	Progress   migration.ProgressObserver
}

// ReconcilerOptions configures target name generation.
type ReconcilerOptions struct {
	OrganizationName  string
	RepositoryPattern string
	TeamPattern       string
}

// Reconciler assesses projects against the target platform.
type Reconciler struct {
	target     TargetReader
	identities IdentityLookup
	names      NameResolver
	logger     *zap.Logger
	progress   migration.ProgressObserver
	options    ReconcilerOptions
}

// NewReconciler validates dependencies and constructs a Reconciler.
func NewReconciler(dependencies ReconcilerDependencies, options ReconcilerOptions) (*Reconciler, error) {
	if dependencies.Target == nil {
		return nil, ErrTargetReaderNotConfigured
	}
	if dependencies.Identities == nil {
		return nil, ErrIdentitiesNotConfigured
	}

	names := dependencies.Names
	if names == nil {
		names = naming.NewResolver(0)
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progress := dependencies.Progress
	if progress == nil {
		progress = migration.NoopProgressObserver{}
	}

	return &Reconciler{
		target:     dependencies.Target,
		identities: dependencies.Identities,
		names:      names,
		logger:     logger,
		progress:   progress,
		options:    options,
	}, nil
}

// Assess assigns a status to every repository, team, and member of project
// and recomputes the project aggregate. Target query failures are recorded on
// the affected entity; only context cancellation is returned as an error.
func (reconciler *Reconciler) Assess(executionContext context.Context, project *migration.Project) error {
	if project == nil {
		return nil
	}

	for _, repository := range project.Repositories {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		reconciler.assessRepository(executionContext, project, repository)
	}

	for _, team := range project.Teams {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		reconciler.assessTeam(executionContext, project, team)
	}

	project.RecomputeStatus()
	reconciler.logger.Info(projectAssessedLogMessageConstant, zap.String(projectFieldConstant, project.Name), zap.String(statusFieldConstant, project.Status.String()))
	reconciler.progress.StatusChanged(migration.StatusChange{Kind: migration.EntityKindProject, ProjectName: project.Name, EntityName: project.Name, Status: project.Status})
	return nil
}

// ResolveRepositoryName returns the target name for a repository of project.
func (reconciler *Reconciler) ResolveRepositoryName(project *migration.Project, repository *migration.Repository) (string, error) {
	return reconciler.names.Resolve(reconciler.options.RepositoryPattern, naming.Placeholders{
		OrganizationName: reconciler.options.OrganizationName,
		ProjectName:      project.Name,
		EntityName:       repository.Name,
	})
}

// ResolveTeamName returns the target name for a team of project.
func (reconciler *Reconciler) ResolveTeamName(project *migration.Project, team *migration.Team) (string, error) {
	return reconciler.names.Resolve(reconciler.options.TeamPattern, naming.Placeholders{
		OrganizationName: reconciler.options.OrganizationName,
		ProjectName:      project.Name,
		EntityName:       team.Name,
	})
}

func (reconciler *Reconciler) assessRepository(executionContext context.Context, project *migration.Project, repository *migration.Repository) {
	repository.TargetName = ""
	repository.TargetURL = ""
	repository.MarkStatus(migration.StatusInProgress, nil)

	targetName, nameError := reconciler.ResolveRepositoryName(project, repository)
	if nameError != nil {
		reconciler.logger.Warn(nameSkippedLogMessageConstant, zap.String(projectFieldConstant, project.Name), zap.String(repositoryFieldConstant, repository.Name))
		reconciler.finishRepository(project, repository, migration.StatusSkipped, fmt.Errorf(nameNotGeneratedTemplateConstant, repositoryEntityLabelConstant, repository.Name, nameError))
		return
	}
	repository.TargetName = targetName

	state, queryError := reconciler.target.GetRepository(executionContext, targetName)
	if queryError != nil {
		reconciler.logger.Warn(targetQueryFailedLogMessageConstant, zap.String(projectFieldConstant, project.Name), zap.String(repositoryFieldConstant, targetName), zap.Error(queryError))
		reconciler.finishRepository(project, repository, migration.StatusFailed, queryError)
		return
	}

	if state.Exists {
		repository.TargetURL = state.URL
		status, failure := classifyExistingRepository(repository, state)
		reconciler.finishRepository(project, repository, status, failure)
		return
	}

	if !repository.Kind.IsLegacy() && repository.BranchCount == 0 {
		reconciler.finishRepository(project, repository, migration.StatusSkipped, errors.New(noBranchesMessageConstant))
		return
	}
	reconciler.finishRepository(project, repository, migration.StatusPending, nil)
}

func classifyExistingRepository(repository *migration.Repository, state githubapi.RepositoryState) (migration.Status, error) {
	if state.Empty {
		return migration.StatusPartiallyCompleted, errors.New(emptyTargetMessageConstant)
	}
	if len(repository.DefaultBranch) == 0 || repository.DefaultBranch == state.DefaultBranch {
		return migration.StatusCompleted, nil
	}
	return migration.StatusPartiallyCompleted, fmt.Errorf(defaultBranchMismatchTemplateConstant, state.DefaultBranch, repository.DefaultBranch)
}

func (reconciler *Reconciler) finishRepository(project *migration.Project, repository *migration.Repository, status migration.Status, failure error) {
	repository.MarkStatus(status, failure)
	reconciler.progress.StatusChanged(migration.StatusChange{
		Kind:        migration.EntityKindRepository,
		ProjectName: project.Name,
		EntityName:  repository.Name,
		Status:      status,
		Reason:      repository.Error,
	})
}

func (reconciler *Reconciler) assessTeam(executionContext context.Context, project *migration.Project, team *migration.Team) {
	team.TargetName = ""
	team.TargetURL = ""
	team.MarkStatus(migration.StatusInProgress, nil)
	for _, member := range team.Members {
		member.TargetUsername = ""
		member.MarkStatus(migration.StatusPending, nil)
	}

	targetName, nameError := reconciler.ResolveTeamName(project, team)
	if nameError != nil {
		reconciler.logger.Warn(nameSkippedLogMessageConstant, zap.String(projectFieldConstant, project.Name), zap.String(teamFieldConstant, team.Name))
		reconciler.finishTeam(project, team, migration.StatusSkipped, fmt.Errorf(nameNotGeneratedTemplateConstant, teamEntityLabelConstant, team.Name, nameError))
		return
	}
	team.TargetName = targetName

	state, queryError := reconciler.target.GetTeam(executionContext, targetName)
	if queryError != nil {
		reconciler.logger.Warn(targetQueryFailedLogMessageConstant, zap.String(projectFieldConstant, project.Name), zap.String(teamFieldConstant, targetName), zap.Error(queryError))
		reconciler.finishTeam(project, team, migration.StatusFailed, queryError)
		return
	}

	if !state.Exists {
		if len(team.Members) == 0 {
			reconciler.finishTeam(project, team, migration.StatusSkipped, errors.New(noMembersMessageConstant))
			return
		}
		for _, member := range team.Members {
			reconciler.prepareMember(project, team, member)
		}
		reconciler.finishTeam(project, team, migration.StatusPending, nil)
		return
	}

	team.TargetURL = state.URL
	teamSlug := state.Slug
	if len(teamSlug) == 0 {
		teamSlug = targetName
	}

	team.MarkStatus(migration.StatusPartiallyCompleted, nil)
	allMembersDone := true
	for _, member := range team.Members {
		reconciler.assessMember(executionContext, project, team, teamSlug, member)
		if !member.Status.IsDone() {
			allMembersDone = false
		}
	}

	if allMembersDone {
		reconciler.finishTeam(project, team, migration.StatusCompleted, nil)
		return
	}
	reconciler.finishTeam(project, team, migration.StatusPartiallyCompleted, nil)
}

// prepareMember fills in the mapped username of a member whose team does not exist yet.
func (reconciler *Reconciler) prepareMember(project *migration.Project, team *migration.Team, member *migration.TeamMember) {
	if member.IsGroup {
		reconciler.finishMember(project, team, member, migration.StatusSkipped, errors.New(groupMemberMessageConstant))
		return
	}
	if targetUsername, found := reconciler.identities.Lookup(member.UniqueName); found {
		member.TargetUsername = targetUsername
	}
	member.MarkStatus(migration.StatusPending, nil)
}

func (reconciler *Reconciler) assessMember(executionContext context.Context, project *migration.Project, team *migration.Team, teamSlug string, member *migration.TeamMember) {
	member.MarkStatus(migration.StatusInProgress, nil)
	if member.IsGroup {
		reconciler.finishMember(project, team, member, migration.StatusSkipped, errors.New(groupMemberMessageConstant))
		return
	}

	targetUsername, found := reconciler.identities.Lookup(member.UniqueName)
	if !found {
		reconciler.finishMember(project, team, member, migration.StatusFailed, errors.New(userNotMappedMessageConstant))
		return
	}
	member.TargetUsername = targetUsername

	membershipState, queryError := reconciler.target.GetTeamMembership(executionContext, teamSlug, targetUsername)
	if queryError != nil {
		reconciler.logger.Warn(targetQueryFailedLogMessageConstant, zap.String(teamFieldConstant, teamSlug), zap.String(memberFieldConstant, targetUsername), zap.Error(queryError))
		reconciler.finishMember(project, team, member, migration.StatusFailed, queryError)
		return
	}

	status, failure := ClassifyMembership(membershipState)
	reconciler.finishMember(project, team, member, status, failure)
}

// ClassifyMembership maps a live membership state to a member status.
func ClassifyMembership(state githubapi.MembershipState) (migration.Status, error) {
	switch state {
	case githubapi.MembershipActive:
		return migration.StatusCompleted, nil
	case githubapi.MembershipPending:
		return migration.StatusPending, errors.New(membershipPendingMessageConstant)
	default:
		return migration.StatusFailed, errors.New(membershipAbsentMessageConstant)
	}
}

func (reconciler *Reconciler) finishMember(project *migration.Project, team *migration.Team, member *migration.TeamMember, status migration.Status, failure error) {
	member.MarkStatus(status, failure)
	reconciler.progress.StatusChanged(migration.StatusChange{
		Kind:        migration.EntityKindMember,
		ProjectName: project.Name,
		EntityName:  team.Name + "/" + member.UniqueName,
		Status:      status,
		Reason:      member.Error,
	})
}

func (reconciler *Reconciler) finishTeam(project *migration.Project, team *migration.Team, status migration.Status, failure error) {
	team.MarkStatus(status, failure)
	reconciler.progress.StatusChanged(migration.StatusChange{
		Kind:        migration.EntityKindTeam,
		ProjectName: project.Name,
		EntityName:  team.Name,
		Status:      status,
		Reason:      team.Error,
	})
}
