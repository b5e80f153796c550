// Package testsupport provides in-memory source and target platforms for
// orchestrator and command tests.
package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/temirov/orgmigrate/internal/azuredevops"
	"github.com/temirov/orgmigrate/internal/githubapi"
	"github.com/temirov/orgmigrate/internal/migration"
	"github.com/temirov/orgmigrate/internal/transfer"
)

const (
	remoteURLTemplateConstant     = "https://github.com/%s/%s.git"
	repositoryURLTemplateConstant = "https://github.com/%s/%s"
	teamURLTemplateConstant       = "https://github.com/orgs/%s/teams/%s"
	membershipKeyTemplateConstant = "%s/%s"
	pushedDefaultBranchConstant   = "master"
)

// SourcePlatformStub serves fixed project trees. GetProject returns a fresh
// copy on every call so repeated runs start from unassessed entities.
type SourcePlatformStub struct {
	OrganizationName string
	Collection       string
	ProjectOrder     []string
	Projects         map[string]*migration.Project
	ProjectErrors    map[string]error
	ListError        error
	RequestedNames   []string
}

// Organization returns the configured organization name.
func (stub *SourcePlatformStub) Organization() string {
	return stub.OrganizationName
}

// CollectionURL returns the configured collection URL.
func (stub *SourcePlatformStub) CollectionURL() string {
	return stub.Collection
}

// ListProjects returns summaries in ProjectOrder.
func (stub *SourcePlatformStub) ListProjects(context.Context) ([]azuredevops.ProjectSummary, error) {
	if stub.ListError != nil {
		return nil, stub.ListError
	}
	summaries := make([]azuredevops.ProjectSummary, 0, len(stub.ProjectOrder))
	for _, projectName := range stub.ProjectOrder {
		summaries = append(summaries, azuredevops.ProjectSummary{Name: projectName})
	}
	return summaries, nil
}

// GetProject returns a copy of the named project tree.
func (stub *SourcePlatformStub) GetProject(_ context.Context, projectName string) (*migration.Project, error) {
	stub.RequestedNames = append(stub.RequestedNames, projectName)
	if projectError := stub.ProjectErrors[projectName]; projectError != nil {
		return nil, projectError
	}
	project, found := stub.Projects[projectName]
	if !found {
		return nil, fmt.Errorf("project %s not found", projectName)
	}
	return CloneProject(project), nil
}

// CloneProject deep-copies a project tree.
func CloneProject(project *migration.Project) *migration.Project {
	cloned := *project
	cloned.Repositories = make([]*migration.Repository, 0, len(project.Repositories))
	for _, repository := range project.Repositories {
		repositoryCopy := *repository
		cloned.Repositories = append(cloned.Repositories, &repositoryCopy)
	}
	cloned.Teams = make([]*migration.Team, 0, len(project.Teams))
	for _, team := range project.Teams {
		teamCopy := *team
		teamCopy.Members = make([]*migration.TeamMember, 0, len(team.Members))
		for _, member := range team.Members {
			memberCopy := *member
			teamCopy.Members = append(teamCopy.Members, &memberCopy)
		}
		cloned.Teams = append(cloned.Teams, &teamCopy)
	}
	return &cloned
}

// TargetPlatformStub is an in-memory target organization. It is safe for concurrent use.
type TargetPlatformStub struct {
	mutex                  sync.Mutex
	OrganizationName       string
	AccessError            error
	Repositories           map[string]githubapi.RepositoryState
	Teams                  map[string]githubapi.TeamState
	Memberships            map[string]githubapi.MembershipState
	MembershipRoles        map[string]githubapi.TeamRole
	Permissions            map[string]githubapi.RepositoryPermission
	InvitedUsers           map[string]bool
	MembershipErrors       map[string]error
	CreateRepositoryErrors map[string]error
	DefaultBranchFailures  map[string]int
	Members                []string
	MembersError           error
	SSOIdentities          []githubapi.SSOIdentity
	Mutations              []string
}

// NewTargetPlatformStub constructs an empty target organization.
func NewTargetPlatformStub(organization string) *TargetPlatformStub {
	return &TargetPlatformStub{
		OrganizationName:       organization,
		Repositories:           map[string]githubapi.RepositoryState{},
		Teams:                  map[string]githubapi.TeamState{},
		Memberships:            map[string]githubapi.MembershipState{},
		MembershipRoles:        map[string]githubapi.TeamRole{},
		Permissions:            map[string]githubapi.RepositoryPermission{},
		InvitedUsers:           map[string]bool{},
		MembershipErrors:       map[string]error{},
		CreateRepositoryErrors: map[string]error{},
		DefaultBranchFailures:  map[string]int{},
	}
}

// Organization returns the configured organization name.
func (stub *TargetPlatformStub) Organization() string {
	return stub.OrganizationName
}

// RemoteURL returns the clone URL of repositoryName.
func (stub *TargetPlatformStub) RemoteURL(repositoryName string) string {
	return fmt.Sprintf(remoteURLTemplateConstant, stub.OrganizationName, repositoryName)
}

// CheckOrganizationAccess returns AccessError.
func (stub *TargetPlatformStub) CheckOrganizationAccess(context.Context) error {
	return stub.AccessError
}

// GetRepository reports the stored repository state.
func (stub *TargetPlatformStub) GetRepository(_ context.Context, repositoryName string) (githubapi.RepositoryState, error) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return stub.Repositories[repositoryName], nil
}

// CreateRepository stores an empty repository unless one already exists.
func (stub *TargetPlatformStub) CreateRepository(_ context.Context, repositoryName string, _ string) (githubapi.CreateRepositoryResult, error) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	stub.Mutations = append(stub.Mutations, "create-repository:"+repositoryName)
	if creationError := stub.CreateRepositoryErrors[repositoryName]; creationError != nil {
		return githubapi.CreateRepositoryResult{}, creationError
	}
	if existing, found := stub.Repositories[repositoryName]; found && existing.Exists {
		return githubapi.CreateRepositoryResult{Repository: existing, AlreadyExisted: true}, nil
	}
	state := githubapi.RepositoryState{
		Exists:   true,
		Empty:    true,
		URL:      fmt.Sprintf(repositoryURLTemplateConstant, stub.OrganizationName, repositoryName),
		CloneURL: stub.RemoteURL(repositoryName),
	}
	stub.Repositories[repositoryName] = state
	return githubapi.CreateRepositoryResult{Repository: state}, nil
}

// SetDefaultBranch updates the stored default branch, failing first
// DefaultBranchFailures[repositoryName] times.
func (stub *TargetPlatformStub) SetDefaultBranch(_ context.Context, repositoryName string, branch string) error {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	stub.Mutations = append(stub.Mutations, "default-branch:"+repositoryName)
	if remaining := stub.DefaultBranchFailures[repositoryName]; remaining > 0 {
		stub.DefaultBranchFailures[repositoryName] = remaining - 1
		return fmt.Errorf("branch %s not found", branch)
	}
	state := stub.Repositories[repositoryName]
	state.DefaultBranch = branch
	stub.Repositories[repositoryName] = state
	return nil
}

// MarkPushed records that content reached repositoryName.
func (stub *TargetPlatformStub) MarkPushed(repositoryName string) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	state := stub.Repositories[repositoryName]
	state.Empty = false
	if len(state.DefaultBranch) == 0 {
		state.DefaultBranch = pushedDefaultBranchConstant
	}
	stub.Repositories[repositoryName] = state
}

// GetTeam reports the stored team state.
func (stub *TargetPlatformStub) GetTeam(_ context.Context, slug string) (githubapi.TeamState, error) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return stub.Teams[slug], nil
}

// CreateTeam stores a team unless one already exists.
func (stub *TargetPlatformStub) CreateTeam(_ context.Context, name string, _ string) (githubapi.CreateTeamResult, error) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	stub.Mutations = append(stub.Mutations, "create-team:"+name)
	if existing, found := stub.Teams[name]; found && existing.Exists {
		return githubapi.CreateTeamResult{Team: existing, AlreadyExisted: true}, nil
	}
	state := githubapi.TeamState{Exists: true, Slug: name, URL: fmt.Sprintf(teamURLTemplateConstant, stub.OrganizationName, name)}
	stub.Teams[name] = state
	return githubapi.CreateTeamResult{Team: state}, nil
}

// SetTeamRepositoryPermission records the permission.
func (stub *TargetPlatformStub) SetTeamRepositoryPermission(_ context.Context, teamSlug string, repositoryName string, permission githubapi.RepositoryPermission) error {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	stub.Mutations = append(stub.Mutations, "permission:"+teamSlug+"/"+repositoryName)
	stub.Permissions[fmt.Sprintf(membershipKeyTemplateConstant, teamSlug, repositoryName)] = permission
	return nil
}

// GetTeamMembership reports the stored membership, absent by default.
func (stub *TargetPlatformStub) GetTeamMembership(_ context.Context, teamSlug string, username string) (githubapi.MembershipState, error) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	state, found := stub.Memberships[fmt.Sprintf(membershipKeyTemplateConstant, teamSlug, username)]
	if !found {
		return githubapi.MembershipAbsent, nil
	}
	return state, nil
}

// SetTeamMembership records the membership. Users listed in InvitedUsers
// remain pending; everyone else becomes active.
func (stub *TargetPlatformStub) SetTeamMembership(_ context.Context, teamSlug string, username string, role githubapi.TeamRole) (githubapi.MembershipState, error) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	key := fmt.Sprintf(membershipKeyTemplateConstant, teamSlug, username)
	stub.Mutations = append(stub.Mutations, "membership:"+key)
	if membershipError := stub.MembershipErrors[username]; membershipError != nil {
		return "", membershipError
	}
	state := githubapi.MembershipActive
	if stub.InvitedUsers[username] {
		state = githubapi.MembershipPending
	}
	stub.Memberships[key] = state
	stub.MembershipRoles[key] = role
	return state, nil
}

// ListOrganizationMembers returns Members or MembersError.
func (stub *TargetPlatformStub) ListOrganizationMembers(context.Context) ([]string, error) {
	if stub.MembersError != nil {
		return nil, stub.MembersError
	}
	return append([]string{}, stub.Members...), nil
}

// ListSSOIdentities returns SSOIdentities.
func (stub *TargetPlatformStub) ListSSOIdentities(context.Context) ([]githubapi.SSOIdentity, error) {
	return append([]githubapi.SSOIdentity{}, stub.SSOIdentities...), nil
}

// MutationLog returns a sorted copy of every mutation performed.
func (stub *TargetPlatformStub) MutationLog() []string {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	mutations := append([]string{}, stub.Mutations...)
	sort.Strings(mutations)
	return mutations
}

// TransfererStub returns scripted outcomes and marks successful pushes on Target.
type TransfererStub struct {
	mutex         sync.Mutex
	Target        *TargetPlatformStub
	Outcomes      map[string]transfer.Outcome
	Delay         time.Duration
	Requests      []transfer.Request
	MaximumActive int
	active        int
}

// Transfer records the request and returns the scripted outcome, Completed by default.
func (stub *TransfererStub) Transfer(_ context.Context, request transfer.Request) transfer.Outcome {
	stub.mutex.Lock()
	stub.Requests = append(stub.Requests, request)
	stub.active++
	if stub.active > stub.MaximumActive {
		stub.MaximumActive = stub.active
	}
	outcome, scripted := stub.Outcomes[request.Repository.Name]
	stub.mutex.Unlock()

	if stub.Delay > 0 {
		time.Sleep(stub.Delay)
	}

	stub.mutex.Lock()
	stub.active--
	stub.mutex.Unlock()

	if !scripted {
		outcome = transfer.Outcome{Status: migration.StatusCompleted, PushAttempts: 1}
	}
	if stub.Target != nil && (outcome.Status == migration.StatusCompleted || outcome.Status == migration.StatusPartiallyCompleted) {
		stub.Target.MarkPushed(request.Repository.TargetName)
	}
	return outcome
}

// RequestedRepositories returns the sorted names of transferred repositories.
func (stub *TransfererStub) RequestedRepositories() []string {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	names := make([]string, 0, len(stub.Requests))
	for _, request := range stub.Requests {
		names = append(names, request.Repository.Name)
	}
	sort.Strings(names)
	return names
}
