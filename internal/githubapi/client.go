package githubapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/temirov/orgmigrate/internal/gitrepo"
	"github.com/temirov/orgmigrate/internal/httpclient"
)

const (
	defaultGraphQLURLConstant        = "https://api.github.com/graphql"
	defaultWebHostConstant           = "github.com"
	authorizationHeaderConstant      = "Authorization"
	contentTypeHeaderConstant        = "Content-Type"
	jsonMediaTypeConstant            = "application/json"
	bearerPrefixConstant             = "Bearer "
	closedTeamPrivacyConstant        = "closed"
	pathSeparatorConstant            = "/"
	organizationFieldNameConstant    = "organization"
	tokenFieldNameConstant           = "token"
	baseURLFieldNameConstant         = "base_url"
	repositoryFieldNameConstant      = "repository"
	teamFieldNameConstant            = "team"
	usernameFieldNameConstant        = "username"
	branchFieldNameConstant          = "branch"
	permissionFieldNameConstant      = "permission"
	roleFieldNameConstant            = "role"
	unsupportedValueMessageConstant  = "unsupported value"
	repositoryFieldConstant          = "repository"
	teamFieldConstant                = "team"
	conflictProbeMessageConstant     = "target reported a conflict; probing existing resource"
	repositoryCreatedMessageConstant = "target repository created"
	teamCreatedMessageConstant       = "target team created"
	organizationFieldConstant        = "organization"
)

// ClientDependencies provides the collaborators required by Client.
type ClientDependencies struct {
	HTTPClient *httpclient.Client
	Logger     *zap.Logger
}

// ClientOptions identify the organization, credential, and endpoints.
// BaseURL and GraphQLURL default to the public GitHub API; WebURL defaults to
// https://github.com and determines the clone URLs handed to git.
type ClientOptions struct {
	Organization string
	Token        string
	BaseURL      string
	GraphQLURL   string
	WebURL       string
}

// Client is the target platform adapter.
type Client struct {
	github       *github.Client
	requests     *httpclient.Client
	logger       *zap.Logger
	organization string
	token        string
	graphQLURL   string
	webHost      string
}

// NewClient validates options and constructs a Client.
func NewClient(dependencies ClientDependencies, options ClientOptions) (*Client, error) {
	if dependencies.HTTPClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	organization := strings.TrimSpace(options.Organization)
	if len(organization) == 0 {
		return nil, InvalidInputError{FieldName: organizationFieldNameConstant, Message: requiredValueMessageConstant}
	}
	token := strings.TrimSpace(options.Token)
	if len(token) == 0 {
		return nil, InvalidInputError{FieldName: tokenFieldNameConstant, Message: requiredValueMessageConstant}
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transportContext := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: dependencies.HTTPClient})
	authenticatedClient := oauth2.NewClient(transportContext, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	githubClient := github.NewClient(authenticatedClient)

	if baseURL := strings.TrimSpace(options.BaseURL); len(baseURL) > 0 {
		if !strings.HasSuffix(baseURL, pathSeparatorConstant) {
			baseURL += pathSeparatorConstant
		}
		parsedBaseURL, parseError := url.Parse(baseURL)
		if parseError != nil {
			return nil, InvalidInputError{FieldName: baseURLFieldNameConstant, Message: parseError.Error()}
		}
		githubClient.BaseURL = parsedBaseURL
	}

	graphQLURL := strings.TrimSpace(options.GraphQLURL)
	if len(graphQLURL) == 0 {
		graphQLURL = defaultGraphQLURLConstant
	}

	webHost := defaultWebHostConstant
	if webURL := strings.TrimSpace(options.WebURL); len(webURL) > 0 {
		parsedWebURL, parseError := url.Parse(webURL)
		if parseError == nil && len(parsedWebURL.Host) > 0 {
			webHost = parsedWebURL.Host
		}
	}

	return &Client{
		github:       githubClient,
		requests:     dependencies.HTTPClient,
		logger:       logger,
		organization: organization,
		token:        token,
		graphQLURL:   graphQLURL,
		webHost:      webHost,
	}, nil
}

// Organization returns the target organization login.
func (client *Client) Organization() string {
	return client.organization
}

// RemoteURL returns the HTTPS clone URL of a repository in the organization.
func (client *Client) RemoteURL(repositoryName string) string {
	remote, formatError := gitrepo.GitHubCloneURL(client.webHost, client.organization, repositoryName)
	if formatError != nil {
		return ""
	}
	return remote
}

// CheckOrganizationAccess verifies the token can read the organization.
func (client *Client) CheckOrganizationAccess(executionContext context.Context) error {
	_, response, getError := client.github.Organizations.Get(executionContext, client.organization)
	if isNotFound(response, getError) {
		return OperationError{Operation: OperationCheckOrganization, Subject: client.organization, Cause: ErrOrganizationInaccessible}
	}
	if getError != nil {
		return OperationError{Operation: OperationCheckOrganization, Subject: client.organization, Cause: getError}
	}
	return nil
}

// GetRepository reports whether the repository exists, whether it holds any
// branch, and its default branch.
func (client *Client) GetRepository(executionContext context.Context, repositoryName string) (RepositoryState, error) {
	if len(strings.TrimSpace(repositoryName)) == 0 {
		return RepositoryState{}, InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}

	repository, response, getError := client.github.Repositories.Get(executionContext, client.organization, repositoryName)
	if isNotFound(response, getError) {
		return RepositoryState{}, nil
	}
	if getError != nil {
		return RepositoryState{}, OperationError{Operation: OperationGetRepository, Subject: repositoryName, Cause: getError}
	}

	branches, branchesResponse, branchesError := client.github.Repositories.ListBranches(executionContext, client.organization, repositoryName, &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: 1}})
	if branchesError != nil && !isNotFound(branchesResponse, branchesError) {
		return RepositoryState{}, OperationError{Operation: OperationGetRepository, Subject: repositoryName, Cause: branchesError}
	}

	return RepositoryState{
		Exists:        true,
		Empty:         len(branches) == 0,
		DefaultBranch: repository.GetDefaultBranch(),
		URL:           repository.GetHTMLURL(),
		CloneURL:      repository.GetCloneURL(),
	}, nil
}

// CreateRepository creates a private repository without an initial commit. A
// conflict is resolved by probing: an existing repository is reported through
// AlreadyExisted instead of an error.
func (client *Client) CreateRepository(executionContext context.Context, repositoryName string, description string) (CreateRepositoryResult, error) {
	if len(strings.TrimSpace(repositoryName)) == 0 {
		return CreateRepositoryResult{}, InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}

	repository, response, createError := client.github.Repositories.Create(executionContext, client.organization, &github.Repository{
		Name:        github.String(repositoryName),
		Description: github.String(description),
		Private:     github.Bool(true),
		AutoInit:    github.Bool(false),
	})
	if isConflict(response, createError) {
		client.logger.Info(conflictProbeMessageConstant, zap.String(repositoryFieldConstant, repositoryName))
		existing, probeError := client.GetRepository(executionContext, repositoryName)
		if probeError != nil {
			return CreateRepositoryResult{}, OperationError{Operation: OperationCreateRepository, Subject: repositoryName, Cause: probeError}
		}
		if !existing.Exists {
			return CreateRepositoryResult{}, OperationError{Operation: OperationCreateRepository, Subject: repositoryName, Cause: errors.Join(ErrConflictUnresolved, createError)}
		}
		return CreateRepositoryResult{Repository: existing, AlreadyExisted: true}, nil
	}
	if createError != nil {
		return CreateRepositoryResult{}, OperationError{Operation: OperationCreateRepository, Subject: repositoryName, Cause: createError}
	}

	client.logger.Info(repositoryCreatedMessageConstant, zap.String(organizationFieldConstant, client.organization), zap.String(repositoryFieldConstant, repositoryName))
	return CreateRepositoryResult{Repository: RepositoryState{
		Exists:        true,
		Empty:         true,
		DefaultBranch: repository.GetDefaultBranch(),
		URL:           repository.GetHTMLURL(),
		CloneURL:      repository.GetCloneURL(),
	}}, nil
}

// SetDefaultBranch points the repository default branch at branch.
func (client *Client) SetDefaultBranch(executionContext context.Context, repositoryName string, branch string) error {
	if len(strings.TrimSpace(branch)) == 0 {
		return InvalidInputError{FieldName: branchFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, _, editError := client.github.Repositories.Edit(executionContext, client.organization, repositoryName, &github.Repository{DefaultBranch: github.String(branch)})
	if editError != nil {
		return OperationError{Operation: OperationSetDefaultBranch, Subject: repositoryName, Cause: editError}
	}
	return nil
}

// GetTeam reports whether a team with slug exists.
func (client *Client) GetTeam(executionContext context.Context, slug string) (TeamState, error) {
	if len(strings.TrimSpace(slug)) == 0 {
		return TeamState{}, InvalidInputError{FieldName: teamFieldNameConstant, Message: requiredValueMessageConstant}
	}
	team, response, getError := client.github.Teams.GetTeamBySlug(executionContext, client.organization, slug)
	if isNotFound(response, getError) {
		return TeamState{}, nil
	}
	if getError != nil {
		return TeamState{}, OperationError{Operation: OperationGetTeam, Subject: slug, Cause: getError}
	}
	return teamState(team), nil
}

// CreateTeam creates a closed team. A conflict is resolved by probing the slug.
func (client *Client) CreateTeam(executionContext context.Context, name string, description string) (CreateTeamResult, error) {
	if len(strings.TrimSpace(name)) == 0 {
		return CreateTeamResult{}, InvalidInputError{FieldName: teamFieldNameConstant, Message: requiredValueMessageConstant}
	}

	team, response, createError := client.github.Teams.CreateTeam(executionContext, client.organization, github.NewTeam{
		Name:        name,
		Description: github.String(description),
		Privacy:     github.String(closedTeamPrivacyConstant),
	})
	if isConflict(response, createError) {
		client.logger.Info(conflictProbeMessageConstant, zap.String(teamFieldConstant, name))
		existing, probeError := client.GetTeam(executionContext, name)
		if probeError != nil {
			return CreateTeamResult{}, OperationError{Operation: OperationCreateTeam, Subject: name, Cause: probeError}
		}
		if !existing.Exists {
			return CreateTeamResult{}, OperationError{Operation: OperationCreateTeam, Subject: name, Cause: errors.Join(ErrConflictUnresolved, createError)}
		}
		return CreateTeamResult{Team: existing, AlreadyExisted: true}, nil
	}
	if createError != nil {
		return CreateTeamResult{}, OperationError{Operation: OperationCreateTeam, Subject: name, Cause: createError}
	}

	client.logger.Info(teamCreatedMessageConstant, zap.String(organizationFieldConstant, client.organization), zap.String(teamFieldConstant, name))
	return CreateTeamResult{Team: teamState(team)}, nil
}

// SetTeamRepositoryPermission grants the team permission on the repository.
func (client *Client) SetTeamRepositoryPermission(executionContext context.Context, teamSlug string, repositoryName string, permission RepositoryPermission) error {
	normalizedPermission := RepositoryPermission(strings.ToLower(strings.TrimSpace(string(permission))))
	if !normalizedPermission.IsValid() {
		return InvalidInputError{FieldName: permissionFieldNameConstant, Message: unsupportedValueMessageConstant}
	}
	_, addError := client.github.Teams.AddTeamRepoBySlug(executionContext, client.organization, teamSlug, client.organization, repositoryName, &github.TeamAddTeamRepoOptions{Permission: string(normalizedPermission)})
	if addError != nil {
		return OperationError{Operation: OperationSetTeamPermission, Subject: teamSlug + pathSeparatorConstant + repositoryName, Cause: addError}
	}
	return nil
}

// GetTeamMembership reads the live membership state of username in the team.
func (client *Client) GetTeamMembership(executionContext context.Context, teamSlug string, username string) (MembershipState, error) {
	if len(strings.TrimSpace(username)) == 0 {
		return MembershipAbsent, InvalidInputError{FieldName: usernameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	membership, response, getError := client.github.Teams.GetTeamMembershipBySlug(executionContext, client.organization, teamSlug, username)
	if isNotFound(response, getError) {
		return MembershipAbsent, nil
	}
	if getError != nil {
		return MembershipAbsent, OperationError{Operation: OperationGetTeamMembership, Subject: teamSlug + pathSeparatorConstant + username, Cause: getError}
	}
	return membershipState(membership), nil
}

// SetTeamMembership adds or updates the membership and returns its resulting state.
func (client *Client) SetTeamMembership(executionContext context.Context, teamSlug string, username string, role TeamRole) (MembershipState, error) {
	if len(strings.TrimSpace(username)) == 0 {
		return MembershipAbsent, InvalidInputError{FieldName: usernameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if role != TeamRoleMember && role != TeamRoleMaintainer {
		return MembershipAbsent, InvalidInputError{FieldName: roleFieldNameConstant, Message: unsupportedValueMessageConstant}
	}
	membership, _, addError := client.github.Teams.AddTeamMembershipBySlug(executionContext, client.organization, teamSlug, username, &github.TeamAddTeamMembershipOptions{Role: string(role)})
	if addError != nil {
		return MembershipAbsent, OperationError{Operation: OperationSetTeamMembership, Subject: teamSlug + pathSeparatorConstant + username, Cause: addError}
	}
	return membershipState(membership), nil
}

func teamState(team *github.Team) TeamState {
	return TeamState{Exists: true, ID: team.GetID(), Slug: team.GetSlug(), URL: team.GetHTMLURL()}
}

func membershipState(membership *github.Membership) MembershipState {
	switch MembershipState(strings.ToLower(membership.GetState())) {
	case MembershipActive:
		return MembershipActive
	case MembershipPending:
		return MembershipPending
	default:
		return MembershipAbsent
	}
}

func isNotFound(response *github.Response, requestError error) bool {
	return hasStatus(response, requestError, http.StatusNotFound)
}

func isConflict(response *github.Response, requestError error) bool {
	return hasStatus(response, requestError, http.StatusUnprocessableEntity) || hasStatus(response, requestError, http.StatusConflict)
}

func hasStatus(response *github.Response, requestError error, statusCode int) bool {
	if requestError == nil {
		return false
	}
	if response != nil && response.Response != nil && response.StatusCode == statusCode {
		return true
	}
	var errorResponse *github.ErrorResponse
	if errors.As(requestError, &errorResponse) && errorResponse.Response != nil {
		return errorResponse.Response.StatusCode == statusCode
	}
	return false
}
