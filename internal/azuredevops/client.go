package azuredevops

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"
	"go.uber.org/zap"

	"github.com/temirov/orgmigrate/internal/httpclient"
	"github.com/temirov/orgmigrate/internal/migration"
)

const (
	defaultBaseURLConstant                   = "https://dev.azure.com"
	apiVersionConstant                       = "7.0"
	pageSizeConstant                         = 100
	continuationTokenHeaderConstant          = "x-ms-continuationtoken"
	authorizationHeaderConstant              = "Authorization"
	acceptHeaderConstant                     = "Accept"
	jsonMediaTypeConstant                    = "application/json"
	basicAuthorizationPrefixConstant         = "Basic "
	branchReferencePrefixConstant            = "refs/heads/"
	branchReferenceFilterConstant            = "heads/"
	tfvcRootPrefixConstant                   = "$/"
	tfvcRecursionLevelConstant               = "OneLevel"
	tfvcVersionControlPathConstant           = "_versionControl"
	projectsPathTemplateConstant             = "%s/%s/_apis/projects"
	projectPathTemplateConstant              = "%s/%s/_apis/projects/%s"
	repositoriesPathTemplateConstant         = "%s/%s/%s/_apis/git/repositories"
	referencesPathTemplateConstant           = "%s/%s/%s/_apis/git/repositories/%s/refs"
	tfvcItemsPathTemplateConstant            = "%s/%s/%s/_apis/tfvc/items"
	tfvcBranchesPathTemplateConstant         = "%s/%s/%s/_apis/tfvc/branches"
	tfvcWebPathTemplateConstant              = "%s/%s/%s/%s"
	teamsPathTemplateConstant                = "%s/%s/_apis/projects/%s/teams"
	teamMembersPathTemplateConstant          = "%s/%s/_apis/projects/%s/teams/%s/members"
	collectionURLTemplateConstant            = "%s/%s"
	urlWithQueryTemplateConstant             = "%s?%s"
	operationErrorTemplateConstant           = "%s failed: %s"
	projectOperationErrorTemplateConstant    = "%s for project %s failed: %s"
	invalidInputErrorTemplateConstant        = "%s: %s"
	requiredValueMessageConstant             = "value required"
	httpClientMissingMessageConstant         = "azure devops http client not configured"
	projectNotFoundMessageConstant           = "project not found"
	organizationFieldNameConstant            = "organization"
	projectNameFieldNameConstant             = "project"
	tokenFieldNameConstant                   = "token"
	listProjectsOperationNameConstant        = OperationName("ListProjects")
	getProjectOperationNameConstant          = OperationName("GetProject")
	listRepositoriesOperationNameConstant    = OperationName("ListRepositories")
	listBranchesOperationNameConstant        = OperationName("ListBranches")
	probeTFVCOperationNameConstant           = OperationName("ProbeTFVC")
	listTeamsOperationNameConstant           = OperationName("ListTeams")
	listTeamMembersOperationNameConstant     = OperationName("ListTeamMembers")
	projectFieldConstant                     = "project"
	repositoryFieldConstant                  = "repository"
	teamFieldConstant                        = "team"
	countFieldConstant                       = "count"
	repositoryCountFieldConstant             = "repositories"
	teamCountFieldConstant                   = "teams"
	teamMembersListedMessageConstant         = "source team members listed"
	projectLoadedMessageConstant             = "source project loaded"
	disabledRepositorySkippedMessageConstant = "disabled source repository ignored"
)

// ErrHTTPClientNotConfigured indicates the adapter was built without a request executor.
var ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)

// OperationName identifies a source platform call.
type OperationName string

// InvalidInputError surfaces validation issues for adapter inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps a failed source platform call.
type OperationError struct {
	Operation   OperationName
	ProjectName string
	Cause       error
}

// Error describes the failed call.
func (operationError OperationError) Error() string {
	if len(operationError.ProjectName) == 0 {
		return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
	}
	return fmt.Sprintf(projectOperationErrorTemplateConstant, operationError.Operation, operationError.ProjectName, operationError.Cause)
}

// Unwrap exposes the underlying failure.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ProjectSummary is the listing view of a source project.
type ProjectSummary struct {
	ID          string
	Name        string
	Description string
	Visibility  string
}

// ClientDependencies provides the collaborators required by Client.
type ClientDependencies struct {
	HTTPClient *httpclient.Client
	Logger     *zap.Logger
}

// ClientOptions identify the organization and credential.
type ClientOptions struct {
	BaseURL      string
	Organization string
	Token        string
}

// Client is the source platform adapter.
type Client struct {
	httpClient    *httpclient.Client
	logger        *zap.Logger
	baseURL       string
	organization  string
	authorization string
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

	baseURL := strings.TrimRight(strings.TrimSpace(options.BaseURL), "/")
	if len(baseURL) == 0 {
		baseURL = defaultBaseURLConstant
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient:    dependencies.HTTPClient,
		logger:        logger,
		baseURL:       baseURL,
		organization:  organization,
		authorization: basicAuthorizationPrefixConstant + base64.StdEncoding.EncodeToString([]byte(":"+token)),
	}, nil
}

// Organization returns the configured organization name.
func (client *Client) Organization() string {
	return client.organization
}

// CollectionURL returns the organization URL used by the legacy conversion bridge.
func (client *Client) CollectionURL() string {
	return fmt.Sprintf(collectionURLTemplateConstant, client.baseURL, url.PathEscape(client.organization))
}

// ListProjects returns every project in the organization.
func (client *Client) ListProjects(executionContext context.Context) ([]ProjectSummary, error) {
	endpoint := fmt.Sprintf(projectsPathTemplateConstant, client.baseURL, url.PathEscape(client.organization))
	projects, listError := collectByContinuation[projectResponse](executionContext, client, endpoint, apiQuery{Top: pageSizeConstant})
	if listError != nil {
		return nil, OperationError{Operation: listProjectsOperationNameConstant, Cause: listError}
	}

	summaries := make([]ProjectSummary, 0, len(projects))
	for _, project := range projects {
		summaries = append(summaries, ProjectSummary{ID: project.ID, Name: project.Name, Description: project.Description, Visibility: project.Visibility})
	}
	return summaries, nil
}

// GetProject loads one project with its repositories and teams. Repositories
// carry their branch count, and a TFVC repository is appended when the
// project root holds a TFVC item tree.
func (client *Client) GetProject(executionContext context.Context, projectName string) (*migration.Project, error) {
	trimmedProjectName := strings.TrimSpace(projectName)
	if len(trimmedProjectName) == 0 {
		return nil, InvalidInputError{FieldName: projectNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	var projectPayload projectResponse
	endpoint := fmt.Sprintf(projectPathTemplateConstant, client.baseURL, url.PathEscape(client.organization), url.PathEscape(trimmedProjectName))
	response, requestError := client.get(executionContext, endpoint, apiQuery{})
	if requestError != nil {
		return nil, OperationError{Operation: getProjectOperationNameConstant, ProjectName: trimmedProjectName, Cause: requestError}
	}
	if response.Absent() {
		return nil, OperationError{Operation: getProjectOperationNameConstant, ProjectName: trimmedProjectName, Cause: errors.New(projectNotFoundMessageConstant)}
	}
	if decodeError := response.DecodeJSON(&projectPayload); decodeError != nil {
		return nil, OperationError{Operation: getProjectOperationNameConstant, ProjectName: trimmedProjectName, Cause: decodeError}
	}

	project := &migration.Project{
		ID:           projectPayload.ID,
		Name:         projectPayload.Name,
		Description:  projectPayload.Description,
		Visibility:   projectPayload.Visibility,
		Organization: client.organization,
		Status:       migration.StatusPending,
	}

	repositories, repositoriesError := client.listRepositories(executionContext, project.Name)
	if repositoriesError != nil {
		return nil, repositoriesError
	}
	project.Repositories = repositories

	legacyRepository, legacyError := client.probeLegacyRepository(executionContext, project.Name)
	if legacyError != nil {
		return nil, legacyError
	}
	if legacyRepository != nil {
		project.Repositories = append(project.Repositories, legacyRepository)
	}

	teams, teamsError := client.listTeams(executionContext, project)
	if teamsError != nil {
		return nil, teamsError
	}
	project.Teams = teams

	client.logger.Info(
		projectLoadedMessageConstant,
		zap.String(projectFieldConstant, project.Name),
		zap.Int(repositoryCountFieldConstant, len(project.Repositories)),
		zap.Int(teamCountFieldConstant, len(project.Teams)),
	)
	return project, nil
}

func (client *Client) listRepositories(executionContext context.Context, projectName string) ([]*migration.Repository, error) {
	endpoint := fmt.Sprintf(repositoriesPathTemplateConstant, client.baseURL, url.PathEscape(client.organization), url.PathEscape(projectName))
	response, requestError := client.get(executionContext, endpoint, apiQuery{})
	if requestError != nil {
		return nil, OperationError{Operation: listRepositoriesOperationNameConstant, ProjectName: projectName, Cause: requestError}
	}

	var payload listResponse[repositoryResponse]
	if !response.Absent() {
		if decodeError := response.DecodeJSON(&payload); decodeError != nil {
			return nil, OperationError{Operation: listRepositoriesOperationNameConstant, ProjectName: projectName, Cause: decodeError}
		}
	}

	repositories := make([]*migration.Repository, 0, len(payload.Value))
	for _, repositoryPayload := range payload.Value {
		if repositoryPayload.IsDisabled {
			client.logger.Warn(disabledRepositorySkippedMessageConstant, zap.String(projectFieldConstant, projectName), zap.String(repositoryFieldConstant, repositoryPayload.Name))
			continue
		}

		branchCount, branchError := client.countBranches(executionContext, projectName, repositoryPayload.ID)
		if branchError != nil {
			return nil, branchError
		}

		repositories = append(repositories, &migration.Repository{
			ID:            repositoryPayload.ID,
			Name:          repositoryPayload.Name,
			URL:           repositoryPayload.RemoteURL,
			Kind:          migration.RepositoryKindGit,
			DefaultBranch: strings.TrimPrefix(repositoryPayload.DefaultBranch, branchReferencePrefixConstant),
			BranchCount:   branchCount,
			SizeBytes:     repositoryPayload.Size,
			Status:        migration.StatusPending,
		})
	}
	return repositories, nil
}

func (client *Client) countBranches(executionContext context.Context, projectName string, repositoryID string) (int, error) {
	endpoint := fmt.Sprintf(referencesPathTemplateConstant, client.baseURL, url.PathEscape(client.organization), url.PathEscape(projectName), url.PathEscape(repositoryID))
	references, listError := collectByContinuation[referenceResponse](executionContext, client, endpoint, apiQuery{Filter: branchReferenceFilterConstant, Top: pageSizeConstant})
	if listError != nil {
		return 0, OperationError{Operation: listBranchesOperationNameConstant, ProjectName: projectName, Cause: listError}
	}
	return len(references), nil
}

func (client *Client) probeLegacyRepository(executionContext context.Context, projectName string) (*migration.Repository, error) {
	organizationSegment := url.PathEscape(client.organization)
	projectSegment := url.PathEscape(projectName)

	itemsEndpoint := fmt.Sprintf(tfvcItemsPathTemplateConstant, client.baseURL, organizationSegment, projectSegment)
	response, requestError := client.get(executionContext, itemsEndpoint, apiQuery{ScopePath: tfvcRootPrefixConstant + projectName, RecursionLevel: tfvcRecursionLevelConstant})
	if requestError != nil {
		if httpclient.IsStatus(requestError, http.StatusBadRequest) {
			return nil, nil
		}
		return nil, OperationError{Operation: probeTFVCOperationNameConstant, ProjectName: projectName, Cause: requestError}
	}
	if response.Absent() {
		return nil, nil
	}

	var items listResponse[tfvcItemResponse]
	if decodeError := response.DecodeJSON(&items); decodeError != nil {
		return nil, OperationError{Operation: probeTFVCOperationNameConstant, ProjectName: projectName, Cause: decodeError}
	}
	if len(items.Value) == 0 {
		return nil, nil
	}

	branchesEndpoint := fmt.Sprintf(tfvcBranchesPathTemplateConstant, client.baseURL, organizationSegment, projectSegment)
	branchesResponse, branchesError := client.get(executionContext, branchesEndpoint, apiQuery{})
	if branchesError != nil {
		return nil, OperationError{Operation: probeTFVCOperationNameConstant, ProjectName: projectName, Cause: branchesError}
	}
	var branches listResponse[tfvcBranchResponse]
	if !branchesResponse.Absent() {
		if decodeError := branchesResponse.DecodeJSON(&branches); decodeError != nil {
			return nil, OperationError{Operation: probeTFVCOperationNameConstant, ProjectName: projectName, Cause: decodeError}
		}
	}

	return &migration.Repository{
		ID:          tfvcRootPrefixConstant + projectName,
		Name:        projectName,
		URL:         fmt.Sprintf(tfvcWebPathTemplateConstant, client.baseURL, organizationSegment, projectSegment, tfvcVersionControlPathConstant),
		Kind:        migration.RepositoryKindTFVC,
		BranchCount: len(branches.Value),
		Status:      migration.StatusPending,
	}, nil
}

func (client *Client) listTeams(executionContext context.Context, project *migration.Project) ([]*migration.Team, error) {
	organizationSegment := url.PathEscape(client.organization)
	teamsEndpoint := fmt.Sprintf(teamsPathTemplateConstant, client.baseURL, organizationSegment, url.PathEscape(project.ID))
	teamPayloads, teamsError := collectBySkip[teamResponse](executionContext, client, teamsEndpoint)
	if teamsError != nil {
		return nil, OperationError{Operation: listTeamsOperationNameConstant, ProjectName: project.Name, Cause: teamsError}
	}

	teams := make([]*migration.Team, 0, len(teamPayloads))
	for _, teamPayload := range teamPayloads {
		membersEndpoint := fmt.Sprintf(teamMembersPathTemplateConstant, client.baseURL, organizationSegment, url.PathEscape(project.ID), url.PathEscape(teamPayload.ID))
		memberPayloads, membersError := collectBySkip[teamMemberResponse](executionContext, client, membersEndpoint)
		if membersError != nil {
			return nil, OperationError{Operation: listTeamMembersOperationNameConstant, ProjectName: project.Name, Cause: membersError}
		}

		members := make([]*migration.TeamMember, 0, len(memberPayloads))
		for _, memberPayload := range memberPayloads {
			members = append(members, &migration.TeamMember{
				UniqueName:    memberPayload.Identity.UniqueName,
				DisplayName:   memberPayload.Identity.DisplayName,
				IsGroup:       memberPayload.Identity.IsContainer,
				IsSourceAdmin: memberPayload.IsTeamAdmin,
				Status:        migration.StatusPending,
			})
		}

		client.logger.Debug(teamMembersListedMessageConstant, zap.String(teamFieldConstant, teamPayload.Name), zap.Int(countFieldConstant, len(members)))
		teams = append(teams, &migration.Team{
			ID:          teamPayload.ID,
			Name:        teamPayload.Name,
			Description: teamPayload.Description,
			Members:     members,
			Status:      migration.StatusPending,
		})
	}
	return teams, nil
}

func (client *Client) get(executionContext context.Context, endpoint string, parameters apiQuery) (httpclient.Response, error) {
	parameters.APIVersion = apiVersionConstant
	values, encodeError := query.Values(parameters)
	if encodeError != nil {
		return httpclient.Response{}, encodeError
	}

	header := http.Header{}
	header.Set(authorizationHeaderConstant, client.authorization)
	header.Set(acceptHeaderConstant, jsonMediaTypeConstant)

	return client.httpClient.Do(executionContext, httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf(urlWithQueryTemplateConstant, endpoint, values.Encode()),
		Header: header,
	})
}

// collectByContinuation walks listings paged through the continuation token header.
func collectByContinuation[T any](executionContext context.Context, client *Client, endpoint string, parameters apiQuery) ([]T, error) {
	return httpclient.CollectAll(executionContext, func(executionContext context.Context, cursor string) (httpclient.Page[T], error) {
		pageParameters := parameters
		pageParameters.ContinuationToken = cursor
		response, requestError := client.get(executionContext, endpoint, pageParameters)
		if requestError != nil {
			return httpclient.Page[T]{}, requestError
		}
		if response.Absent() {
			return httpclient.Page[T]{}, nil
		}

		var payload listResponse[T]
		if decodeError := response.DecodeJSON(&payload); decodeError != nil {
			return httpclient.Page[T]{}, decodeError
		}
		nextCursor := strings.TrimSpace(response.Header.Get(continuationTokenHeaderConstant))
		return httpclient.Page[T]{Items: payload.Value, NextCursor: nextCursor, HasNextPage: len(nextCursor) > 0}, nil
	})
}

// collectBySkip walks listings paged with $top/$skip; the cursor carries the next offset.
func collectBySkip[T any](executionContext context.Context, client *Client, endpoint string) ([]T, error) {
	return httpclient.CollectAll(executionContext, func(executionContext context.Context, cursor string) (httpclient.Page[T], error) {
		offset := 0
		if len(cursor) > 0 {
			parsedOffset, parseError := strconv.Atoi(cursor)
			if parseError != nil {
				return httpclient.Page[T]{}, parseError
			}
			offset = parsedOffset
		}

		response, requestError := client.get(executionContext, endpoint, apiQuery{Top: pageSizeConstant, Skip: offset})
		if requestError != nil {
			return httpclient.Page[T]{}, requestError
		}
		if response.Absent() {
			return httpclient.Page[T]{}, nil
		}

		var payload listResponse[T]
		if decodeError := response.DecodeJSON(&payload); decodeError != nil {
			return httpclient.Page[T]{}, decodeError
		}
		nextOffset := offset + len(payload.Value)
		return httpclient.Page[T]{
			Items:       payload.Value,
			NextCursor:  strconv.Itoa(nextOffset),
			HasNextPage: len(payload.Value) == pageSizeConstant,
		}, nil
	})
}
