package githubapi

import (
	"errors"
	"fmt"
	"strings"
)

const (
	operationErrorTemplateConstant          = "%s %s failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	graphQLMessageSeparatorConstant         = "; "
	graphQLErrorTemplateConstant            = "graphql: %s"
	requiredValueMessageConstant            = "value required"
	httpClientMissingMessageConstant        = "github http client not configured"
	organizationInaccessibleMessageConstant = "organization not found or not accessible"
	conflictUnresolvedMessageConstant       = "create reported a conflict but the resource is absent"
)

var (
	// ErrHTTPClientNotConfigured indicates the adapter was built without a request executor.
	ErrHTTPClientNotConfigured  = errors.New(httpClientMissingMessageConstant)
	// ErrOrganizationInaccessible indicates the token cannot see the target organization.
	ErrOrganizationInaccessible = errors.New(organizationInaccessibleMessageConstant)
	// ErrConflictUnresolved indicates a 422 on create that a follow-up probe could not explain.
	ErrConflictUnresolved       = errors.New(conflictUnresolvedMessageConstant)
)

// OperationName identifies a target platform call.
type OperationName string

// Target platform operations.
const (
	OperationCheckOrganization     OperationName = "CheckOrganizationAccess"
	OperationGetRepository         OperationName = "GetRepository"
	OperationCreateRepository      OperationName = "CreateRepository"
	OperationSetDefaultBranch      OperationName = "SetDefaultBranch"
	OperationGetTeam               OperationName = "GetTeam"
	OperationCreateTeam            OperationName = "CreateTeam"
	OperationSetTeamPermission     OperationName = "SetTeamRepositoryPermission"
	OperationGetTeamMembership     OperationName = "GetTeamMembership"
	OperationSetTeamMembership     OperationName = "SetTeamMembership"
	OperationListOrganizationUsers OperationName = "ListOrganizationMembers"
	OperationListSSOIdentities     OperationName = "ListSSOIdentities"
)

// InvalidInputError surfaces validation issues for adapter inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps a failed target platform call.
type OperationError struct {
	Operation OperationName
	Subject   string
	Cause     error
}

// Error describes the failed call.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Subject, operationError.Cause)
}

// Unwrap exposes the underlying failure.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// GraphQLError reports errors returned in a GraphQL response body.
type GraphQLError struct {
	Messages []string
}

// Error joins the reported messages.
func (graphQLError GraphQLError) Error() string {
	return fmt.Sprintf(graphQLErrorTemplateConstant, strings.Join(graphQLError.Messages, graphQLMessageSeparatorConstant))
}

