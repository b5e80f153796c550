package githubapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/temirov/orgmigrate/internal/httpclient"
)

const (
	graphQLPageSizeConstant = 100

	organizationMembersQueryConstant = `query($organization: String!, $first: Int!, $cursor: String) {
  organization(login: $organization) {
    membersWithRole(first: $first, after: $cursor) {
      pageInfo { hasNextPage endCursor }
      nodes { login }
    }
  }
}`

	ssoIdentitiesQueryConstant = `query($organization: String!, $first: Int!, $cursor: String) {
  organization(login: $organization) {
    samlIdentityProvider {
      externalIdentities(first: $first, after: $cursor) {
        pageInfo { hasNextPage endCursor }
        nodes {
          samlIdentity { nameId }
          user { login }
        }
      }
    }
  }
}`
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type organizationMembersData struct {
	Organization *struct {
		MembersWithRole struct {
			PageInfo pageInfo `json:"pageInfo"`
			Nodes    []struct {
				Login string `json:"login"`
			} `json:"nodes"`
		} `json:"membersWithRole"`
	} `json:"organization"`
}

type ssoIdentitiesData struct {
	Organization *struct {
		SAMLIdentityProvider *struct {
			ExternalIdentities struct {
				PageInfo pageInfo `json:"pageInfo"`
				Nodes    []struct {
					SAMLIdentity *struct {
						NameID string `json:"nameId"`
					} `json:"samlIdentity"`
					User *struct {
						Login string `json:"login"`
					} `json:"user"`
				} `json:"nodes"`
			} `json:"externalIdentities"`
		} `json:"samlIdentityProvider"`
	} `json:"organization"`
}

// ListOrganizationMembers returns the login of every organization member.
func (client *Client) ListOrganizationMembers(executionContext context.Context) ([]string, error) {
	logins, listError := httpclient.CollectAll(executionContext, func(executionContext context.Context, cursor string) (httpclient.Page[string], error) {
		var payload organizationMembersData
		if queryError := client.graphQL(executionContext, organizationMembersQueryConstant, cursor, &payload); queryError != nil {
			return httpclient.Page[string]{}, queryError
		}
		if payload.Organization == nil {
			return httpclient.Page[string]{}, ErrOrganizationInaccessible
		}

		connection := payload.Organization.MembersWithRole
		page := httpclient.Page[string]{NextCursor: connection.PageInfo.EndCursor, HasNextPage: connection.PageInfo.HasNextPage}
		for _, node := range connection.Nodes {
			page.Items = append(page.Items, node.Login)
		}
		return page, nil
	})
	if listError != nil {
		return nil, OperationError{Operation: OperationListOrganizationUsers, Subject: client.organization, Cause: listError}
	}
	return logins, nil
}

// ListSSOIdentities returns the SAML identities linked to organization
// members. Organizations without single sign-on yield an empty list.
func (client *Client) ListSSOIdentities(executionContext context.Context) ([]SSOIdentity, error) {
	identities, listError := httpclient.CollectAll(executionContext, func(executionContext context.Context, cursor string) (httpclient.Page[SSOIdentity], error) {
		var payload ssoIdentitiesData
		if queryError := client.graphQL(executionContext, ssoIdentitiesQueryConstant, cursor, &payload); queryError != nil {
			return httpclient.Page[SSOIdentity]{}, queryError
		}
		if payload.Organization == nil {
			return httpclient.Page[SSOIdentity]{}, ErrOrganizationInaccessible
		}
		if payload.Organization.SAMLIdentityProvider == nil {
			return httpclient.Page[SSOIdentity]{}, nil
		}

		connection := payload.Organization.SAMLIdentityProvider.ExternalIdentities
		page := httpclient.Page[SSOIdentity]{NextCursor: connection.PageInfo.EndCursor, HasNextPage: connection.PageInfo.HasNextPage}
		for _, node := range connection.Nodes {
			if node.SAMLIdentity == nil || node.User == nil {
				continue
			}
			page.Items = append(page.Items, SSOIdentity{NameID: node.SAMLIdentity.NameID, Login: node.User.Login})
		}
		return page, nil
	})
	if listError != nil {
		return nil, OperationError{Operation: OperationListSSOIdentities, Subject: client.organization, Cause: listError}
	}
	return identities, nil
}

func (client *Client) graphQL(executionContext context.Context, queryText string, cursor string, target any) error {
	variables := map[string]any{
		"organization": client.organization,
		"first":        graphQLPageSizeConstant,
		"cursor":       nil,
	}
	if len(cursor) > 0 {
		variables["cursor"] = cursor
	}

	body, encodeError := json.Marshal(graphQLRequest{Query: queryText, Variables: variables})
	if encodeError != nil {
		return encodeError
	}

	header := http.Header{}
	header.Set(authorizationHeaderConstant, bearerPrefixConstant+client.token)
	header.Set(contentTypeHeaderConstant, jsonMediaTypeConstant)

	response, requestError := client.requests.Do(executionContext, httpclient.Request{
		Method: http.MethodPost,
		URL:    client.graphQLURL,
		Header: header,
		Body:   body,
	})
	if requestError != nil {
		return requestError
	}

	envelope := graphQLResponse{}
	if decodeError := response.DecodeJSON(&envelope); decodeError != nil {
		return decodeError
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, graphQLFailure := range envelope.Errors {
			messages = append(messages, graphQLFailure.Message)
		}
		return GraphQLError{Messages: messages}
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, target)
}
