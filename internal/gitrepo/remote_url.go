package gitrepo

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	httpsSchemeConstant              = "https"
	pathSeparatorConstant            = "/"
	gitSuffixConstant                = ".git"
	azureReposMarkerConstant         = "_git"
	remoteErrorTemplateConstant      = "%s: %s"
	invalidRemoteMessageConstant     = "invalid remote url"
	requiredValueMessageConstant     = "value required"
	httpsRequiredMessageConstant     = "credentials require an https remote"
	notAzureReposMessageConstant     = "not an Azure Repos remote"
	redactionFallbackValueConstant   = "unparseable remote"
	githubTokenUsernameConstant      = "x-access-token"
	azureDevOpsTokenUsernameConstant = "pat"
)

// Credential pairs a username with the access token embedded into a remote.
type Credential struct {
	Username string
	Token    string
}

// GitHubCredential returns the credential GitHub expects for token pushes.
func GitHubCredential(token string) Credential {
	return Credential{Username: githubTokenUsernameConstant, Token: token}
}

// AzureDevOpsCredential returns the credential Azure Repos expects for PAT clones.
func AzureDevOpsCredential(token string) Credential {
	return Credential{Username: azureDevOpsTokenUsernameConstant, Token: token}
}

// RemoteError reports a remote that cannot be used. Input never carries
// credentials.
type RemoteError struct {
	Input   string
	Message string
}

// Error describes the rejected remote.
func (remoteError RemoteError) Error() string {
	return fmt.Sprintf(remoteErrorTemplateConstant, remoteError.Input, remoteError.Message)
}

// AzureReposLocation identifies a git repository hosted by Azure DevOps.
type AzureReposLocation struct {
	CollectionURL string
	Project       string
	Repository    string
}

// GitHubCloneURL formats the HTTPS clone URL of owner/repository on host.
func GitHubCloneURL(host string, owner string, repository string) (string, error) {
	for _, value := range []string{host, owner, repository} {
		if len(strings.TrimSpace(value)) == 0 {
			return "", RemoteError{Input: strings.Join([]string{host, owner, repository}, pathSeparatorConstant), Message: requiredValueMessageConstant}
		}
	}
	cloneURL := url.URL{
		Scheme: httpsSchemeConstant,
		Host:   host,
		Path:   pathSeparatorConstant + owner + pathSeparatorConstant + strings.TrimSuffix(repository, gitSuffixConstant) + gitSuffixConstant,
	}
	return cloneURL.String(), nil
}

// ParseAzureReposRemote splits an Azure Repos remote of the form
// {collection}/{project}/_git/{repository}. Cloud and server collections are
// both accepted; user information is dropped.
func ParseAzureReposRemote(remote string) (AzureReposLocation, error) {
	parsedURL, parseError := parseHTTPS(remote)
	if parseError != nil {
		return AzureReposLocation{}, parseError
	}

	segments := strings.Split(strings.Trim(parsedURL.Path, pathSeparatorConstant), pathSeparatorConstant)
	markerIndex := -1
	for segmentIndex, segment := range segments {
		if segment == azureReposMarkerConstant {
			markerIndex = segmentIndex
			break
		}
	}
	if markerIndex < 1 || markerIndex != len(segments)-2 || len(segments[markerIndex+1]) == 0 {
		return AzureReposLocation{}, RemoteError{Input: parsedURL.Redacted(), Message: notAzureReposMessageConstant}
	}

	collectionURL := url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
		Path:   pathSeparatorConstant + strings.Join(segments[:markerIndex-1], pathSeparatorConstant),
	}
	return AzureReposLocation{
		CollectionURL: strings.TrimSuffix(collectionURL.String(), pathSeparatorConstant),
		Project:       segments[markerIndex-1],
		Repository:    strings.TrimSuffix(segments[markerIndex+1], gitSuffixConstant),
	}, nil
}

// Authenticate embeds credential into an HTTPS remote, replacing any user
// information already present. An empty token yields the bare remote. The
// result must only be handed to child processes, never logged.
func Authenticate(remote string, credential Credential) (string, error) {
	parsedURL, parseError := parseHTTPS(remote)
	if parseError != nil {
		return "", parseError
	}
	parsedURL.User = nil
	if len(strings.TrimSpace(credential.Token)) > 0 {
		parsedURL.User = url.UserPassword(credential.Username, credential.Token)
	}
	return parsedURL.String(), nil
}

func parseHTTPS(remote string) (*url.URL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return nil, RemoteError{Input: remote, Message: requiredValueMessageConstant}
	}
	parsedURL, parseError := url.Parse(trimmedRemote)
	if parseError != nil || len(parsedURL.Host) == 0 {
		return nil, RemoteError{Input: redactedInput(trimmedRemote), Message: invalidRemoteMessageConstant}
	}
	if parsedURL.Scheme != httpsSchemeConstant {
		return nil, RemoteError{Input: parsedURL.Redacted(), Message: httpsRequiredMessageConstant}
	}
	return parsedURL, nil
}

func redactedInput(remote string) string {
	parsedURL, parseError := url.Parse(remote)
	if parseError != nil {
		return redactionFallbackValueConstant
	}
	return parsedURL.Redacted()
}
