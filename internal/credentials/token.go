package credentials

import (
	"fmt"
	"os"
	"strings"
)

// Environment variable names consulted for platform tokens, in preference order.
const (
	EnvGitHubCLIToken          = "GH_TOKEN"
	EnvGitHubToken             = "GITHUB_TOKEN"
	EnvGitHubAPIToken          = "GITHUB_API_TOKEN"
	EnvAzureDevOpsExtensionPAT = "AZURE_DEVOPS_EXT_PAT"
	EnvAzureDevOpsPAT          = "AZURE_DEVOPS_PAT"
)

const missingTokenTemplateConstant = "%s token not configured; set %s or one of %s"

// Platform identifies the service a token authenticates against.
type Platform string

// Supported platforms.
const (
	PlatformGitHub      Platform = "github"
	PlatformAzureDevOps Platform = "azure_devops"
)

var tokenPreference = map[Platform][]string{
	PlatformGitHub:      {EnvGitHubCLIToken, EnvGitHubToken, EnvGitHubAPIToken},
	PlatformAzureDevOps: {EnvAzureDevOpsExtensionPAT, EnvAzureDevOpsPAT},
}

var configurationKeys = map[Platform]string{
	PlatformGitHub:      "target.token",
	PlatformAzureDevOps: "source.token",
}

// MissingTokenError reports that no token could be resolved for a platform.
type MissingTokenError struct {
	Platform Platform
}

// Error names the configuration key and environment variables that were consulted.
func (missingTokenError MissingTokenError) Error() string {
	return fmt.Sprintf(missingTokenTemplateConstant, missingTokenError.Platform, configurationKeys[missingTokenError.Platform], strings.Join(tokenPreference[missingTokenError.Platform], ", "))
}

// ResolveToken returns the configured token when present, otherwise the first
// non-empty token observed in the provided environment map or the process
// environment.
func ResolveToken(platform Platform, configuredToken string, environment map[string]string) (string, bool) {
	if trimmedToken := strings.TrimSpace(configuredToken); len(trimmedToken) > 0 {
		return trimmedToken, true
	}
	for _, key := range tokenPreference[platform] {
		if value, ok := lookup(environment, key); ok {
			return value, true
		}
	}
	for _, key := range tokenPreference[platform] {
		if value, ok := os.LookupEnv(key); ok {
			value = strings.TrimSpace(value)
			if len(value) > 0 {
				return value, true
			}
		}
	}
	return "", false
}

// RequireToken behaves like ResolveToken but reports MissingTokenError when nothing is found.
func RequireToken(platform Platform, configuredToken string, environment map[string]string) (string, error) {
	token, found := ResolveToken(platform, configuredToken, environment)
	if !found {
		return "", MissingTokenError{Platform: platform}
	}
	return token, nil
}

func lookup(environment map[string]string, key string) (string, bool) {
	if environment == nil {
		return "", false
	}
	value, exists := environment[key]
	if !exists {
		return "", false
	}
	value = strings.TrimSpace(value)
	if len(value) == 0 {
		return "", false
	}
	return value, true
}
