// Package gitrepo builds the HTTPS remotes the migration hands to git.
//
// GitHub remotes are derived from the organization and repository name. Azure
// Repos remotes come from the source platform and are validated before a
// personal access token is embedded into them.
package gitrepo
