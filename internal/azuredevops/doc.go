// Package azuredevops reads projects, repositories, and teams from an Azure
// DevOps organization and normalizes them into the migration status tree.
//
// Every request goes through httpclient.Client, so rate limiting and retries
// follow the same policy as the target platform.
package azuredevops
