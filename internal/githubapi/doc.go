// Package githubapi manages repositories, teams, and memberships in the
// target GitHub organization.
//
// REST calls use go-github authenticated through oauth2; the underlying
// transport is httpclient.Client so every call shares the retry and quota
// policy. Organization member and SSO identity listings use paged GraphQL
// queries walked with httpclient.Paginate.
package githubapi
