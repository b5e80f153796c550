// Package credentials resolves platform access tokens from configuration and
// the process environment.
package credentials
