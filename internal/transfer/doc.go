// Package transfer copies repository content from the source platform to the
// target platform with the git client, converting legacy centralized
// repositories through an external bridge first.
//
// Every transfer works in its own temporary directory below the configured
// workspace and removes it when finished, whatever the outcome.
package transfer
