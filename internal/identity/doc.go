// Package identity loads the table that maps source user identities to
// target platform usernames.
package identity
