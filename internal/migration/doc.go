// Package migration defines the in-memory status tree shared by the
// reconciliation, transfer, and reporting stages.
//
// Projects own repositories and teams; teams own members. Each entity carries
// a lifecycle Status and an Error string. Aggregate derives a parent status
// from its children.
package migration
