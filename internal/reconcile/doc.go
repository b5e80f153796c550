// Package reconcile derives the migration status of every repository, team,
// and team member by comparing the source tree with live target state.
//
// Assessment only reads from the target, so assessing the same project twice
// without an intervening migration yields the same statuses.
package reconcile
