// Package migrate orchestrates a migration run: it builds each source project
// tree, assesses it against the target, creates what is missing, transfers
// repository content, migrates team membership, and finally reconciles default
// branches. It also provides the migrate and assess Cobra commands.
package migrate
