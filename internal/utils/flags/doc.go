// Package flags binds the shared migration flags to Cobra commands and
// provides yes/no toggle parsing and choice usage formatting.
package flags
