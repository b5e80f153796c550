// Package cli constructs the orgmigrate command-line interface, wiring the
// Cobra command hierarchy, the layered configuration loader (embedded
// defaults, configuration file, .env file, environment), and structured
// logging.
package cli
