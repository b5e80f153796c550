package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/temirov/orgmigrate/cmd/cli"
	"github.com/temirov/orgmigrate/internal/migrate"
)

const (
	exitErrorTemplateConstant = "%v\n"
	exitCodeFatalConstant     = 1
	exitCodeRunFailedConstant = 2
)

// main runs orgmigrate. A run that finished with a Failed status exits with 2,
// any other error with 1.
func main() {
	executionError := cli.Execute()
	if executionError == nil {
		return
	}
	fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
	if errors.Is(executionError, migrate.ErrRunFailed) {
		os.Exit(exitCodeRunFailedConstant)
	}
	os.Exit(exitCodeFatalConstant)
}
