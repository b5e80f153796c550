// Package execshell runs the external tools a migration depends on.
//
// ShellExecutor wraps a CommandRunner with timeouts and logging, and
// OSCommandRunner starts each process in its own process group so a timeout
// terminates the whole tree. Git and the legacy conversion bridge are invoked
// through ExecuteGit and ExecuteBridge. Credentials embedded in arguments are
// redacted before any message is produced.
package execshell
