//go:build unix

package execshell

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcessTermination places the child in its own process group so
// cancellation also stops helpers it spawned, such as git remote helpers.
func configureProcessTermination(executable *exec.Cmd) {
	executable.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	executable.Cancel = func() error {
		if executable.Process == nil {
			return nil
		}
		return unix.Kill(-executable.Process.Pid, unix.SIGKILL)
	}
}
