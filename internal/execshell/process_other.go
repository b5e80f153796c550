//go:build !unix

package execshell

import "os/exec"

func configureProcessTermination(executable *exec.Cmd) {}
