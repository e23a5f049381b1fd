//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the tool in its own process group so cancellation
// kills the tool together with anything it spawned.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
