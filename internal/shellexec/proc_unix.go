//go:build !windows

package shellexec

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the shell in its own group so cancellation
// reaches every child it spawned.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
