//go:build unix

package invoker

import (
	"os/exec"
	"syscall"
)

// prepareCommand puts the child in its own process group so that termination
// reaches anything the script spawned (an interpreter, a worker, a sleep).
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		return nil
	}
}

// killGroup sweeps the process group after a terminated run. The fallback
// kill in exec only reaches the leader, so a descendant ignoring SIGTERM
// would otherwise outlive the request.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
