//go:build !unix

package invoker

import "os/exec"

// prepareCommand falls back to killing the child directly; there is no
// portable SIGTERM outside unix.
func prepareCommand(cmd *exec.Cmd) {
	cmd.Cancel = func() error { return cmd.Process.Kill() }
}

func killGroup(*exec.Cmd) {}
