package git

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the git child in its own process group so that a
// timed-out network command can be killed together with any helpers it
// spawned (credential helpers, remote transports).
func setProcessGroup(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateProcessGroup kills the command's process group. When the group
// cannot be resolved (the process already reaped its group, or Setpgid was
// skipped) it still kills the direct child so a hung push cannot outlive the
// run.
func terminateProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
