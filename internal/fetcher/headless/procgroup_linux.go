//go:build linux

package headless

import (
	"os/exec"
	"syscall"

	"github.com/chromedp/chromedp"
)

func platformOptions() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{chromedp.ModifyCmdFunc(ownProcessGroup)}
}

// ownProcessGroup starts the browser in its own process group so a terminal
// interrupt reaches only the scanner, which lets the in-flight navigation
// finish. ModifyCmdFunc replaces chromedp's default command setup, so the
// parent-death signal is set here as well.
func ownProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
