//go:build windows

package process

import "os/exec"

func configureSysProcAttr(_ *exec.Cmd) {
	// No process groups on Windows; signal handling degrades to Kill.
}

func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/C", script)
}
