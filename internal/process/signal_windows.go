//go:build windows

package process

import "os"

// Windows has no graceful signal equivalent; both paths kill the process.

func terminateGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func killGroup(pid int) error {
	return terminateGroup(pid)
}
