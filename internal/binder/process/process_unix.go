//go:build !windows

package process

import (
	"os"
	"syscall"
)

func detach() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// alive probes pid with signal 0.
func alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func signalStop(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	err = p.Signal(syscall.SIGTERM)
	if err == os.ErrProcessDone {
		return nil
	}
	return err
}

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	err = p.Signal(syscall.SIGKILL)
	if err == os.ErrProcessDone {
		return nil
	}
	return err
}
