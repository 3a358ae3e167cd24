//go:build !linux

package terminal

import (
	"errors"
	"os"
	"syscall"
)

var errNoPTY = errors.New("pseudo-terminals are only supported on linux")

func openPTY() (*os.File, string, error) { return nil, "", errNoPTY }

func setWindowSize(*os.File, uint16, uint16) error { return errNoPTY }

func sysProcAttr() *syscall.SysProcAttr { return nil }

func signalGroup(int, syscall.Signal) error { return errNoPTY }
