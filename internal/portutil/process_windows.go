//go:build windows

package portutil

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

const (
	processTerminate       = 0x0001
	processQueryInformation = 0x0400
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess       = kernel32.NewProc("OpenProcess")
	procTerminateProcess  = kernel32.NewProc("TerminateProcess")
	procCloseHandle       = kernel32.NewProc("CloseHandle")
)

// findOwningPID shells out to netstat to find the process bound to port,
// since lsof is not available on Windows.
func findOwningPID(port int) (int, error) {
	out, err := exec.Command("netstat", "-ano").Output()
	if err != nil {
		return 0, fmt.Errorf("netstat: %w", err)
	}

	suffix := fmt.Sprintf(":%d", port)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		return strconv.Atoi(fields[len(fields)-1])
	}
	return 0, nil
}

// killProcessGroup terminates pid via the Windows TerminateProcess API;
// Windows has no POSIX process-group signal equivalent, so only the
// individual process is targeted.
func killProcessGroup(pid int) error {
	handle, _, err := procOpenProcess.Call(
		uintptr(processTerminate|processQueryInformation),
		uintptr(0),
		uintptr(pid),
	)
	if handle == 0 {
		return fmt.Errorf("failed to open process %d: %v", pid, err)
	}
	defer procCloseHandle.Call(handle)

	success, _, err := procTerminateProcess.Call(handle, uintptr(1))
	if success == 0 {
		return fmt.Errorf("failed to terminate process %d: %v", pid, err)
	}
	return nil
}
