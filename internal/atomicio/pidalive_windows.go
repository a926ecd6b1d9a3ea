//go:build windows

package atomicio

import "os"

// pidAlive reports whether pid refers to a live process. Windows has no
// signal-0 equivalent through os.Process, so a successful FindProcess
// (which on Windows actually opens a handle) is treated as the best
// available liveness signal, matching the teacher's Windows flock stub's
// best-effort posture.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
