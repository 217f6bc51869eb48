//go:build linux

package security

import (
	"os"
	"strconv"
)

// pathInUse does a best-effort scan of /proc/<pid>/fd symlinks to detect
// whether any running process currently holds path open. It never follows
// untrusted input beyond readlink and tolerates partial failure: processes
// that exit mid-scan or fd entries we can't read are skipped, not treated
// as evidence either way.
func pathInUse(path string) (inUse bool, checked bool) {
	procEntries, err := os.ReadDir("/proc")
	if err != nil {
		return false, false
	}

	for _, procEntry := range procEntries {
		pid, err := strconv.Atoi(procEntry.Name())
		if err != nil {
			continue
		}
		fdDir := "/proc/" + strconv.Itoa(pid) + "/fd"
		fdEntries, err := os.ReadDir(fdDir)
		if err != nil {
			continue // process gone, or fds unreadable without privilege
		}
		checked = true
		for _, fdEntry := range fdEntries {
			target, err := os.Readlink(fdDir + "/" + fdEntry.Name())
			if err != nil {
				continue
			}
			if target == path {
				return true, true
			}
		}
	}
	return false, checked
}
