//go:build unix

package security

import (
	"os"
	"syscall"
)

// statDetails extracts ownership, permission-bit, device and inode details
// from a file's platform stat structure. ok is false when the platform
// stat type is unavailable, in which case callers must fail closed.
func statDetails(info os.FileInfo) (uid, gid uint32, dev, ino uint64, ok bool) {
	stat, isStatT := info.Sys().(*syscall.Stat_t)
	if !isStatT {
		return 0, 0, 0, 0, false
	}
	//nolint:unconvert // stat.Dev/Uid/Gid types vary by platform
	return uint32(stat.Uid), uint32(stat.Gid), uint64(stat.Dev), uint64(stat.Ino), true
}
