//go:build windows

package daemon

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// rootVolumeUsage reports the fraction of a scan root's filesystem that
// is occupied, used by the readiness probe to refuse scheduling a scan
// that would run the cleanup pipeline against an already-full volume.
func rootVolumeUsage(root string) (DiskUsage, error) {
	var freeBytesAvailable, totalBytes, totalFreeBytes uint64

	pathPtr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return DiskUsage{}, err
	}

	err = windows.GetDiskFreeSpaceEx(
		pathPtr,
		(*uint64)(unsafe.Pointer(&freeBytesAvailable)),
		(*uint64)(unsafe.Pointer(&totalBytes)),
		(*uint64)(unsafe.Pointer(&totalFreeBytes)),
	)
	if err != nil {
		return DiskUsage{}, err
	}

	if totalBytes == 0 {
		return DiskUsage{Root: root}, nil
	}

	used := totalBytes - totalFreeBytes
	return DiskUsage{
		Root:         root,
		TotalBytes:   totalBytes,
		UsedBytes:    used,
		UsedFraction: float64(used) / float64(totalBytes),
	}, nil
}
