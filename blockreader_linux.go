//go:build linux

package polyfs

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// blockDeviceSize issues the BLKGETSIZE64 ioctl, which reports the device
// size in bytes directly (spec §6 "Inputs": "a BLKGETSIZE-equivalent ioctl
// returning sectors-of-512 for block devices" — BLKGETSIZE64 is the
// byte-granular successor and is what modern kernels expect callers to
// use).
func blockDeviceSize(f *os.File) (int64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return int64(size), nil
}
