//go:build linux

package polyfs

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// mknodDevice creates a device, FIFO, or socket node via the raw mknod
// syscall, device numbers packed with unix.Mkdev the same way the kernel's
// own cramfs driver would reconstruct a dev_t from major/minor.
func mknodDevice(path string, mode fs.FileMode, major, minor uint32) error {
	m := unixModeBits(mode)
	dev := 0
	if mode&(fs.ModeDevice|fs.ModeCharDevice) != 0 {
		dev = int(unix.Mkdev(major, minor))
	}
	return unix.Mknod(path, m, dev)
}

func lchownPath(path string, uid, gid int) error {
	return unix.Lchown(path, uid, gid)
}

func unixModeBits(mode fs.FileMode) uint32 {
	m := uint32(mode.Perm())
	switch {
	case mode&fs.ModeCharDevice != 0:
		m |= unix.S_IFCHR
	case mode&fs.ModeDevice != 0:
		m |= unix.S_IFBLK
	case mode&fs.ModeNamedPipe != 0:
		m |= unix.S_IFIFO
	case mode&fs.ModeSocket != 0:
		m |= unix.S_IFSOCK
	}
	return m
}
