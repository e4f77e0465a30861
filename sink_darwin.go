//go:build darwin

package polyfs

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// mknodDevice mirrors sink_linux.go's syscall shape, using Darwin's
// differently-packed dev_t (unix.Mkdev on darwin takes the same major/minor
// pair but encodes them with a different bit layout under the hood).
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
