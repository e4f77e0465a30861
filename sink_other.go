//go:build !linux && !darwin

package polyfs

import (
	"errors"
	"io/fs"
)

func mknodDevice(path string, mode fs.FileMode, major, minor uint32) error {
	return errors.New("device node creation not supported on this platform")
}

func lchownPath(path string, uid, gid int) error {
	return errors.New("lchown not supported on this platform")
}
