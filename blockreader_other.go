//go:build !linux

package polyfs

import (
	"errors"
	"os"
)

// blockDeviceSize has no portable equivalent outside Linux; callers fall
// back to the stat-reported size.
func blockDeviceSize(f *os.File) (int64, error) {
	return 0, errors.New("block device size ioctl not supported on this platform")
}
