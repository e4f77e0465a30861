package polyfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Sink is the Extraction Sink collaborator (spec §1, §4.6): the Tree Walker
// drives it, but it owns every host-filesystem side effect. Passing nil to
// Walk runs a validate-only pass with no side effects at all.
type Sink interface {
	Mkdir(path string, mode fs.FileMode) error
	CreateFile(path string, mode fs.FileMode) (w io.Writer, closeFn func() error, err error)
	Symlink(target, path string) error
	Mknod(path string, mode fs.FileMode, major, minor uint32) error
	ApplyMetadata(path string, mode fs.FileMode, uid uint16, gid uint8, isSymlink bool) error
}

// hostSink extracts a walked tree onto the real filesystem, rooted at dir.
// Adapted from writer.go's per-entry metadata bookkeeping (mode/uid/gid
// carried alongside each node), turned from "assemble an image" into
// "apply to a directory tree".
type hostSink struct {
	root    string
	modTime time.Time
}

// NewHostSink returns a Sink that extracts into dir, creating it if
// necessary. modTime stamps every extracted node, since polyfs inodes carry
// no individual timestamp.
func NewHostSink(dir string, modTime time.Time) (*hostSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &hostSink{root: dir, modTime: modTime}, nil
}

func (s *hostSink) resolve(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

// extractionMode keeps the permission bits plus setuid/setgid/sticky (spec
// §4.6: "mode preserved on suid/sgid bits"). fs.FileMode.Perm() alone masks
// those out, which is right for comparing file kinds but wrong for anything
// passed to Chmod/Mkdir/OpenFile.
func extractionMode(mode fs.FileMode) fs.FileMode {
	return mode & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
}

func (s *hostSink) Mkdir(p string, mode fs.FileMode) error {
	if p == "/" {
		return os.Chmod(s.root, extractionMode(mode))
	}
	return os.Mkdir(s.resolve(p), extractionMode(mode))
}

func (s *hostSink) CreateFile(p string, mode fs.FileMode) (io.Writer, func() error, error) {
	f, err := os.OpenFile(s.resolve(p), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, extractionMode(mode))
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (s *hostSink) Symlink(target, p string) error {
	return os.Symlink(target, s.resolve(p))
}

func (s *hostSink) Mknod(p string, mode fs.FileMode, major, minor uint32) error {
	return mknodDevice(s.resolve(p), mode, major, minor)
}

// ApplyMetadata applies chmod, then chown, then utime, in that order: a
// restrictive mode applied first must not block the chown/utime calls that
// follow, since all three run as the same process. uid/gid are only applied
// when running as root (spec §4.6): a non-root extraction leaves ownership
// as the creating process's own, rather than failing every node with EPERM.
func (s *hostSink) ApplyMetadata(p string, mode fs.FileMode, uid uint16, gid uint8, isSymlink bool) error {
	full := s.resolve(p)
	if !isSymlink {
		if err := os.Chmod(full, extractionMode(mode)); err != nil {
			return err
		}
	}
	if os.Geteuid() == 0 {
		if err := lchownPath(full, int(uid), int(gid)); err != nil {
			return err
		}
	}
	if isSymlink {
		return nil
	}
	return os.Chtimes(full, s.modTime, s.modTime)
}
