package polyfs

import (
	"io"
	"time"
)

// options holds the configuration a Check run is built from (spec §6's
// flags, threaded through as a functional-options struct rather than package
// globals, the same encapsulation choice spec.md §9 makes for the region
// watermarks).
type options struct {
	extractDir string
	verbosity  int
	out        io.Writer
	modTime    time.Time
}

// Option configures a Check run.
type Option func(*options)

// WithExtractDir enables extraction: every regular file, directory, symlink
// and special node the Tree Walker visits is applied under dir via a
// hostSink. Without this option Check only validates.
func WithExtractDir(dir string) Option {
	return func(o *options) { o.extractDir = dir }
}

// WithVerbosity sets the -v trace level (0: silent, 1: per-inode lines,
// 2: per-block decompression/hole traces too).
func WithVerbosity(v int) Option {
	return func(o *options) { o.verbosity = v }
}

// WithOutput redirects verbose trace output; defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithModTime stamps extracted nodes with t instead of the epoch (spec
// §4.6: polyfs inodes carry no timestamp, so extraction defaults mtime and
// atime to 0).
func WithModTime(t time.Time) Option {
	return func(o *options) { o.modTime = t }
}
