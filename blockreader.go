package polyfs

import (
	"fmt"
	"io"
	"os"
)

// ByteSource is anything the Block Reader can pull raw image bytes from: an
// opened regular file or an opened block device.
type ByteSource interface {
	io.ReaderAt
}

// readWindowSize is the alignment and minimum size of each buffered window
// (spec §4.1: "an 8 KiB-aligned buffer pair").
const readWindowSize = 8192

type bufWindow struct {
	start int64
	data  []byte
}

func (w *bufWindow) covers(off int64, n int) bool {
	if w.data == nil {
		return false
	}
	return off >= w.start && off+int64(n) <= w.start+int64(len(w.data))
}

// BlockReader is a random-access byte source over the opened image. It
// guarantees that a read of up to BLOCK_SIZE bytes returns a contiguous
// view without re-issuing host I/O when the request lies entirely inside one
// of the two buffered windows (spec §4.1); a request that only partly
// overlaps a window is read from the host again.
type BlockReader struct {
	src  ByteSource
	a, b bufWindow
	useA bool
}

// NewBlockReader wraps src with the buffered window pair.
func NewBlockReader(src ByteSource) *BlockReader {
	return &BlockReader{src: src}
}

// ReadAt returns a contiguous slice of n bytes starting at off.
func (r *BlockReader) ReadAt(off int64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	if r.a.covers(off, n) {
		rel := off - r.a.start
		return r.a.data[rel : rel+int64(n)], nil
	}
	if r.b.covers(off, n) {
		rel := off - r.b.start
		return r.b.data[rel : rel+int64(n)], nil
	}

	start := off &^ (readWindowSize - 1)
	size := int64(readWindowSize)
	for start+size < off+int64(n) {
		size += readWindowSize
	}

	buf := make([]byte, size)
	read, err := r.src.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading image at offset %d: %w", start, err)
	}
	buf = buf[:read]
	if int64(read) < (off-start)+int64(n) {
		return nil, fmt.Errorf("reading image at offset %d: %w", off, io.ErrUnexpectedEOF)
	}

	w := bufWindow{start: start, data: buf}
	if r.useA {
		r.b = w
	} else {
		r.a = w
	}
	r.useA = !r.useA

	rel := off - w.start
	return w.data[rel : rel+int64(n)], nil
}

// OpenImage opens path (a regular file or a block device) and returns the
// opened file along with its total byte length. For block devices the
// length comes from the BLKGETSIZE64 ioctl (spec §6 "Inputs"); for regular
// files it comes from stat.
func OpenImage(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}

	if info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0 {
		if size, ierr := blockDeviceSize(f); ierr == nil {
			return f, size, nil
		}
		// fall back to stat-reported size if the ioctl isn't supported
	}

	return f, info.Size(), nil
}
