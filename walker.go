package polyfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path"
)

// walkCtx carries the per-run state the Tree Walker needs: the buffered
// image reader, the block algorithm implied by the superblock flags, the
// region watermarks (held here by pointer, not in package globals), the
// extraction sink, and where verbose tracing goes.
type walkCtx struct {
	reader    *BlockReader
	algo      Algo
	rt        *regionTracker
	sink      Sink
	verbosity int
	out       io.Writer
}

// Walk is the Tree Walker's entry point (spec §4.6): it validates the root
// inode, then recurses over the directory tree enforcing every per-kind
// structural invariant from spec §3 and, when sink is non-nil, extracting
// the tree into the destination the sink writes to.
func Walk(sb *Superblock, startOffset int64, reader *BlockReader, sink Sink, verbosity int, out io.Writer) (*regionTracker, error) {
	rt := newRegionTracker()
	ctx := &walkCtx{reader: reader, rt: rt, sink: sink, verbosity: verbosity, out: out}

	algo, err := sb.Flags.CompressionAlgo()
	if err != nil {
		return rt, err
	}
	ctx.algo = algo

	if sb.Root.Kind() != KindDir {
		return rt, ErrRootNotDirectory
	}
	if !sb.Flags.Has(SHIFTED_ROOT_OFFSET) {
		want := int64(superblockSize) + startOffset
		if sb.Root.ByteOffset() != want {
			return rt, ErrBadRootOffset
		}
	}

	if err := ctx.walkDir(sb.Root, "/"); err != nil {
		return rt, err
	}
	return rt, nil
}

func (c *walkCtx) trace(inode RawInode, p, info, extra string) {
	if c.verbosity < 1 || c.out == nil {
		return
	}
	name := path.Base(p)
	if p == "/" {
		name = "/"
	}
	if extra != "" {
		name = name + " -> " + extra
	}
	fmt.Fprintf(c.out, "%c %04o %s %d:%d %s\n",
		inode.Kind(), inode.Mode&07777, info, inode.Uid, inode.Gid, name)
}

func (c *walkCtx) traceBlock(format string, args ...any) {
	if c.verbosity < 2 || c.out == nil {
		return
	}
	fmt.Fprintf(c.out, format, args...)
}

func (c *walkCtx) dispatch(inode RawInode, p string) error {
	var err error
	switch inode.Kind() {
	case KindDir:
		err = c.walkDir(inode, p)
	case KindFile:
		err = c.walkFile(inode, p)
	case KindSymlink:
		err = c.walkSymlink(inode, p)
	case KindCharDev, KindBlockDev, KindFifo, KindSocket:
		err = c.walkSpecial(inode, p)
	default:
		return ErrBogusMode
	}
	return err
}

// walkDir implements the Directory case of spec §4.6.
func (c *walkCtx) walkDir(inode RawInode, p string) error {
	if inode.Offset == 0 && inode.Size != 0 {
		return ErrBadDirInode
	}

	if inode.Offset != 0 {
		c.rt.noteDir(inode.ByteOffset())
	}
	c.trace(inode, p, fmt.Sprintf("%9d", inode.Size), "")

	if c.sink != nil {
		if err := c.sink.Mkdir(p, FileMode(inode.Mode)); err != nil {
			return err
		}
	}

	cursor := inode.ByteOffset()
	remaining := int64(inode.Size)

	for remaining > 0 {
		childBuf, err := c.reader.ReadAt(cursor, rawInodeSize)
		if err != nil {
			return err
		}
		child := decodeRawInode(childBuf)
		cursor += rawInodeSize

		nameBytes := child.NameBytes()
		nameBuf, err := c.reader.ReadAt(cursor, nameBytes)
		if err != nil {
			return err
		}

		actualLen := bytes.IndexByte(nameBuf, 0)
		if actualLen == -1 {
			actualLen = nameBytes
		}
		if actualLen == 0 {
			return ErrEmptyName
		}
		if pad := nameBytes - actualLen; pad < 0 || pad > 3 {
			return ErrBadNameLength
		}
		name := string(nameBuf[:actualLen])

		childPath := path.Join(p, name)
		if err := c.dispatch(child, childPath); err != nil {
			return err
		}

		cursor += int64(nameBytes)
		c.rt.advanceEndDir(cursor)
		if cursor <= c.rt.startDir {
			return ErrBadChildOffset
		}

		remaining -= int64(rawInodeSize + nameBytes)
	}

	return c.applyMetadata(p, inode, false)
}

// walkFile implements the Regular file case of spec §4.6 and drives the
// §4.7 block decoding.
func (c *walkCtx) walkFile(inode RawInode, p string) error {
	if (inode.Offset == 0) != (inode.Size == 0) {
		return ErrFileInodeInconsistent
	}

	c.trace(inode, p, fmt.Sprintf("%9d", inode.Size), "")

	var w io.Writer
	var closer func() error
	if c.sink != nil {
		ww, cl, err := c.sink.CreateFile(p, FileMode(inode.Mode))
		if err != nil {
			return err
		}
		w, closer = ww, cl
	}

	if inode.Size == 0 {
		if closer != nil {
			if err := closer(); err != nil {
				return err
			}
		}
		return c.applyMetadata(p, inode, false)
	}

	c.rt.noteData(inode.ByteOffset())
	if err := c.decodeFileBlocks(inode, w); err != nil {
		return err
	}
	if closer != nil {
		if err := closer(); err != nil {
			return err
		}
	}

	return c.applyMetadata(p, inode, false)
}

// decodeFileBlocks implements spec §4.7: pointer table of B end-offsets,
// followed by the compressed payloads themselves.
func (c *walkCtx) decodeFileBlocks(inode RawInode, w io.Writer) error {
	size := int64(inode.Size)
	blocks := (size + BlockSize - 1) / BlockSize
	base := inode.ByteOffset()

	ptrBuf, err := c.reader.ReadAt(base, int(blocks*4))
	if err != nil {
		return err
	}
	pointers := make([]int64, blocks)
	for i := range pointers {
		pointers[i] = int64(binary.LittleEndian.Uint32(ptrBuf[i*4 : i*4+4]))
	}

	cur := base + blocks*4
	remaining := size

	for k := int64(0); k < blocks; k++ {
		if k > 0 {
			cur = pointers[k-1]
		}
		next := pointers[k]

		want := int64(BlockSize)
		if k == blocks-1 {
			if rem := size % BlockSize; rem != 0 {
				want = rem
			}
		}

		if cur == next {
			c.traceBlock("  block %d: hole (%d bytes)\n", k, want)
			if w != nil {
				if _, err := w.Write(make([]byte, want)); err != nil {
					return err
				}
			}
		} else {
			raw, err := c.reader.ReadAt(cur, int(next-cur))
			if err != nil {
				return err
			}
			out, err := Decompress(raw, c.algo)
			if err != nil {
				return err
			}
			if int64(len(out)) != want {
				return ErrBlockSizeMismatch
			}
			c.traceBlock("  block %d: %d -> %d bytes\n", k, len(raw), len(out))
			if w != nil {
				if _, err := w.Write(out); err != nil {
					return err
				}
			}
		}

		c.rt.advanceEndData(next)
		remaining -= want
	}

	_ = remaining
	return nil
}

// walkSymlink implements the Symlink case of spec §4.6. A symlink's
// content is a single compressed block: a 4-byte end pointer at offset*4,
// followed by the payload from offset*4+4 to that pointer.
func (c *walkCtx) walkSymlink(inode RawInode, p string) error {
	if inode.Offset == 0 {
		return ErrSymlinkZeroOffset
	}
	if inode.Size == 0 {
		return ErrSymlinkZeroSize
	}

	base := inode.ByteOffset()
	ptrBuf, err := c.reader.ReadAt(base, 4)
	if err != nil {
		return err
	}
	end := int64(binary.LittleEndian.Uint32(ptrBuf))

	raw, err := c.reader.ReadAt(base+4, int(end-(base+4)))
	if err != nil {
		return err
	}
	target, err := Decompress(raw, c.algo)
	if err != nil {
		return err
	}
	if int64(len(target)) != int64(inode.Size) {
		return ErrSymlinkSizeMismatch
	}

	c.rt.noteData(base)
	c.rt.advanceEndData(end)

	c.trace(inode, p, fmt.Sprintf("%9d", inode.Size), string(target))

	if c.sink != nil {
		if err := c.sink.Symlink(string(target), p); err != nil {
			return err
		}
	}
	return c.applyMetadata(p, inode, true)
}

// walkSpecial implements the Special case of spec §4.6 (char, block, FIFO,
// socket).
func (c *walkCtx) walkSpecial(inode RawInode, p string) error {
	if inode.Offset != 0 {
		return ErrSpecialHasOffset
	}

	kind := inode.Kind()
	switch kind {
	case KindFifo:
		if inode.Size != 0 {
			return ErrFifoHasSize
		}
		c.trace(inode, p, fmt.Sprintf("%9d", 0), "")
		if c.sink != nil {
			if err := c.sink.Mknod(p, FileMode(inode.Mode), 0, 0); err != nil {
				return err
			}
		}
	case KindSocket:
		if inode.Size != 0 {
			return ErrSocketHasSize
		}
		c.trace(inode, p, fmt.Sprintf("%9d", 0), "")
		if c.sink != nil {
			if err := c.sink.Mknod(p, FileMode(inode.Mode), 0, 0); err != nil {
				return err
			}
		}
	case KindCharDev, KindBlockDev:
		major, minor := decodeDevice(inode.Size)
		c.trace(inode, p, fmt.Sprintf("%4d,%4d", major, minor), "")
		if c.sink != nil {
			if err := c.sink.Mknod(p, FileMode(inode.Mode), major, minor); err != nil {
				return err
			}
		}
	default:
		return ErrBogusMode
	}

	return c.applyMetadata(p, inode, false)
}

// decodeDevice splits a special inode's packed size field into major/minor
// numbers: the upper 12 bits are the major number, the lower 12 the minor
// (spec §8 exercises "major/minor near 2^12", which this 12/12 split
// matches exactly).
func decodeDevice(size uint32) (major, minor uint32) {
	return (size >> 12) & 0xfff, size & 0xfff
}

func (c *walkCtx) applyMetadata(p string, inode RawInode, isSymlink bool) error {
	if c.sink == nil {
		return nil
	}
	return c.sink.ApplyMetadata(p, FileMode(inode.Mode), inode.Uid, inode.Gid, isSymlink)
}
