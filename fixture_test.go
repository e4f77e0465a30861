package polyfs

import (
	"encoding/binary"
	"hash/crc32"
)

// This file builds polyfs images in memory for the package's own tests. It
// is test-only: spec.md scopes image creation out (no public writer), so
// none of this is exported or reachable from production code.
//
// The layout is built in stages (lay out directories, then data, then write
// the header, in that order) and produces polyfs's flat
// inline-entry directories and block-pointer-table files instead of
// squashfs's compressed metadata blocks.

type fxNode struct {
	name     string
	mode     uint16
	uid      uint16
	gid      uint8
	children []*fxNode // directories
	content  []byte    // regular files (stored via AlgoNone)
	holes    bool      // regular files: every block is a hole
	size     uint32    // regular files with holes: declared size
	target   string    // symlinks
	major    uint32    // char/block devices
	minor    uint32

	offset int64 // assigned during layout
}

func fxDir(name string, mode uint16, children ...*fxNode) *fxNode {
	return &fxNode{name: name, mode: modeIFDIR | mode, children: children}
}

func fxFile(name string, mode uint16, content []byte) *fxNode {
	return &fxNode{name: name, mode: modeIFREG | mode, content: content}
}

func fxHoleFile(name string, mode uint16, size uint32) *fxNode {
	return &fxNode{name: name, mode: modeIFREG | mode, holes: true, size: size}
}

func fxSymlink(name string, target string) *fxNode {
	return &fxNode{name: name, mode: modeIFLNK | 0777, target: target}
}

func fxDevice(name string, mode uint16, isChar bool, major, minor uint32) *fxNode {
	t := uint16(modeIFBLK)
	if isChar {
		t = modeIFCHR
	}
	return &fxNode{name: name, mode: t | mode, major: major, minor: minor}
}

func fxFifo(name string, mode uint16) *fxNode {
	return &fxNode{name: name, mode: modeIFIFO | mode}
}

func (n *fxNode) isDir() bool { return uint32(n.mode)&modeIFMT == modeIFDIR }

func (n *fxNode) declaredSize() uint32 {
	if n.holes {
		return n.size
	}
	if n.isDir() {
		var total uint32
		for _, c := range n.children {
			total += uint32(rawInodeSize) + uint32(nameUnits(c.name))*4
		}
		return total
	}
	switch uint32(n.mode) & modeIFMT {
	case modeIFREG:
		return uint32(len(n.content))
	case modeIFLNK:
		return uint32(len(n.target))
	case modeIFCHR, modeIFBLK:
		return (n.major&0xfff)<<12 | (n.minor & 0xfff)
	default:
		return 0
	}
}

func nameUnits(name string) int {
	return (len(name) + 3) / 4
}

// fxImage is a built image plus bookkeeping useful to tests that want to
// corrupt specific byte ranges afterward.
type fxImage struct {
	bytes       []byte
	startOffset int64
}

// buildImage lays out root (whose name is ignored) as the filesystem root,
// computes every offset, and returns a byte-complete, CRC-valid image.
// startOffset must be 0 or PadSize.
func buildImage(root *fxNode, startOffset int64) *fxImage {
	dirCursor := startOffset + superblockSize

	// Directory region: BFS, root forced onto dirCursor regardless of
	// whether it has children (spec §4.2 bullet 3: the root's offset is
	// always sizeof(superblock) [+ start_offset], not conditioned on size).
	root.offset = dirCursor
	queue := []*fxNode{root}
	first := true
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		if !first && len(d.children) == 0 {
			d.offset = 0
		} else {
			d.offset = dirCursor
		}
		first = false

		for _, c := range d.children {
			if c.isDir() {
				queue = append(queue, c)
			}
		}
		if d.offset != 0 {
			dirCursor += int64(d.declaredSize())
		}
	}

	// Data region: DFS collecting every non-directory, non-special leaf
	// that actually occupies data (files and symlinks; specials keep
	// offset 0). Offsets are stored in 4-byte units, so each region starts
	// on a 4-byte boundary.
	dataCursor := dirCursor
	var walkAssign func(d *fxNode)
	walkAssign = func(d *fxNode) {
		for _, c := range d.children {
			switch uint32(c.mode) & modeIFMT {
			case modeIFDIR:
				walkAssign(c)
			case modeIFREG:
				c.offset = dataCursor
				dataCursor += fileRegionSize(c)
				dataCursor = (dataCursor + 3) &^ 3
			case modeIFLNK:
				c.offset = dataCursor
				dataCursor += 4 + int64(len(c.target))
				dataCursor = (dataCursor + 3) &^ 3
			default:
				c.offset = 0
			}
		}
	}
	walkAssign(root)

	// The superblock's size is at least BlockSize, and the CRC covers
	// [startOffset, startOffset+size), so the buffer holds startOffset+size.
	total := dataCursor
	if total < BlockSize {
		total = BlockSize
	}
	buf := make([]byte, startOffset+total)

	writeDir(buf, root)
	var writeData func(d *fxNode)
	writeData = func(d *fxNode) {
		for _, c := range d.children {
			switch uint32(c.mode) & modeIFMT {
			case modeIFDIR:
				writeDir(buf, c)
				writeData(c)
			case modeIFREG:
				writeFile(buf, c)
			case modeIFLNK:
				binary.LittleEndian.PutUint32(buf[c.offset:c.offset+4], uint32(c.offset)+4+uint32(len(c.target)))
				copy(buf[c.offset+4:], c.target)
			}
		}
	}
	writeData(root)

	sb := &Superblock{
		Magic:  Magic,
		Size:   uint32(total),
		Flags:  FSID_VERSION_1,
		FSID:   FSID{Files: 1},
		Root: RawInode{
			Mode:    root.mode,
			Uid:     root.uid,
			Gid:     root.gid,
			Size:    root.declaredSize(),
			Namelen: 0,
			Offset:  uint32(root.offset / 4),
		},
	}
	writeSuperblock(buf, startOffset, sb)

	crc := computeFixtureCRC(buf, startOffset, int64(sb.Size))
	binary.LittleEndian.PutUint32(buf[startOffset+16:startOffset+20], crc)

	return &fxImage{bytes: buf, startOffset: startOffset}
}

// fileRegionSize returns the byte length of a regular file's pointer table
// plus payload, matching §4.7's layout.
func fileRegionSize(f *fxNode) int64 {
	size := f.declaredSize()
	blocks := (int64(size) + BlockSize - 1) / BlockSize
	if size == 0 {
		blocks = 0
	}
	return blocks*4 + payloadSize(f, blocks)
}

func payloadSize(f *fxNode, blocks int64) int64 {
	if f.holes {
		return 0
	}
	return int64(len(f.content))
}

func writeDir(buf []byte, d *fxNode) {
	if d.offset == 0 && len(d.children) > 0 {
		panic("fixture: directory with children has zero offset")
	}
	cursor := d.offset
	for _, c := range d.children {
		inode := RawInode{
			Mode:    c.mode,
			Uid:     c.uid,
			Gid:     c.gid,
			Size:    c.declaredSize(),
			Namelen: uint8(nameUnits(c.name)),
			Offset:  uint32(c.offset / 4),
		}
		copy(buf[cursor:cursor+rawInodeSize], encodeRawInode(inode))
		cursor += rawInodeSize
		nb := int64(nameUnits(c.name)) * 4
		copy(buf[cursor:cursor+int64(len(c.name))], c.name)
		cursor += nb
	}
}

func writeFile(buf []byte, f *fxNode) {
	size := f.declaredSize()
	blocks := (int64(size) + BlockSize - 1) / BlockSize
	if size == 0 {
		blocks = 0
	}
	ptrBase := f.offset
	payloadBase := ptrBase + blocks*4

	if f.holes {
		for k := int64(0); k < blocks; k++ {
			binary.LittleEndian.PutUint32(buf[ptrBase+k*4:ptrBase+k*4+4], uint32(payloadBase))
		}
		return
	}

	cur := payloadBase
	for k := int64(0); k < blocks; k++ {
		want := int64(BlockSize)
		if k == blocks-1 {
			if rem := int64(size) % BlockSize; rem != 0 {
				want = rem
			}
		}
		start := k * BlockSize
		copy(buf[cur:cur+want], f.content[start:start+want])
		cur += want
		binary.LittleEndian.PutUint32(buf[ptrBase+k*4:ptrBase+k*4+4], uint32(cur))
	}
}

func writeSuperblock(buf []byte, startOffset int64, sb *Superblock) {
	b := buf[startOffset:]
	binary.LittleEndian.PutUint32(b[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(b[4:8], sb.Size)
	binary.LittleEndian.PutUint32(b[8:12], uint32(sb.Flags))
	binary.LittleEndian.PutUint32(b[12:16], sb.Future)
	binary.LittleEndian.PutUint32(b[16:20], sb.FSID.Crc)
	binary.LittleEndian.PutUint32(b[20:24], sb.FSID.Edition)
	binary.LittleEndian.PutUint32(b[24:28], sb.FSID.Blocks)
	binary.LittleEndian.PutUint32(b[28:32], sb.FSID.Files)
	copy(b[32:32+rawInodeSize], encodeRawInode(sb.Root))
}

// computeFixtureCRC mirrors crc.go's streaming path over an in-memory
// buffer, used so the fixture builder doesn't need a real *os.File.
func computeFixtureCRC(buf []byte, startOffset, size int64) uint32 {
	h := crc32.NewIEEE()
	region := make([]byte, size)
	copy(region, buf[startOffset:startOffset+size])
	for i := int64(crcSlotOffset); i < crcSlotOffset+4; i++ {
		region[i] = 0
	}
	h.Write(region)
	return h.Sum32()
}
