package polyfs

import "encoding/binary"

// rawInodeSize is sizeof(on-disk inode): mode(u16) + uid(u16) + a packed
// word of gid(u8)+size(u24), then a packed word of namelen(u6)+offset(u26).
// 2 + 2 + 4 + 4 = 12 bytes.
const rawInodeSize = 12

// RawInode is the host-endian decoding of the fixed-width on-disk inode
// record (spec §3, §4.4). The decoder does no semantic validation; callers
// (the tree walker) enforce the invariants.
type RawInode struct {
	Mode    uint16
	Uid     uint16
	Gid     uint8
	Size    uint32 // 24-bit on disk
	Namelen uint8  // 6-bit on disk, in 4-byte units
	Offset  uint32 // 26-bit on disk, in 4-byte units
}

// decodeRawInode unpacks a 12-byte on-disk inode record. All on-disk
// integers are little-endian; the second and third words additionally pack
// two bitfields each (spec §3: "the offset and namelen are packed into the
// tail word").
func decodeRawInode(buf []byte) RawInode {
	w0 := binary.LittleEndian.Uint32(buf[0:4])
	w1 := binary.LittleEndian.Uint32(buf[4:8])
	w2 := binary.LittleEndian.Uint32(buf[8:12])

	return RawInode{
		Mode:    uint16(w0 & 0xffff),
		Uid:     uint16(w0 >> 16),
		Size:    w1 & 0x00ffffff,
		Gid:     uint8(w1 >> 24),
		Namelen: uint8(w2 & 0x3f),
		Offset:  w2 >> 6,
	}
}

// encodeRawInode packs a RawInode back into its 12-byte on-disk form. Used
// only by the test-fixture image builder.
func encodeRawInode(i RawInode) []byte {
	buf := make([]byte, rawInodeSize)
	w0 := uint32(i.Mode) | uint32(i.Uid)<<16
	w1 := (i.Size & 0x00ffffff) | uint32(i.Gid)<<24
	w2 := (uint32(i.Namelen) & 0x3f) | i.Offset<<6

	binary.LittleEndian.PutUint32(buf[0:4], w0)
	binary.LittleEndian.PutUint32(buf[4:8], w1)
	binary.LittleEndian.PutUint32(buf[8:12], w2)
	return buf
}

// ByteOffset returns the inode's offset field converted from 4-byte units
// to a byte offset (spec §3: "offset: u26 ... so byte offset is offset*4").
func (i RawInode) ByteOffset() int64 {
	return int64(i.Offset) * 4
}

// NameBytes returns the number of bytes the inode's name occupies on disk,
// including NUL padding (spec §3: "namelen*4 bytes").
func (i RawInode) NameBytes() int {
	return int(i.Namelen) * 4
}

// Kind classifies the inode by its mode's file-type bits.
func (i RawInode) Kind() Kind {
	return ClassifyMode(i.Mode)
}
