package polyfs

import (
	"encoding/binary"
	"fmt"
)

// Magic is the fixed 32-bit identifier every valid image must start with
// (spec §3).
const Magic uint32 = 0x28cd3d45

// Size constants from spec §3.
const (
	BlockSize = 4096            // uncompressed block granularity
	PadSize   = 512              // alternate superblock offset
	// MaxBlockOverhead bounds an LZO-compressed block: BLOCK_SIZE + BLOCK_SIZE/16 + 64 + 3.
	MaxBlockOverhead = BlockSize + BlockSize/16 + 64 + 3
)

// superblockSize is sizeof(superblock) on disk: magic, size, flags, future
// (4 x u32), fsid (4 x u32), and the embedded 12-byte root inode record.
const superblockSize = 4 + 4 + 4 + 4 + 16 + rawInodeSize

// FSID holds the filesystem identification block embedded in the
// superblock (spec §3).
type FSID struct {
	Crc     uint32
	Edition uint32
	Blocks  uint32
	Files   uint32
}

// Superblock is the host-endian, validated representation of the on-disk
// superblock record (spec §3).
type Superblock struct {
	Magic   uint32
	Size    uint32
	Flags   Flags
	Future  uint32
	FSID    FSID
	Root    RawInode
}

// decodeSuperblock parses the fixed-width on-disk record in buf (which must
// be exactly superblockSize bytes) into host-endian fields. All multi-byte
// on-disk integers are little-endian (spec §3); this is the byte-order
// normalization step of §4.2.
func decodeSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < superblockSize {
		return nil, fmt.Errorf("%w: short superblock read", ErrSuperblockTooSmall)
	}

	sb := &Superblock{
		Magic:  binary.LittleEndian.Uint32(buf[0:4]),
		Size:   binary.LittleEndian.Uint32(buf[4:8]),
		Flags:  Flags(binary.LittleEndian.Uint32(buf[8:12])),
		Future: binary.LittleEndian.Uint32(buf[12:16]),
		FSID: FSID{
			Crc:     binary.LittleEndian.Uint32(buf[16:20]),
			Edition: binary.LittleEndian.Uint32(buf[20:24]),
			Blocks:  binary.LittleEndian.Uint32(buf[24:28]),
			Files:   binary.LittleEndian.Uint32(buf[28:32]),
		},
	}
	sb.Root = decodeRawInode(buf[32 : 32+rawInodeSize])
	return sb, nil
}

// Locate implements the Superblock Locator (spec §4.2): try offset 0, then
// the fixed PAD_SIZE pad offset, validating the magic at each candidate.
// imageLen is the total byte length of the image (from stat or the
// block-device size ioctl). warn is non-nil (and non-fatal, per §4.2 and
// §7) when the image is longer than the superblock claims.
func Locate(r ByteSource, imageLen int64) (startOffset int64, sb *Superblock, warn error, err error) {
	head := make([]byte, superblockSize)

	if _, err := r.ReadAt(head, 0); err != nil {
		return 0, nil, nil, fmt.Errorf("reading superblock at offset 0: %w", err)
	}
	if binary.LittleEndian.Uint32(head[0:4]) == Magic {
		sb, err = decodeSuperblock(head)
		if err != nil {
			return 0, nil, nil, err
		}
		warn, err = validateSuperblock(sb, imageLen)
		return 0, sb, warn, err
	}

	if imageLen >= PadSize+superblockSize {
		if _, err := r.ReadAt(head, PadSize); err != nil {
			return 0, nil, nil, fmt.Errorf("reading superblock at offset %d: %w", PadSize, err)
		}
		if binary.LittleEndian.Uint32(head[0:4]) == Magic {
			sb, err = decodeSuperblock(head)
			if err != nil {
				return 0, nil, nil, err
			}
			warn, err = validateSuperblock(sb, imageLen)
			return PadSize, sb, warn, err
		}
	}

	return 0, nil, nil, ErrBadMagic
}

// validateSuperblock runs the §4.2 validation chain after the magic has
// matched and the fields have been normalized to host order.
func validateSuperblock(sb *Superblock, imageLen int64) (warn error, err error) {
	if sb.Flags&^SUPPORTED != 0 {
		return nil, ErrUnsupportedFeature
	}
	if sb.Size < BlockSize {
		return nil, ErrSuperblockTooSmall
	}
	if !sb.Flags.Has(FSID_VERSION_1) {
		return nil, ErrInvalidVersion
	}
	if sb.FSID.Files == 0 {
		return nil, ErrZeroFileCount
	}
	if imageLen < int64(sb.Size) {
		return nil, ErrTruncatedImage
	}
	if imageLen > int64(sb.Size) {
		warn = fmt.Errorf("file extends past end of filesystem")
	}
	return warn, nil
}
