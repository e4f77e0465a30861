package polyfs

import (
	"fmt"
	"hash/crc32"
	"os"

	"golang.org/x/sys/unix"
)

// crcSlotOffset is the byte offset of fsid.crc within the superblock record
// (spec §3: the fsid block is the second 16-byte group after magic/size/
// flags/future).
const crcSlotOffset = 16

// crcStreamChunk bounds the fallback streaming reader (spec §4.3: "a
// bounded (4 KiB) streaming read").
const crcStreamChunk = 4096

// VerifyCRC implements the CRC Verifier (spec §4.3): CRC-32 with the zlib
// parameters (which is exactly hash/crc32's IEEE table) over
// [start_offset, start_offset+super.size) with the 4-byte fsid.crc slot
// logically zeroed.
func VerifyCRC(f *os.File, startOffset int64, sb *Superblock) error {
	sum, err := crcViaMmap(f, startOffset, sb)
	if err != nil {
		sum, err = crcViaStream(f, startOffset, sb)
		if err != nil {
			return err
		}
	}
	if sum != sb.FSID.Crc {
		return ErrCrcMismatch
	}
	return nil
}

// crcViaMmap maps the image read-only and computes the CRC over the mapped
// bytes directly, zeroing the CRC slot in a private copy of just those 4
// bytes rather than making the mapping writable (spec §4.1: "if it zeros
// the CRC slot, it must do so in a private copy").
func crcViaMmap(f *os.File, startOffset int64, sb *Superblock) (uint32, error) {
	total := int64(sb.Size)
	data, err := unix.Mmap(int(f.Fd()), startOffset, int(total), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return 0, err
	}
	defer unix.Munmap(data)

	h := crc32.NewIEEE()
	h.Write(data[:crcSlotOffset])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(data[crcSlotOffset+4:])
	return h.Sum32(), nil
}

// crcViaStream is the fallback path for sources that can't be mapped (e.g.
// some block devices): a bounded streaming read, zeroing the CRC slot's
// bytes in whichever chunk they land in before feeding the hash.
func crcViaStream(f *os.File, startOffset int64, sb *Superblock) (uint32, error) {
	total := int64(sb.Size)
	h := crc32.NewIEEE()
	buf := make([]byte, crcStreamChunk)

	var pos int64
	for pos < total {
		n := int64(len(buf))
		if total-pos < n {
			n = total - pos
		}
		chunk := buf[:n]
		if _, err := f.ReadAt(chunk, startOffset+pos); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrTruncatedImage, err)
		}

		slotStart := crcSlotOffset - pos
		if slotStart >= 0 && slotStart < n {
			end := slotStart + 4
			if end > n {
				end = n
			}
			for i := slotStart; i < end; i++ {
				chunk[i] = 0
			}
		}

		h.Write(chunk)
		pos += n
	}
	return h.Sum32(), nil
}
