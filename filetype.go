package polyfs

import "io/fs"

// On-disk mode bits are POSIX/Linux, so use these constants rather than
// relying on host layout (the host may not even be POSIX).
// based on: https://golang.org/src/os/stat_linux.go
const (
	modeIFMT   = 0xf000
	modeIFREG  = 0x8000
	modeIFDIR  = 0x4000
	modeIFBLK  = 0x6000
	modeIFCHR  = 0x2000
	modeIFIFO  = 0x1000
	modeIFLNK  = 0xa000
	modeIFSOCK = 0xc000

	modeISVTX = 0x200
	modeISGID = 0x400
	modeISUID = 0x800
)

// Kind is the file-type classification used throughout the walker and the
// verbose output format (spec §6: type ∈ {d,f,l,c,b,p,s}).
type Kind byte

const (
	KindUnknown Kind = 0
	KindDir     Kind = 'd'
	KindFile    Kind = 'f'
	KindSymlink Kind = 'l'
	KindCharDev Kind = 'c'
	KindBlockDev Kind = 'b'
	KindFifo    Kind = 'p'
	KindSocket  Kind = 's'
)

// ClassifyMode returns the Kind for a raw on-disk POSIX mode, or
// KindUnknown if the type bits don't match any recognized type (§4.6
// "Any other file-type bit pattern → BogusMode").
func ClassifyMode(mode uint16) Kind {
	switch uint32(mode) & modeIFMT {
	case modeIFDIR:
		return KindDir
	case modeIFREG:
		return KindFile
	case modeIFLNK:
		return KindSymlink
	case modeIFCHR:
		return KindCharDev
	case modeIFBLK:
		return KindBlockDev
	case modeIFIFO:
		return KindFifo
	case modeIFSOCK:
		return KindSocket
	default:
		return KindUnknown
	}
}

// FileMode converts a raw on-disk POSIX mode into a host fs.FileMode,
// preserving permission bits and the setuid/setgid/sticky bits (§4.6:
// "mode preserved on suid/sgid bits").
func FileMode(mode uint16) fs.FileMode {
	res := fs.FileMode(mode & 0777)

	switch uint32(mode) & modeIFMT {
	case modeIFCHR:
		res |= fs.ModeCharDevice | fs.ModeDevice
	case modeIFBLK:
		res |= fs.ModeDevice
	case modeIFDIR:
		res |= fs.ModeDir
	case modeIFIFO:
		res |= fs.ModeNamedPipe
	case modeIFLNK:
		res |= fs.ModeSymlink
	case modeIFSOCK:
		res |= fs.ModeSocket
	}

	if mode&modeISGID == modeISGID {
		res |= fs.ModeSetgid
	}
	if mode&modeISUID == modeISUID {
		res |= fs.ModeSetuid
	}
	if mode&modeISVTX == modeISVTX {
		res |= fs.ModeSticky
	}

	return res
}
