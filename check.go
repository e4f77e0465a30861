package polyfs

import (
	"fmt"
	"os"
	"time"
)

// Report summarizes a completed Check run: the located superblock, the
// non-fatal "file extends past end" warning if one fired, and whether an
// extraction sink was driven.
type Report struct {
	StartOffset int64
	Superblock  *Superblock
	Warning     error
	Extracted   bool
}

// Check runs the full validation pipeline from spec §2: Locate, then the
// CRC Verifier and the Tree Walker, then the Region Tracker's final layout
// pass. It returns as soon as the first error is detected, matching §7's
// propagation policy ("all errors are fatal ... aborts at the first
// detected violation").
func Check(path string, opts ...Option) (*Report, error) {
	o := &options{verbosity: 0}
	for _, opt := range opts {
		opt(o)
	}
	if o.out == nil {
		o.out = os.Stdout
	}
	if o.modTime.IsZero() {
		o.modTime = time.Unix(0, 0)
	}

	f, imageLen, err := OpenImage(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := NewBlockReader(f)

	startOffset, sb, warn, err := Locate(f, imageLen)
	if err != nil {
		return nil, err
	}

	if err := VerifyCRC(f, startOffset, sb); err != nil {
		return nil, err
	}

	var sink Sink
	if o.extractDir != "" {
		hs, err := NewHostSink(o.extractDir, o.modTime)
		if err != nil {
			return nil, err
		}
		sink = hs
	}

	rt, err := Walk(sb, startOffset, reader, sink, o.verbosity, o.out)
	if err != nil {
		return nil, err
	}

	if err := rt.validate(sb, startOffset); err != nil {
		return nil, err
	}

	return &Report{
		StartOffset: startOffset,
		Superblock:  sb,
		Warning:     warn,
		Extracted:   sink != nil,
	}, nil
}
