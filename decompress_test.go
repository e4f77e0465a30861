package polyfs

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func TestDecompressNone(t *testing.T) {
	src := []byte("hello, polyfs")
	out, err := Decompress(src, AlgoNone)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Errorf("got %q, want %q", out, src)
	}
}

func TestDecompressNoneTooLarge(t *testing.T) {
	src := make([]byte, BlockSize+1)
	_, err := Decompress(src, AlgoNone)
	if !errors.Is(err, ErrBlockTooLarge) {
		t.Fatalf("err = %v, want ErrBlockTooLarge", err)
	}
}

func TestDecompressZlibRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("polyfsck "), 200)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(want); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}

	got, err := Decompress(compressed.Bytes(), AlgoZlib)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("zlib round trip mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestDecompressZlibBadStream(t *testing.T) {
	_, err := Decompress([]byte{0x00, 0x01, 0x02, 0x03}, AlgoZlib)
	if !errors.Is(err, ErrDecompressError) {
		t.Fatalf("err = %v, want ErrDecompressError", err)
	}
}

func TestDecompressZlibTooLarge(t *testing.T) {
	src := make([]byte, maxDecompressedSize+1)
	_, err := Decompress(src, AlgoZlib)
	if !errors.Is(err, ErrBlockTooLarge) {
		t.Fatalf("err = %v, want ErrBlockTooLarge", err)
	}
}

func TestDecompressLzoTooLarge(t *testing.T) {
	src := make([]byte, MaxBlockOverhead+1)
	_, err := Decompress(src, AlgoLzo)
	if !errors.Is(err, ErrBlockTooLarge) {
		t.Fatalf("err = %v, want ErrBlockTooLarge", err)
	}
}

func TestDecompressUnknownAlgo(t *testing.T) {
	_, err := Decompress([]byte("x"), Algo(99))
	if !errors.Is(err, ErrUnsupportedFeature) {
		t.Fatalf("err = %v, want ErrUnsupportedFeature", err)
	}
}
