package intrinsics

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
)

// xzMagic is the stream header of an xz container.
var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// xzNewReader is a variable so tests can simulate decoder failures.
var xzNewReader = func(r io.Reader) (io.Reader, error) {
	return xz.NewReader(r)
}

// Decompress returns a reader over the plain XML content of r. Vendor data
// files are often shipped xz-compressed; the container is recognized by its
// magic bytes, not by the file name.
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	if !bytes.Equal(head, xzMagic) {
		return br, nil
	}
	zr, err := xzNewReader(br)
	if err != nil {
		return nil, fmt.Errorf("opening xz stream: %w", err)
	}
	return zr, nil
}

// ReadFile reads a data file fully, decompressing it when needed. Failures
// are reported as *errors.OpenError.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewOpen(path, err)
	}
	defer f.Close()

	r, err := Decompress(f)
	if err != nil {
		return nil, errors.NewOpen(path, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewOpen(path, err)
	}
	return data, nil
}
