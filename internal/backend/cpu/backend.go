// Package cpu is a reference staged-decode host for uncompressed DNG data.
//
// It parses the container with pkg/dng, reads strips and tiles of any bit
// depth up to 16 bits plus half and single precision floats, validates
// embedded opcode lists and performs the stage-2 linearization. Opcode
// mathematics and demosaicing are left to full-featured hosts.
package cpu

import (
	"errors"
	"io"

	"github.com/samcharles93/dngstage/pkg/dng"
)

var (
	ErrUnsupportedCompression = errors.New("cpu: unsupported compression")
	ErrUnsupportedDepth       = errors.New("cpu: unsupported bit depth")
	ErrNoStage1               = errors.New("cpu: stage 1 image not read")
	ErrClosed                 = errors.New("cpu: negative is closed")
	ErrOpcodeList             = errors.New("cpu: malformed opcode list")
)

type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string {
	return "cpu"
}

func (b *Backend) Extended() bool {
	return false
}

// Parse reads the container index and opens a negative for it.
func (b *Backend) Parse(r io.ReadSeeker) (*dng.Index, *Negative, error) {
	idx, err := dng.Parse(r)
	if err != nil {
		return nil, nil, err
	}
	if idx.DNGVersion == 0 {
		return nil, nil, dng.ErrNotDNG
	}
	return idx, newNegative(idx.ByteOrder), nil
}
