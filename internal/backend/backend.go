package backend

import (
	"fmt"
	"io"
	"strings"

	"github.com/samcharles93/dngstage/internal/raster"
	"github.com/samcharles93/dngstage/pkg/dng"
)

const (
	CPU  = "cpu"
	None = "none"
	Auto = "auto"
)

// Host is the staged-decode backend. Parse opens one decode context per
// request; the returned Negative owns every buffer the backend allocates.
type Host interface {
	Name() string
	Parse(r io.ReadSeeker) (*dng.Index, Negative, error)
	// Extended reports JPEG XL support.
	Extended() bool
}

// Negative is a per-request decode context.
type Negative interface {
	// ReadStage1 reads the raw samples of d and the opcode lists it carries.
	ReadStage1(r io.ReadSeeker, d *dng.Descriptor) error
	Stage1() *raster.Image
	ApplyOpcodeList(list dng.OpcodeList, img *raster.Image) error
	BuildStage2() (*raster.Image, error)
	BuildStage3() (*raster.Image, error)
	// ReadImage decodes d straight into dst without any opcode processing.
	ReadImage(r io.ReadSeeker, d *dng.Descriptor, dst *raster.Image) error
	// Allocate returns a backend-owned image that lives until Close.
	Allocate(w, h, planes int, t dng.PixelType) (*raster.Image, error)
	Close() error
}

// OpcodeSkipper is implemented by negatives that parse opcode lists without
// executing them.
type OpcodeSkipper interface {
	SkippedOpcodes() int
}

// Codec is a single-entry decoder for one compression code.
type Codec interface {
	Compression() uint16
	Read(d *dng.Descriptor, r io.ReadSeeker, dst *raster.Image) error
}

func Normalize(name string) (string, error) {
	b := strings.ToLower(strings.TrimSpace(name))
	if b == "" {
		return Auto, nil
	}
	switch b {
	case CPU, None, Auto:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, cpu, or none)", b)
	}
}

// New returns the named host. "none" yields a nil host, which callers treat
// as an unconfigured pipeline.
func New(name string) (Host, error) {
	b, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	switch b {
	case None:
		return nil, nil
	default:
		return newCPU()
	}
}
