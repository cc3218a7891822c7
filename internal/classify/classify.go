// Package classify decides whether a raw file goes through the staged decoder.
package classify

import (
	"fmt"
	"strings"

	"github.com/samcharles93/dngstage/internal/diag"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// Decision is the classifier outcome.
type Decision int

const (
	// Reject refuses the staged path; the caller uses its native decoder.
	Reject Decision = iota
	// Native means the staged path was never an option (not a DNG, or no
	// staged backend attached).
	Native
	// Staged selects the staged decoder.
	Staged
)

func (d Decision) String() string {
	switch d {
	case Reject:
		return "reject"
	case Native:
		return "native"
	case Staged:
		return "staged"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Unpacker identifies the native unpack routine chosen for the file.
type Unpacker int

const (
	UnpackerOther Unpacker = iota
	UnpackerLossyDNG
)

// Category is a caller-enabled class of files accepted for staged decoding.
type Category uint32

const (
	CategoryFloat Category = 1 << iota
	CategoryLinear
	CategoryDeflate
	CategoryEightBit
	CategoryXTrans
	CategoryOther
)

// DefaultCategories matches the usual build defaults.
const DefaultCategories = CategoryFloat | CategoryLinear | CategoryDeflate | CategoryEightBit

var categoryNames = map[string]Category{
	"float":   CategoryFloat,
	"linear":  CategoryLinear,
	"deflate": CategoryDeflate,
	"8bit":    CategoryEightBit,
	"xtrans":  CategoryXTrans,
	"other":   CategoryOther,
}

// ParseCategories converts names such as "float" or "8bit" into a bitset.
func ParseCategories(names []string) (Category, error) {
	var c Category
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if n == "default" {
			c |= DefaultCategories
			continue
		}
		v, ok := categoryNames[n]
		if !ok {
			return 0, fmt.Errorf("unknown category %q", n)
		}
		c |= v
	}
	return c, nil
}

// Filter values with a fixed meaning for the classifier.
const (
	FiltersNone   uint32 = 0
	FiltersXTrans uint32 = 9
)

// Meta is the file metadata the rules look at.
type Meta struct {
	DNGVersion    uint32
	Compression   uint16
	BitsPerSample int
	Samples       int
	Make          string
	FileSize      int64
	Filters       uint32
	FloatingPoint bool
	FujiRotated   bool
	Unpacker      Unpacker
}

// Capabilities describes what the attached backends can do.
type Capabilities struct {
	// Backend is set when a staged host is attached.
	Backend bool
	// ExtendedCodec is set when the host decodes JPEG XL tiles.
	ExtendedCodec bool
	// AltCodec is set when the alternate VC-5 codec is registered.
	AltCodec bool
}

// Options are the caller's preferences.
type Options struct {
	// Categories enabled for staged decoding. Zero disables staged decoding.
	Categories Category
	// AddPreviews accepts lossy previews that are not the main image.
	AddPreviews bool
}

// Probe is the result of a trial parse used by the lossy-DNG rule.
type Probe struct {
	Found bool
	Main  bool
}

// Prober runs the lossy-DNG trial parse against the backend.
type Prober interface {
	ProbeLossy(meta Meta) (Probe, error)
}

// Verdict is a decision plus the rule that produced it.
type Verdict struct {
	Decision Decision
	Rule     string
}

// Classifier evaluates the ordered rule list.
type Classifier struct {
	Caps   Capabilities
	Prober Prober
}

const maxNativeSize = 1<<31 - 1

// Classify applies the rules in order; the first match wins. Only the
// lossy-DNG trial parse may touch the backend, and it records NotParsed on
// failure.
func (c *Classifier) Classify(m Meta, opts Options, d *diag.Set) Verdict {
	if m.DNGVersion == 0 {
		return Verdict{Native, "not-dng"}
	}
	if !c.Caps.Backend {
		return Verdict{Native, "no-backend"}
	}

	if m.Compression == dng.CompressionJXL {
		if c.Caps.ExtendedCodec {
			return Verdict{Staged, "jxl"}
		}
		return Verdict{Reject, "jxl-unsupported"}
	}

	if m.FileSize > maxNativeSize {
		return Verdict{Staged, "large-file"}
	}

	if strings.EqualFold(m.Make, "Blackmagic") && m.Compression == dng.CompressionJPEG && m.BitsPerSample > 8 {
		return Verdict{Reject, "blackmagic-ljpeg"}
	}

	if m.Compression == dng.CompressionLossyJPEG && m.BitsPerSample == 8 &&
		(m.Samples == 1 || m.Samples == 3 || m.Samples == 4) && m.Unpacker == UnpackerLossyDNG {
		return c.probeLossy(m, opts, d)
	}

	if m.Compression == dng.CompressionVC5 && c.Caps.AltCodec {
		return Verdict{Staged, "vc5"}
	}

	if opts.Categories == 0 {
		return Verdict{Reject, "disabled"}
	}

	// Preserved as-is: the lossy unpacker is refused here even though the
	// rule above accepts it for 8-bit 1/3/4-sample files.
	if m.Unpacker == UnpackerLossyDNG {
		return Verdict{Reject, "lossy-unpacker"}
	}

	cat := opts.Categories
	switch {
	case m.FloatingPoint && cat&CategoryFloat != 0:
		return Verdict{Staged, "float"}
	case m.Filters == FiltersNone && cat&CategoryLinear != 0:
		return Verdict{Staged, "linear"}
	case m.BitsPerSample == 8 && cat&CategoryEightBit != 0:
		return Verdict{Staged, "8bit"}
	case m.Compression == dng.CompressionDeflate && cat&CategoryDeflate != 0:
		return Verdict{Staged, "deflate"}
	case m.Filters == FiltersXTrans && cat&CategoryXTrans != 0:
		return Verdict{Staged, "xtrans"}
	}

	if m.Samples == 2 {
		return Verdict{Reject, "two-samples"}
	}
	if m.FujiRotated {
		return Verdict{Reject, "fuji-rotated"}
	}
	if cat&CategoryOther != 0 {
		return Verdict{Staged, "other"}
	}
	return Verdict{Reject, "no-category"}
}

func (c *Classifier) probeLossy(m Meta, opts Options, d *diag.Set) Verdict {
	if c.Prober == nil {
		return Verdict{Reject, "lossy-no-host"}
	}
	p, err := safeProbe(c.Prober, m)
	if err != nil {
		d.Add(diag.NotParsed)
		return Verdict{Reject, "lossy-not-parsed"}
	}
	switch {
	case p.Found && p.Main:
		return Verdict{Staged, "lossy-main"}
	case p.Found && opts.AddPreviews:
		return Verdict{Staged, "lossy-preview"}
	default:
		return Verdict{Reject, "lossy-not-found"}
	}
}

func safeProbe(p Prober, m Meta) (res Probe, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in ProbeLossy: %v", rec)
		}
	}()
	return p.ProbeLossy(m)
}
