// Package stage drives a located sub-image through the staged decode:
// stage-1 read, opcode lists, and the stage-2/3 lifts, or the plain
// single-codec read when no staged transform is wanted.
package stage

import (
	"errors"
	"fmt"
	"io"

	"github.com/samcharles93/dngstage/internal/backend"
	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/diag"
	"github.com/samcharles93/dngstage/internal/locate"
	"github.com/samcharles93/dngstage/internal/raster"
	"github.com/samcharles93/dngstage/pkg/dng"
)

var errNoStage1 = errors.New("backend returned no stage 1 image")

// Options are the caller's stage requests.
type Options struct {
	Stage2          bool
	Stage3          bool
	Stage2IfPresent bool
	Stage3IfPresent bool
}

// Stage is how far a result went through the pipeline.
type Stage int

const (
	StagePlain Stage = iota
	StagePreview1
	StagePreview2
	StageMain2
	StageMain3
)

func (s Stage) String() string {
	switch s {
	case StagePlain:
		return "plain"
	case StagePreview1:
		return "preview-1"
	case StagePreview2:
		return "preview-2"
	case StageMain2:
		return "main-2"
	case StageMain3:
		return "main-3"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StoppedAtStage1 reports a preview that only had opcode list 1 applied.
// Such a result lives in a buffer the pipeline must copy out of.
func (s Stage) StoppedAtStage1() bool {
	return s == StagePreview1
}

// Lifted reports whether the samples went through opcode list 2 or a
// stage-2 build, which replaces the mosaic calibration.
func (s Stage) Lifted() bool {
	return s == StagePreview2 || s == StageMain2 || s == StageMain3
}

// Plan is the staged-transform decision for one located descriptor.
type Plan struct {
	Staged  bool
	Options Options
	Opcodes dng.OpcodeSet
}

// NewPlan decides whether the staged transform runs. It triggers for lossy
// JPEG 8-bit three-sample images, for explicit stage requests, and for the
// if-present requests when the container carries opcode list 2 or 3. Only
// primary-group matches qualify and the VC-5 code never does.
func NewPlan(m classify.Meta, match locate.Match, opts Options) Plan {
	p := Plan{Options: opts}
	if match.Descriptor != nil {
		p.Opcodes = match.Descriptor.Opcodes
	}
	if !match.Primary() || m.Compression == dng.CompressionVC5 {
		return p
	}
	jpegDNG := m.Compression == dng.CompressionLossyJPEG && m.BitsPerSample == 8 &&
		m.Samples == 3 && m.Unpacker == classify.UnpackerLossyDNG
	ifPresent := (p.Opcodes.Has(dng.OpcodeList2) || p.Opcodes.Has(dng.OpcodeList3)) &&
		(opts.Stage2IfPresent || opts.Stage3IfPresent)
	p.Staged = jpegDNG || opts.Stage2 || opts.Stage3 || ifPresent
	return p
}

func (p Plan) wantStage2() bool {
	return p.Options.Stage2 || (p.Options.Stage2IfPresent && p.Opcodes.Has(dng.OpcodeList2))
}

func (p Plan) wantStage3() bool {
	return p.Options.Stage3 || (p.Options.Stage3IfPresent && p.Opcodes.Has(dng.OpcodeList3))
}

// Result is the staged image and how it was produced.
type Result struct {
	Image    *raster.Image
	Stage    Stage
	Strategy string
}

// StepError is a backend failure tagged with the step that raised it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func step(name string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: name, Err: err}
}

// Drive runs the plan against the located descriptor. Every image in the
// result is owned by neg.
func Drive(neg backend.Negative, codecs *backend.Registry, r io.ReadSeeker, m locate.Match, plan Plan, d *diag.Set) (*Result, error) {
	desc := m.Descriptor
	if desc == nil {
		return nil, step("drive", locate.ErrNotFound)
	}
	if !plan.Staged {
		return plain(neg, codecs, r, desc)
	}
	if desc.IsPreview() {
		return preview(neg, r, desc, plan, d)
	}
	return mainImage(neg, r, desc, plan, d)
}

func preview(neg backend.Negative, r io.ReadSeeker, desc *dng.Descriptor, plan Plan, d *diag.Set) (*Result, error) {
	if err := neg.ReadStage1(r, desc); err != nil {
		return nil, step("read-stage1", err)
	}
	img := neg.Stage1()
	if img == nil {
		return nil, step("read-stage1", errNoStage1)
	}
	if err := neg.ApplyOpcodeList(dng.OpcodeList1, img); err != nil {
		return nil, step("opcode-list1", err)
	}
	res := &Result{Image: img, Stage: StagePreview1, Strategy: "staged"}
	if plan.wantStage2() {
		if err := neg.ApplyOpcodeList(dng.OpcodeList2, img); err != nil {
			return nil, step("opcode-list2", err)
		}
		d.Add(diag.Stage2Applied)
		res.Stage = StagePreview2
	}
	return res, nil
}

func mainImage(neg backend.Negative, r io.ReadSeeker, desc *dng.Descriptor, plan Plan, d *diag.Set) (*Result, error) {
	if err := neg.ReadStage1(r, desc); err != nil {
		return nil, step("read-stage1", err)
	}
	img, err := neg.BuildStage2()
	if err != nil {
		return nil, step("build-stage2", err)
	}
	d.Add(diag.Stage2Applied)
	res := &Result{Image: img, Stage: StageMain2, Strategy: "staged"}
	if plan.wantStage3() {
		img, err = neg.BuildStage3()
		if err != nil {
			return nil, step("build-stage3", err)
		}
		d.Add(diag.Stage3Applied)
		res.Image, res.Stage = img, StageMain3
	}
	return res, nil
}

func plain(neg backend.Negative, codecs *backend.Registry, r io.ReadSeeker, desc *dng.Descriptor) (*Result, error) {
	s := backend.SelectStrategy(desc.Compression, neg, codecs)
	img, err := s.Decode(desc, r)
	if err != nil {
		return nil, step(s.Name(), err)
	}
	return &Result{Image: img, Stage: StagePlain, Strategy: s.Name()}, nil
}
