// Package pipeline runs one staged DNG extraction: classify, parse, locate,
// drive the stages, reconcile geometry and publish the pixel layout.
//
// Every backend failure is caught at this boundary and reported as an error
// that matches ErrBackendFault. No layout is returned on any error path, and
// the backend context of a failed request is closed before returning.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/samcharles93/dngstage/internal/backend"
	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/diag"
	"github.com/samcharles93/dngstage/internal/locate"
	"github.com/samcharles93/dngstage/internal/logger"
	"github.com/samcharles93/dngstage/internal/materialize"
	"github.com/samcharles93/dngstage/internal/reconcile"
	"github.com/samcharles93/dngstage/internal/stage"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// Session carries the backends and the diagnostics of a run. Diagnostics
// accumulate across every request made through the session.
type Session struct {
	Host   backend.Host
	Codecs *backend.Registry
	Caps   classify.Capabilities
	Log    logger.Logger
	Diag   *diag.Set
}

// NewSession derives the capabilities from the attached backends. host may
// be nil, in which case every file takes the native path.
func NewSession(host backend.Host, codecs *backend.Registry, log logger.Logger) *Session {
	if log == nil {
		log = logger.Discard()
	}
	return &Session{
		Host:   host,
		Codecs: codecs,
		Caps: classify.Capabilities{
			Backend:       host != nil,
			ExtendedCodec: host != nil && host.Extended(),
			AltCodec:      codecs.Has(dng.CompressionVC5),
		},
		Log:  log,
		Diag: &diag.Set{},
	}
}

// Result is a published extraction.
type Result struct {
	ID         string
	Layout     *materialize.Layout
	Geometry   reconcile.Geometry
	Color      reconcile.Color
	Stage      stage.Stage
	Strategy   string
	Descriptor *dng.Descriptor
	Group      dng.Group

	// SkippedOpcodes counts opcodes the backend parsed but did not run.
	SkippedOpcodes int
}

// Close releases the layout reference held by the result.
func (r *Result) Close() error {
	if r == nil || r.Layout == nil {
		return nil
	}
	return r.Layout.Close()
}

func (s *Session) log() logger.Logger {
	if s.Log == nil {
		return logger.Discard()
	}
	return s.Log
}

// Classify runs the eligibility rules for req. r is only read by the
// lossy-DNG trial parse and may be nil.
func (s *Session) Classify(r io.ReadSeeker, req Request) classify.Verdict {
	c := classify.Classifier{Caps: s.Caps}
	if s.Host != nil && r != nil {
		c.Prober = &hostProber{host: s.Host, r: r, req: req}
	}
	v := c.Classify(req.Meta, req.Options.Classify, s.Diag)
	s.log().Debug("classified", "decision", v.Decision, "rule", v.Rule,
		"compression", req.Meta.Compression, "bps", req.Meta.BitsPerSample)
	return v
}

// Extract classifies req and decodes it when the staged path is selected.
// Files that are not eligible return ErrNotEligible without touching the
// container or the backend beyond the classifier's own trial parse.
func (s *Session) Extract(ctx context.Context, r io.ReadSeeker, req Request) (*Result, classify.Verdict, error) {
	v := s.Classify(r, req)
	if v.Decision != classify.Staged {
		return nil, v, fmt.Errorf("%w: %s (%s)", ErrNotEligible, v.Decision, v.Rule)
	}
	res, err := s.Decode(ctx, r, req)
	return res, v, err
}

// Decode runs the staged decode for req without consulting the classifier.
func (s *Session) Decode(ctx context.Context, r io.ReadSeeker, req Request) (*Result, error) {
	id := uuid.NewString()
	log := s.log().With("request", id)

	if s.Host == nil {
		return nil, ErrNoBackend
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		idx *dng.Index
		neg backend.Negative
	)
	err := guard("parse", func() error {
		var perr error
		idx, neg, perr = s.Host.Parse(r)
		return perr
	})
	if err != nil {
		if errors.Is(err, ErrBackendFault) {
			s.Diag.Add(diag.NotProcessed)
			log.Warn("parse fault", "err", err)
			return nil, err
		}
		s.Diag.Add(diag.NotParsed)
		log.Warn("container rejected", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrContainerInvalid, err)
	}

	owned := true
	defer func() {
		if !owned || neg == nil {
			return
		}
		if cerr := neg.Close(); cerr != nil {
			log.Warn("closing backend context", "err", cerr)
		}
	}()

	if !idx.IsValid() {
		s.Diag.Add(diag.NotParsed)
		log.Warn("container rejected", "err", "no valid main image")
		return nil, ErrContainerInvalid
	}

	res, err := s.run(ctx, r, req, idx, neg, log)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.Diag.Add(diag.NotProcessed)
		}
		log.Warn("staged decode failed", "err", err, "step", StepOf(err))
		return nil, err
	}
	res.ID = id
	owned = res.Layout.Ownership != materialize.Aliased

	log.Info("published",
		"stage", res.Stage,
		"strategy", res.Strategy,
		"ownership", res.Layout.Ownership,
		"kind", res.Layout.Kind,
		"type", res.Layout.Type,
		"width", res.Layout.Width,
		"height", res.Layout.Height,
		"planes", res.Layout.Planes,
		"skipped_opcodes", res.SkippedOpcodes,
		"diag", s.Diag.String(),
	)
	return res, nil
}

func (s *Session) run(ctx context.Context, r io.ReadSeeker, req Request, idx *dng.Index, neg backend.Negative, log logger.Logger) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := locate.Locate(idx, r, req.Offset, req.Geometry.RawWidth, req.Geometry.RawHeight)
	if err != nil {
		if errors.Is(err, locate.ErrNotFound) {
			return nil, fmt.Errorf("%w: offset %d, %dx%d", ErrNotLocated, req.Offset, req.Geometry.RawWidth, req.Geometry.RawHeight)
		}
		return nil, fault("locate", err)
	}
	plan := stage.NewPlan(req.Meta, m, req.Options.Stage)
	log.Debug("located", "group", m.Group, "index", m.Index, "staged", plan.Staged, "preview", m.Descriptor.IsPreview())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sr *stage.Result
	err = guard("drive", func() error {
		var derr error
		sr, derr = stage.Drive(neg, s.Codecs, r, m, plan, s.Diag)
		return derr
	})
	if err != nil {
		var se *stage.StepError
		if errors.As(err, &se) {
			return nil, fault(se.Step, se.Err)
		}
		return nil, err
	}
	log.Debug("staged", "stage", sr.Stage, "strategy", sr.Strategy)

	geom, err := reconcile.Bounds(req.Geometry, uint32(sr.Image.Width), uint32(sr.Image.Height), req.Options.AllowSizeChange)
	if err != nil {
		return nil, err
	}
	color := req.Color
	curve := req.Options.Curve
	if sr.Stage.Lifted() {
		color = reconcile.AfterLift(color, sr.Image.Planes)
		// Lifted 16-bit samples are already linear; 8-bit samples still
		// go through the curve.
		if sr.Image.Type != dng.PixelByte {
			curve = nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var layout *materialize.Layout
	err = guard("materialize", func() error {
		var merr error
		layout, merr = materialize.Materialize(sr.Image, sr.Stage, curve, req.Options.Materialize, neg)
		return merr
	})
	if err != nil {
		if errors.Is(err, ErrBackendFault) {
			return nil, err
		}
		return nil, fault("materialize", err)
	}

	res := &Result{
		Layout:     layout,
		Geometry:   geom,
		Color:      color,
		Stage:      sr.Stage,
		Strategy:   sr.Strategy,
		Descriptor: m.Descriptor,
		Group:      m.Group,
	}
	if sk, ok := neg.(backend.OpcodeSkipper); ok {
		res.SkippedOpcodes = sk.SkippedOpcodes()
	}
	return res, nil
}
