package pipeline

import (
	"errors"
	"io"

	"github.com/samcharles93/dngstage/internal/backend"
	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/locate"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// hostProber is the lossy-DNG trial parse: it opens the container with the
// host and looks for the requested sub-image without reading any samples.
type hostProber struct {
	host backend.Host
	r    io.ReadSeeker
	req  Request
}

func (p *hostProber) ProbeLossy(classify.Meta) (probe classify.Probe, err error) {
	err = dng.WithCursor(p.r, func() error {
		idx, neg, perr := p.host.Parse(p.r)
		if perr != nil {
			return perr
		}
		if neg != nil {
			defer neg.Close()
		}
		if !idx.IsValid() {
			return ErrContainerInvalid
		}
		g := p.req.Geometry
		m, lerr := locate.Locate(idx, p.r, p.req.Offset, g.RawWidth, g.RawHeight)
		if errors.Is(lerr, locate.ErrNotFound) {
			return nil
		}
		if lerr != nil {
			return lerr
		}
		if m.Primary() {
			probe.Found = true
			probe.Main = m.Index == idx.MainIndex
		}
		return nil
	})
	return probe, err
}
