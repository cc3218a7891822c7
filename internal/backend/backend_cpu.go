package backend

import (
	"io"

	"github.com/samcharles93/dngstage/internal/backend/cpu"
	"github.com/samcharles93/dngstage/pkg/dng"
)

type cpuHost struct {
	*cpu.Backend
}

func (h cpuHost) Parse(r io.ReadSeeker) (*dng.Index, Negative, error) {
	idx, neg, err := h.Backend.Parse(r)
	if err != nil {
		return nil, nil, err
	}
	return idx, neg, nil
}

func newCPU() (Host, error) {
	return cpuHost{Backend: cpu.New()}, nil
}
