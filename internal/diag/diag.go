// Package diag holds the additive warning set carried through a decode session.
package diag

import (
	"strings"
	"sync/atomic"
)

// Flag is a single warning bit.
type Flag uint32

const (
	// NotParsed marks a container that failed to parse or validate.
	NotParsed Flag = 1 << iota
	// NotProcessed marks a staged decode that produced no buffer.
	NotProcessed
	// Stage2Applied marks output that went through opcode list 2 or a stage-2 build.
	Stage2Applied
	// Stage3Applied marks output that went through a stage-3 build.
	Stage3Applied
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{NotParsed, "not-parsed"},
	{NotProcessed, "not-processed"},
	{Stage2Applied, "stage2-applied"},
	{Stage3Applied, "stage3-applied"},
}

func (f Flag) String() string {
	for _, n := range flagNames {
		if n.f == f {
			return n.name
		}
	}
	return "unknown"
}

// Set accumulates flags for a session. Flags are only ever added.
// The zero value is ready to use.
type Set struct {
	bits atomic.Uint32
}

// Add sets f. A nil Set ignores the call.
func (s *Set) Add(f Flag) {
	if s == nil {
		return
	}
	s.bits.Or(uint32(f))
}

// Has reports whether f has been recorded.
func (s *Set) Has(f Flag) bool {
	if s == nil {
		return false
	}
	return s.bits.Load()&uint32(f) == uint32(f)
}

// Bits returns the raw bitset.
func (s *Set) Bits() uint32 {
	if s == nil {
		return 0
	}
	return s.bits.Load()
}

// Flags returns the recorded flags in declaration order.
func (s *Set) Flags() []Flag {
	bits := s.Bits()
	var out []Flag
	for _, n := range flagNames {
		if bits&uint32(n.f) != 0 {
			out = append(out, n.f)
		}
	}
	return out
}

// Names returns the recorded flag names.
func (s *Set) Names() []string {
	flags := s.Flags()
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = f.String()
	}
	return out
}

func (s *Set) String() string {
	return strings.Join(s.Names(), ",")
}
