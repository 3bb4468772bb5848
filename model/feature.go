package model

import (
	"math"
	"sync/atomic"
)

// Ftr is a single feature's parameters: the current weight x, the
// gradient accumulator g (written concurrently by every lattice a
// worker processes it in), the previous iteration's gradient, the
// RPROP step size and last applied delta, and an occurrence frequency
// counter (hypothesis or reference side, per Model.RefFreq). Tag is implicit in the top 8 bits of the
// feature's key and is not stored redundantly.
type Ftr struct {
	x     atomic.Uint64 // float64 bits; read-only during a gradient pass
	g     atomic.Uint64 // float64 bits; atomically accumulated during a pass
	gPrev atomic.Uint64 // float64 bits
	stp   atomic.Uint64 // float64 bits
	delta atomic.Uint64 // float64 bits
	frq   atomic.Int64
}

func loadF64(a *atomic.Uint64) float64  { return math.Float64frombits(a.Load()) }
func storeF64(a *atomic.Uint64, v float64) { a.Store(math.Float64bits(v)) }

// addF64 atomically adds delta to *a via a compare-and-swap loop over
// the IEEE-754 bit pattern — Go has no native atomic float add, and
// DESIGN NOTES §9 prescribes exactly this technique. atomic.Uint64 is
// always naturally aligned on every platform Go supports, resolving
// the spec's cross-platform-alignment open question.
func addF64(a *atomic.Uint64, delta float64) {
	for {
		old := a.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.CompareAndSwap(old, next) {
			return
		}
	}
}

// X returns the feature's current weight.
func (f *Ftr) X() float64 { return loadF64(&f.x) }

// SetX sets the feature's current weight. Only ever called from the
// single-threaded RPROP sweep, never during a gradient pass.
func (f *Ftr) SetX(v float64) { storeF64(&f.x, v) }

// AddG atomically adds delta to the feature's gradient accumulator;
// this is the hot-path operation called once per occurrence per
// lattice during the forward-backward pass.
func (f *Ftr) AddG(delta float64) { addF64(&f.g, delta) }

func (f *Ftr) G() float64      { return loadF64(&f.g) }
func (f *Ftr) SetG(v float64)  { storeF64(&f.g, v) }
func (f *Ftr) GPrev() float64  { return loadF64(&f.gPrev) }
func (f *Ftr) SetGPrev(v float64) { storeF64(&f.gPrev, v) }
func (f *Ftr) Stp() float64    { return loadF64(&f.stp) }
func (f *Ftr) SetStp(v float64) { storeF64(&f.stp, v) }
func (f *Ftr) Delta() float64  { return loadF64(&f.delta) }
func (f *Ftr) SetDelta(v float64) { storeF64(&f.delta, v) }

// IncFrq atomically increments the occurrence frequency counter.
func (f *Ftr) IncFrq() { f.frq.Add(1) }

func (f *Ftr) Frq() int64     { return f.frq.Load() }
func (f *Ftr) ResetFrq()      { f.frq.Store(0) }
