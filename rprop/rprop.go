// Package rprop implements the RPROP-based weight updater of
// spec.md §4.7: a single-threaded, one-pass sweep over every feature
// in the model applying resilient back-propagation with per-tag
// L1/L2/frequency-weighted regularization and orthant projection.
// Ground: teatak-seg's optimizer package (a single-pass sweep over a
// flat weight table applying per-feature updates and pruning), here
// generalized from plain SGD to RPROP's sign-based step adaptation.
package rprop

import "github.com/teatak/wfstrain/model"

// regTable holds a per-tag regularization coefficient, falling back
// to tag 0's value for any tag that was never explicitly configured
// (spec.md §4.7.3: "ρ1, ρ2, ρ3 be tag-specific, falling back to
// tag 0").
type regTable struct {
	values [128]float64
	set    [128]bool
}

// Set configures tag's coefficient explicitly.
func (r *regTable) Set(tag int, v float64) {
	r.values[tag] = v
	r.set[tag] = true
}

// Get returns tag's coefficient, or tag 0's if tag was never set.
func (r *regTable) Get(tag int) float64 {
	if r.set[tag] {
		return r.values[tag]
	}
	return r.values[0]
}

// Config holds the RPROP step-size bounds and the three per-tag
// regularization tables.
type Config struct {
	Rho1, Rho2, Rho3 regTable

	StpInc, StpDec, StpMin, StpMax float64
}

// NewConfig returns a Config with spec.md §4.7's default step bounds
// (stpinc=1.2, stpdec=0.5, stpmin=1e-8, stpmax=50.0) and zero
// regularization everywhere.
func NewConfig() *Config {
	return &Config{StpInc: 1.2, StpDec: 0.5, StpMin: 1e-8, StpMax: 50.0}
}

const eps = 1e-10

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Sweep runs one full RPROP pass over m's feature table, implementing
// spec.md §4.7 steps 1-7 for every surviving feature, and returns the
// value of the regularized objective accumulated over features that
// were updated this pass. The caller must guarantee no concurrent
// gradient-pass readers are active (spec.md §5); a gradient pass must
// have already populated every feature's g.
func Sweep(m *model.Model, cfg *Config) float64 {
	iter := m.Iteration()
	var objective float64
	var dead []uint64

	m.Features.Range(func(hash uint64, f *model.Ftr) bool {
		tag := model.TagOf(hash)
		start, remove := m.TagWindow(tag)
		x := f.X()

		switch {
		case x == 0 && iter >= remove:
			dead = append(dead, hash)
			return true
		case f.Frq() < m.MinFreq:
			dead = append(dead, hash)
			return true
		case iter < start:
			return true
		}

		if f.Stp() == 0 {
			f.SetStp(0.1)
		}

		rho1 := cfg.Rho1.Get(tag)
		rho2 := cfg.Rho2.Get(tag)
		rho3 := cfg.Rho3.Get(tag)
		frq := float64(f.Frq())

		g := f.G() + rho2*x
		objective += rho2*x*x/2 + rho1*abs(x) + rho3*frq*abs(x)

		a := rho1 + rho3*frq
		var pg float64
		switch {
		case a == 0:
			pg = g
		case x < -eps:
			pg = g - a
		case x > eps:
			pg = g + a
		case g < -a:
			pg = g + a
		case g > a:
			pg = g - a
		default:
			pg = 0
		}

		s := f.GPrev() * pg
		switch {
		case s < -eps:
			f.SetStp(max(f.Stp()*cfg.StpDec, cfg.StpMin))
		case s > eps:
			f.SetStp(min(f.Stp()*cfg.StpInc, cfg.StpMax))
		}

		if s < 0 {
			f.SetX(x - f.Delta())
			g = 0
		} else {
			var delta float64
			if abs(pg) > eps {
				delta = -sign(pg) * f.Stp()
			}
			if rho1 != 0 && delta*pg >= 0 {
				delta = 0
			}
			f.SetX(x + delta)
			f.SetDelta(delta)
		}

		f.ResetFrq()
		f.SetGPrev(g)
		f.SetG(0)
		return true
	})

	for _, h := range dead {
		m.Features.Remove(h)
	}
	return objective
}
