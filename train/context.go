// Package train wires the gradient engine and the RPROP updater into
// the iteration loop of spec.md §5: one gradient pass over the whole
// training set to populate every feature's g, then one RPROP sweep to
// turn g into an updated x, repeated for a configured number of
// iterations, with an on-the-fly model dump available after every
// iteration. Ground: teatak-seg's crf.Trainer (an explicit struct
// threading the model, the training set, and the iteration counter
// through a fixed train loop), generalized to drive the forward-
// backward engine instead of plain SGD over a linear-chain model.
package train

import (
	"fmt"
	"strings"

	"github.com/teatak/wfstrain/dataset"
	"github.com/teatak/wfstrain/gradient"
	"github.com/teatak/wfstrain/model"
	"github.com/teatak/wfstrain/pattern"
	"github.com/teatak/wfstrain/rprop"
)

// Context is the explicit training context DESIGN NOTES §9 asks for:
// everything an iteration needs, gathered in one place instead of
// passed piecemeal.
type Context struct {
	Model    *model.Model
	Patterns *pattern.Set
	Engine   *gradient.Engine
	RPROP    *rprop.Config

	// Iterations is the number of gradient+RPROP passes Train runs.
	Iterations int

	// SaveOTF is a printf-style path template (one %d verb standing in
	// for the 1-based iteration number) used to save the model after
	// every iteration; empty disables on-the-fly saving.
	SaveOTF string
}

// NewContext builds a Context from a model and pattern set, wiring a
// gradient.Engine that shares both.
func NewContext(m *model.Model, patterns *pattern.Set, nthreads int, cacheLevel gradient.CacheLevel) *Context {
	return &Context{
		Model:    m,
		Patterns: patterns,
		Engine:   &gradient.Engine{Model: m, Patterns: patterns, NThreads: nthreads, CacheLevel: cacheLevel},
		RPROP:    rprop.NewConfig(),
	}
}

// IterationResult reports one iteration's diagnostics.
type IterationResult struct {
	Iteration int64
	NegLogLik float64
	Objective float64
}

// TrainOneIteration runs one gradient pass over data's lattices
// followed by one RPROP sweep, then advances the model's iteration
// counter by one. The negative log-likelihood returned is the sum of
// multiplier*Z over every lattice in the pass (spec.md §4.6); for a
// matched hyp/ref training pair this is Z_hyp - Z_ref, which is zero
// when the hypothesis lattice holds no paths beyond the reference's.
func (c *Context) TrainOneIteration(data *dataset.Training) (IterationResult, error) {
	nll, err := c.Engine.Run(data.Lattices())
	if err != nil {
		return IterationResult{}, err
	}
	obj := rprop.Sweep(c.Model, c.RPROP)
	iter := c.Model.AdvanceIteration()
	return IterationResult{Iteration: iter, NegLogLik: nll, Objective: obj}, nil
}

// Train runs Iterations passes over data, invoking onIteration (if
// non-nil) after each one and saving the model on the fly (if
// SaveOTF is set) after each one. It stops and returns the first
// error the gradient pass, the callback, or the save produces.
func (c *Context) Train(data *dataset.Training, onIteration func(IterationResult) error) error {
	for i := 0; i < c.Iterations; i++ {
		res, err := c.TrainOneIteration(data)
		if err != nil {
			return err
		}
		if onIteration != nil {
			if err := onIteration(res); err != nil {
				return err
			}
		}
		if c.SaveOTF != "" {
			path := otfPath(c.SaveOTF, res.Iteration)
			if err := c.Model.Save(path); err != nil {
				return fmt.Errorf("train: saving %s: %w", path, err)
			}
		}
	}
	return nil
}

// otfPath expands SaveOTF's single %d verb with iter, exactly as
// fmt.Sprintf would, but guards against a template with no verb at
// all by falling back to appending the iteration number.
func otfPath(tmpl string, iter int64) string {
	if strings.Contains(tmpl, "%") {
		return fmt.Sprintf(tmpl, iter)
	}
	return fmt.Sprintf("%s.%d", tmpl, iter)
}
