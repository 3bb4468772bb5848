// Command wfst-train trains a discriminative WFST model by
// forward-backward gradient descent with an RPROP updater, per
// spec.md §6's CLI surface. Ground: teatak-seg's cmd/train_crf (parse
// flags, load resources, call into a library package, report a
// single-line diagnostic and exit non-zero on failure), rebuilt on
// cobra/pflag because this surface needs repeatable tag:value flags.
package main

import (
	"fmt"
	"os"

	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"

	"github.com/teatak/wfstrain/cliutil"
	"github.com/teatak/wfstrain/dataset"
	"github.com/teatak/wfstrain/decode"
	"github.com/teatak/wfstrain/gradient"
	"github.com/teatak/wfstrain/model"
	"github.com/teatak/wfstrain/pattern"
	"github.com/teatak/wfstrain/rprop"
	"github.com/teatak/wfstrain/train"
)

type flags struct {
	verbose  bool
	nthreads int

	mdlLoad    string
	mdlSave    string
	mdlSaveOTF string
	mdlCompact bool
	mdlStats   bool
	ftrDump    string

	baseline bool

	trainSpc string
	trainRef string
	develSpc string
	develOut string

	patterns  []string
	tagStart  []string
	tagRemove []string
	tagRho1   []string
	tagRho2   []string
	tagRho3   []string
	refFreq   bool
	minFreq   int64

	cacheLvl   int
	iterations int
	stpInc     float64
	stpDec     float64
	stpMin     float64
	stpMax     float64

	strLoad string
	strSave string
	strAll  bool
}

func main() {
	f := &flags{}
	cmd := &cobra.Command{
		Use:          "wfst-train",
		Short:        "Train a discriminative WFST model",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "verbose logging")
	fl.IntVar(&f.nthreads, "nthreads", 1, "worker goroutines for the gradient pass")

	fl.StringVar(&f.mdlLoad, "mdl-load", "", "load an existing model weight file")
	fl.StringVar(&f.mdlSave, "mdl-save", "", "save the final model weight file")
	fl.StringVar(&f.mdlSaveOTF, "mdl-save-otf", "", "printf-style (%d = iteration) path template for on-the-fly saves")
	fl.BoolVar(&f.mdlCompact, "mdl-compact", false, "shrink zero-weight features out of the model before saving")
	fl.BoolVar(&f.mdlStats, "mdl-stats", false, "log per-tag feature counts and mean weights after training (info level, shown with -v)")
	fl.StringVar(&f.ftrDump, "ftr-dump", "", "append every newly inserted feature key to this file")

	fl.BoolVar(&f.baseline, "baseline", false, "log the highest-out-degree majority-path baseline accuracy before training (info level, shown with -v)")

	fl.StringVar(&f.trainSpc, "train-spc", "", "training hypothesis lattice file")
	fl.StringVar(&f.trainRef, "train-ref", "", "training reference lattice file")
	fl.StringVar(&f.develSpc, "devel-spc", "", "held-out lattice file to decode after training")
	fl.StringVar(&f.develOut, "devel-out", "", "path to write held-out decode output")

	fl.StringArrayVar(&f.patterns, "pattern", nil, "T:STR feature template (repeatable)")
	fl.StringArrayVar(&f.tagStart, "tag-start", nil, "T:N first iteration a feature under tag T may be inserted (repeatable)")
	fl.StringArrayVar(&f.tagRemove, "tag-remove", nil, "T:N iteration at which zero-weight features under tag T are pruned (repeatable)")
	fl.StringArrayVar(&f.tagRho1, "tag-rho1", nil, "T:F per-tag L1 coefficient (repeatable)")
	fl.StringArrayVar(&f.tagRho2, "tag-rho2", nil, "T:F per-tag L2 coefficient (repeatable)")
	fl.StringArrayVar(&f.tagRho3, "tag-rho3", nil, "T:F per-tag frequency-weighted L1 coefficient (repeatable)")
	fl.BoolVar(&f.refFreq, "ref-freq", false, "count reference occurrences toward frq instead of hypothesis occurrences")
	fl.Int64Var(&f.minFreq, "min-freq", 1, "minimum frq a feature must reach to survive an RPROP sweep")

	fl.IntVar(&f.cacheLvl, "cache-lvl", int(gradient.CacheAll), "0-4: how much per-lattice state survives between iterations")
	fl.IntVar(&f.iterations, "iterations", 10, "number of gradient+RPROP iterations")
	fl.Float64Var(&f.stpInc, "rbp-stpinc", 1.2, "RPROP step growth factor")
	fl.Float64Var(&f.stpDec, "rbp-stpdec", 0.5, "RPROP step shrink factor")
	fl.Float64Var(&f.stpMin, "rbp-stpmin", 1e-8, "RPROP minimum step size")
	fl.Float64Var(&f.stpMax, "rbp-stpmax", 50.0, "RPROP maximum step size")

	fl.StringVar(&f.strLoad, "str-load", "", "preload the shared string pool from this file")
	fl.StringVar(&f.strSave, "str-save", "", "save the shared string pool to this file")
	fl.BoolVar(&f.strAll, "str-all", false, "retain every interned string, not just mandatory ones")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(f *flags) error {
	if f.verbose {
		log.Root().SetHandler(log.LvlFilterHandler(log.LvlInfo, log.StreamHandler(os.Stderr, log.TerminalFormat())))
	} else {
		log.Root().SetHandler(log.LvlFilterHandler(log.LvlWarn, log.StreamHandler(os.Stderr, log.TerminalFormat())))
	}

	if f.trainSpc == "" || f.trainRef == "" {
		return fmt.Errorf("missing required input: --train-spc and --train-ref are both required")
	}
	if len(f.patterns) == 0 {
		return fmt.Errorf("missing required input: at least one --pattern is required")
	}

	m := model.New()
	m.MinFreq = f.minFreq
	m.RefFreq = f.refFreq
	m.Pool.SetStoreAll(f.strAll)

	if f.strLoad != "" {
		if err := m.Pool.Load(f.strLoad); err != nil {
			return fmt.Errorf("loading string pool %s: %w", f.strLoad, err)
		}
	}
	if f.mdlLoad != "" {
		if err := m.Load(f.mdlLoad); err != nil {
			return fmt.Errorf("loading model %s: %w", f.mdlLoad, err)
		}
	}
	if f.ftrDump != "" {
		df, err := os.Create(f.ftrDump)
		if err != nil {
			return fmt.Errorf("opening feature dump %s: %w", f.ftrDump, err)
		}
		defer df.Close()
		m.EnableDump(df)
	}

	if err := applyTagWindows(m, f.tagStart, f.tagRemove); err != nil {
		return err
	}

	var patterns pattern.Set
	for _, spec := range f.patterns {
		if err := patterns.Add(m.Pool, spec); err != nil {
			return fmt.Errorf("format error: %w", err)
		}
	}

	cfg := rprop.NewConfig()
	cfg.StpInc, cfg.StpDec, cfg.StpMin, cfg.StpMax = f.stpInc, f.stpDec, f.stpMin, f.stpMax
	if err := applyRegTables(cfg, f.tagRho1, f.tagRho2, f.tagRho3); err != nil {
		return err
	}

	data, err := dataset.LoadTraining(f.trainSpc, f.trainRef, m)
	if err != nil {
		return fmt.Errorf("loading training data: %w", err)
	}

	cacheLvl := gradient.CacheLevel(f.cacheLvl)
	ctx := train.NewContext(m, &patterns, f.nthreads, cacheLvl)
	ctx.RPROP = cfg
	ctx.Iterations = f.iterations
	ctx.SaveOTF = f.mdlSaveOTF

	if f.baseline {
		acc := train.MajorityBaseline(data)
		log.Info("majority baseline", "accuracy", acc)
	}

	err = ctx.Train(data, func(res train.IterationResult) error {
		log.Info("iteration", "n", res.Iteration, "negLogLik", res.NegLogLik, "objective", res.Objective)
		return nil
	})
	if err != nil {
		return err
	}

	if f.mdlStats {
		for _, stat := range m.TagStats() {
			log.Info("tag stats", "tag", stat.Tag, "count", stat.Count, "meanWeight", stat.MeanWeight)
		}
	}

	if f.develSpc != "" {
		if err := decodeEval(f.develSpc, f.develOut, m, &patterns); err != nil {
			return err
		}
	}

	if f.mdlCompact {
		m.Shrink()
	}
	if f.mdlSave != "" {
		if err := m.Save(f.mdlSave); err != nil {
			return fmt.Errorf("saving model %s: %w", f.mdlSave, err)
		}
	}
	if f.strSave != "" {
		if err := m.Pool.Save(f.strSave); err != nil {
			return fmt.Errorf("saving string pool %s: %w", f.strSave, err)
		}
	}
	return nil
}

func applyTagWindows(m *model.Model, starts, removes []string) error {
	for _, spec := range starts {
		tag, v, err := cliutil.ParseTagInt(spec)
		if err != nil {
			return err
		}
		m.SetTagStart(tag, v)
	}
	for _, spec := range removes {
		tag, v, err := cliutil.ParseTagInt(spec)
		if err != nil {
			return err
		}
		m.SetTagRemove(tag, v)
	}
	return nil
}

// decodeEval decodes every lattice in specPath and writes one decoded
// line per sample to outPath, matching --devel-spc/--devel-out.
func decodeEval(specPath, outPath string, m *model.Model, patterns *pattern.Set) error {
	ev, err := dataset.LoadEval(specPath, m)
	if err != nil {
		return fmt.Errorf("loading devel data %s: %w", specPath, err)
	}
	w, closeW, err := cliutil.OpenOutput(outPath)
	if err != nil {
		return err
	}
	defer closeW()
	for _, lat := range ev.Lattices {
		path, score, err := decode.Decode(lat, m, patterns)
		if err != nil {
			return fmt.Errorf("decoding devel sample: %w", err)
		}
		steps := decode.PathLabels(lat, m, path)
		if _, err := fmt.Fprintf(w, "score=%g", score); err != nil {
			return err
		}
		for _, s := range steps {
			if _, err := fmt.Fprintf(w, " %s|%s", s.In, s.Out); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func applyRegTables(cfg *rprop.Config, rho1, rho2, rho3 []string) error {
	for _, spec := range rho1 {
		tag, v, err := cliutil.ParseTagFloat(spec)
		if err != nil {
			return err
		}
		cfg.Rho1.Set(tag, v)
	}
	for _, spec := range rho2 {
		tag, v, err := cliutil.ParseTagFloat(spec)
		if err != nil {
			return err
		}
		cfg.Rho2.Set(tag, v)
	}
	for _, spec := range rho3 {
		tag, v, err := cliutil.ParseTagFloat(spec)
		if err != nil {
			return err
		}
		cfg.Rho3.Set(tag, v)
	}
	return nil
}
