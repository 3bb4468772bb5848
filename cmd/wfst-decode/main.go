// Command wfst-decode loads a trained model and runs Viterbi decoding
// over a test lattice file, per spec.md §6's --test-spc/--test-out/
// --test-fst switches. Ground: teatak-seg's cmd/seg (load a model,
// decode a file of inputs, write one result per line).
package main

import (
	"fmt"
	"os"

	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"

	"github.com/teatak/wfstrain/cliutil"
	"github.com/teatak/wfstrain/dataset"
	"github.com/teatak/wfstrain/decode"
	"github.com/teatak/wfstrain/model"
	"github.com/teatak/wfstrain/pattern"
)

type flags struct {
	verbose bool

	mdlLoad string

	testSpc string
	testOut string
	testFst string

	patterns []string

	strLoad string
	strAll  bool
}

func main() {
	f := &flags{}
	cmd := &cobra.Command{
		Use:          "wfst-decode",
		Short:        "Viterbi-decode a lattice file against a trained WFST model",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "verbose logging")
	fl.StringVar(&f.mdlLoad, "mdl-load", "", "trained model weight file")
	fl.StringVar(&f.testSpc, "test-spc", "", "test lattice file to decode")
	fl.StringVar(&f.testOut, "test-out", "", "path to write decoded output (stdout if empty)")
	fl.StringVar(&f.testFst, "test-fst", "", "path to dump each decoded lattice's resolved ψ weights as a WFST file")
	fl.StringArrayVar(&f.patterns, "pattern", nil, "T:STR feature template (repeatable; must match training)")
	fl.StringVar(&f.strLoad, "str-load", "", "preload the shared string pool from this file")
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

	if f.mdlLoad == "" {
		return fmt.Errorf("missing required input: --mdl-load is required")
	}
	if f.testSpc == "" {
		return fmt.Errorf("missing required input: --test-spc is required")
	}
	if len(f.patterns) == 0 {
		return fmt.Errorf("missing required input: at least one --pattern is required")
	}

	m := model.New()
	m.Pool.SetStoreAll(f.strAll)
	if f.strLoad != "" {
		if err := m.Pool.Load(f.strLoad); err != nil {
			return fmt.Errorf("loading string pool %s: %w", f.strLoad, err)
		}
	}
	if err := m.Load(f.mdlLoad); err != nil {
		return fmt.Errorf("loading model %s: %w", f.mdlLoad, err)
	}

	var patterns pattern.Set
	for _, spec := range f.patterns {
		if err := patterns.Add(m.Pool, spec); err != nil {
			return fmt.Errorf("format error: %w", err)
		}
	}

	ev, err := dataset.LoadEval(f.testSpc, m)
	if err != nil {
		return fmt.Errorf("loading test data %s: %w", f.testSpc, err)
	}

	out, closeOut, err := cliutil.OpenOutput(f.testOut)
	if err != nil {
		return err
	}
	defer closeOut()

	var fstOut *os.File
	if f.testFst != "" {
		fstOut, err = os.Create(f.testFst)
		if err != nil {
			return fmt.Errorf("opening lattice dump %s: %w", f.testFst, err)
		}
		defer fstOut.Close()
	}

	for _, lat := range ev.Lattices {
		path, score, err := decode.Decode(lat, m, &patterns)
		if err != nil {
			return fmt.Errorf("decoding test sample: %w", err)
		}
		steps := decode.PathLabels(lat, m, path)

		if _, err := fmt.Fprintf(out, "score=%g", score); err != nil {
			return err
		}
		for _, s := range steps {
			if _, err := fmt.Fprintf(out, " %s|%s", s.In, s.Out); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}

		if fstOut != nil {
			if err := decode.DumpLattice(fstOut, lat, m); err != nil {
				return fmt.Errorf("writing lattice dump: %w", err)
			}
		}
	}
	log.Info("decoded", "samples", len(ev.Lattices))
	return nil
}
