// Package strpool implements the shared string pool (spec.md §4.2):
// a map from 63-bit hash back to the original string, used for
// diagnostic output and for dumping a trained model's feature space
// in human-readable form. The pool is append-only during training and
// safe to read concurrently with append.
package strpool

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/teatak/wfstrain/cmap"
	"github.com/teatak/wfstrain/hashutil"
)

const missing = "<?>"

// Pool interns byte strings under their 63-bit hash. A string is only
// retained (so Get can return it later) if it was interned as
// mandatory, or if the pool is in "store all" mode — label and
// pattern-item strings are mandatory, diagnostic-only strings are
// not, matching spec.md §4.2.
type Pool struct {
	entries  *cmap.Map[string]
	storeAll bool
}

// New creates an empty pool. storeAll, once true, makes every future
// Intern call retain its string regardless of the mandatory flag;
// it corresponds to the --str-all CLI switch (spec.md §6).
func New(storeAll bool) *Pool {
	return &Pool{entries: cmap.New[string](), storeAll: storeAll}
}

// SetStoreAll toggles store-all mode, corresponding to the --str-all
// CLI switch being decided after the pool already exists (model.New
// always starts a pool in non-store-all mode).
func (p *Pool) SetStoreAll(storeAll bool) { p.storeAll = storeAll }

// Intern hashes b and, if mandatory or the pool is in store-all mode,
// retains a copy of b so Get can later recover it. Returns the hash
// regardless of retention.
func (p *Pool) Intern(b []byte, mandatory bool) uint64 {
	h := hashutil.Hash(b)
	if mandatory || p.storeAll {
		p.entries.Insert(h, string(b))
	}
	return h
}

// InternString is a convenience wrapper around Intern for call sites
// that already hold a string.
func (p *Pool) InternString(s string, mandatory bool) uint64 {
	return p.Intern([]byte(s), mandatory)
}

// Get returns the string stored under h, or the sentinel "<?>" if h
// was never interned as mandatory (or the pool was not in store-all
// mode when it was first seen).
func (p *Pool) Get(h uint64) string {
	if s, ok := p.entries.Find(h); ok {
		return s
	}
	return missing
}

// Len reports the number of retained strings.
func (p *Pool) Len() int {
	return p.entries.Len()
}

// Save writes one record per line: a 16-hex-digit hash, a space, and
// the string, matching spec.md §6's string pool file format. Ground:
// teatak-seg's dictionary.Dictionary.Save line-based text idiom.
func (p *Pool) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var writeErr error
	p.entries.Range(func(hash uint64, s string) bool {
		if _, writeErr = fmt.Fprintf(w, "%016x %s\n", hash, s); writeErr != nil {
			return false
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}
	return w.Flush()
}

// Load reads a string pool file. The leading hex hash token on each
// line is ignored; the hash is recomputed from the string itself so a
// hand-edited pool file cannot desynchronize hash and content. Loaded
// strings are always retained (mandatory), matching the append-only,
// fully-readable-while-appending discipline of §4.2.
func (p *Pool) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 1<<20)
	scanner.Buffer(buf, 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, ' ')
		if idx < 0 {
			return fmt.Errorf("strpool: line %d: format error (missing separator)", lineNo)
		}
		p.InternString(line[idx+1:], true)
	}
	return scanner.Err()
}
