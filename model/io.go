package model

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Load reads a weight file: one feature per line, a 16-hex-digit key,
// a space, and a decimal weight (spec.md §6). Per spec.md §9's
// leniency decision, loading bypasses the activation window entirely
// — a feature present in the file is installed unconditionally,
// whatever tag it carries and whatever the model's current iteration
// is. A key repeated in the file has its last occurrence win.
func (m *Model) Load(path string) error {
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
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("model: %s:%d: format error (want key and weight, got %d fields)", path, lineNo, len(fields))
		}
		key, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return fmt.Errorf("model: %s:%d: bad key %q: %w", path, lineNo, fields[0], err)
		}
		x, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("model: %s:%d: bad weight %q: %w", path, lineNo, fields[1], err)
		}
		ftr := &Ftr{}
		ftr.SetX(x)
		if actual, inserted := m.Features.Insert(key, ftr); !inserted {
			actual.SetX(x)
		}
	}
	return scanner.Err()
}

// Save writes every feature currently in the table in the same format
// Load reads. %g produces the shortest decimal string that parses
// back to the exact same float64, so Save followed by Load round
// trips every weight bit for bit.
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var writeErr error
	m.Features.Range(func(hash uint64, ftr *Ftr) bool {
		if _, writeErr = fmt.Fprintf(w, "%016x %g\n", hash, ftr.X()); writeErr != nil {
			return false
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}
	return w.Flush()
}
