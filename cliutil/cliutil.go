// Package cliutil holds the `tag:value` parsing used by
// cmd/wfst-train's repeatable flags (--tag-start, --tag-remove,
// --tag-rho1/2/3), and OpenOutput, which both cmd/wfst-train and
// cmd/wfst-decode use for their output paths.
package cliutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// OpenOutput opens path for writing, or returns os.Stdout if path is
// empty. The returned close func is always safe to defer, including
// the os.Stdout case (where it is a no-op).
func OpenOutput(path string) (f *os.File, close func(), err error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	out, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening output %s: %w", path, err)
	}
	return out, func() { out.Close() }, nil
}

// ParseTagInt parses a "T:N" flag value into a tag and an integer.
func ParseTagInt(spec string) (tag int, val int64, err error) {
	t, rest, err := splitTag(spec)
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("format error: bad integer in %q: %w", spec, err)
	}
	return t, v, nil
}

// ParseTagFloat parses a "T:F" flag value into a tag and a float.
func ParseTagFloat(spec string) (tag int, val float64, err error) {
	t, rest, err := splitTag(spec)
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("format error: bad float in %q: %w", spec, err)
	}
	return t, v, nil
}

func splitTag(spec string) (tag int, rest string, err error) {
	idx := strings.IndexByte(spec, ':')
	if idx < 0 {
		return 0, "", fmt.Errorf("format error: expected tag:value, got %q", spec)
	}
	t, err := strconv.Atoi(spec[:idx])
	if err != nil {
		return 0, "", fmt.Errorf("format error: bad tag in %q: %w", spec, err)
	}
	return t, spec[idx+1:], nil
}
