package strpool

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInternMandatoryVsOptional(t *testing.T) {
	p := New(false)
	h1 := p.InternString("kept", true)
	h2 := p.InternString("dropped", false)

	if got := p.Get(h1); got != "kept" {
		t.Fatalf("Get(mandatory) = %q, want %q", got, "kept")
	}
	if got := p.Get(h2); got != missing {
		t.Fatalf("Get(optional) = %q, want sentinel", got)
	}
}

func TestStoreAllRetainsEverything(t *testing.T) {
	p := New(true)
	h := p.InternString("anything", false)
	if got := p.Get(h); got != "anything" {
		t.Fatalf("Get = %q, want %q under store-all", got, "anything")
	}
}

func TestSetStoreAllTogglesAfterConstruction(t *testing.T) {
	p := New(false)
	h1 := p.InternString("before", false)
	if got := p.Get(h1); got != missing {
		t.Fatalf("Get(before SetStoreAll) = %q, want sentinel", got)
	}

	p.SetStoreAll(true)
	h2 := p.InternString("after", false)
	if got := p.Get(h2); got != "after" {
		t.Fatalf("Get(after SetStoreAll) = %q, want %q", got, "after")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := New(false)
	words := []string{"alpha", "beta", "gamma|delta", "日本語"}
	hashes := make([]uint64, len(words))
	for i, w := range words {
		hashes[i] = p.InternString(w, true)
	}

	path := filepath.Join(t.TempDir(), "pool.txt")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	p2 := New(false)
	if err := p2.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i, w := range words {
		if got := p2.Get(hashes[i]); got != w {
			t.Fatalf("Get(%d) after round trip = %q, want %q", hashes[i], got, w)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	p := New(false)
	if err := p.Load(filepath.Join(os.TempDir(), "does-not-exist-wfstrain.txt")); err == nil {
		t.Fatal("Load of missing file returned nil error")
	}
}
