package compiler

import "testing"

func TestNewDriverDefaults(t *testing.T) {
	d := NewDriver("", nil)
	if d.GPPPath != "g++" {
		t.Errorf("expected default g++ path, got %q", d.GPPPath)
	}
	if d.Timeout <= 0 {
		t.Errorf("expected a positive default timeout")
	}
	if d.Logger == nil {
		t.Errorf("expected a non-nil no-op logger")
	}
}

func TestCompileMissingCompiler(t *testing.T) {
	d := NewDriver("g++-does-not-exist-on-this-machine", nil)
	_, err := d.Compile("/tmp/does-not-matter.cpp", "/tmp/does-not-matter")
	if err == nil {
		t.Fatal("expected an error when the compiler binary cannot be found")
	}
}
