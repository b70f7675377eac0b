package cache

import (
	"testing"
	"time"

	"github.com/kwant-dbg/codejudge/internal/model"
)

func TestPutThenGetHit(t *testing.T) {
	c := New(t.TempDir(), time.Minute, 1024*1024, nil)
	cases := []model.TestCase{{Input: "1 2", Output: "3"}}
	fp := Fingerprint("problem-1", "2")

	c.Put("problem-1", fp, cases)

	got, ok := c.Get("problem-1", fp)
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if len(got) != 1 || got[0].Output != "3" {
		t.Errorf("got %+v, want the cached test cases back unchanged", got)
	}
}

func TestGetMissOnFingerprintMismatch(t *testing.T) {
	c := New(t.TempDir(), time.Minute, 1024*1024, nil)
	c.Put("problem-1", "fp-old", []model.TestCase{{Input: "a", Output: "b"}})

	if _, ok := c.Get("problem-1", "fp-new"); ok {
		t.Error("a fingerprint mismatch must never be treated as authoritative")
	}
}

func TestGetMissOnExpiry(t *testing.T) {
	c := New(t.TempDir(), -time.Second, 1024*1024, nil)
	c.Put("problem-1", "fp", []model.TestCase{{Input: "a", Output: "b"}})

	if _, ok := c.Get("problem-1", "fp"); ok {
		t.Error("an expired entry must never be treated as authoritative")
	}
}

func TestGetMissWhenAbsent(t *testing.T) {
	c := New(t.TempDir(), time.Minute, 1024*1024, nil)
	if _, ok := c.Get("never-cached", "fp"); ok {
		t.Error("expected a miss for a problem id that was never cached")
	}
}

func TestFingerprintStableForSameInputs(t *testing.T) {
	a := Fingerprint("p1", "3")
	b := Fingerprint("p1", "3")
	if a != b {
		t.Errorf("Fingerprint must be deterministic for identical inputs, got %q and %q", a, b)
	}
	if Fingerprint("p1", "4") == a {
		t.Error("Fingerprint must differ when inputs differ")
	}
}
