package sandbox

import (
	"testing"

	"github.com/kwant-dbg/codejudge/internal/model"
)

func TestInterpretWaitResultWatchdog(t *testing.T) {
	var r model.SandboxResult
	interpretWaitResult(&r, nil, true)
	if !r.Timeout || !r.SignalKilled {
		t.Errorf("watchdog fire should report Timeout and SignalKilled, got %+v", r)
	}
}

func TestInterpretWaitResultSuccess(t *testing.T) {
	var r model.SandboxResult
	interpretWaitResult(&r, nil, false)
	if !r.HasExitCode || r.ExitCode != 0 {
		t.Errorf("clean exit should report exit code 0, got %+v", r)
	}
}

func TestTrampolineEnvCarriesLimits(t *testing.T) {
	cfg := model.SandboxConfig{CPUTimeLimitSeconds: 3, MemoryLimitMB: 128, FDLimit: 32, ProcessLimit: 2, User: "judge-sandbox"}
	env := trampolineEnv(cfg)

	want := map[string]string{
		envCPULimit:   "3",
		envMemLimitMB: "128",
		envFDLimit:    "32",
		envProcLimit:  "2",
		envUser:       "judge-sandbox",
	}
	got := map[string]bool{}
	for _, kv := range env {
		for k, v := range want {
			if kv == k+"="+v {
				got[k] = true
			}
		}
	}
	for k := range want {
		if !got[k] {
			t.Errorf("trampolineEnv missing %s, got %v", k, env)
		}
	}
}

func TestTrampolineEnvOmitsUserWhenEmpty(t *testing.T) {
	env := trampolineEnv(model.DefaultSandboxConfig())
	for _, kv := range env {
		if len(kv) >= len(envUser) && kv[:len(envUser)] == envUser {
			t.Errorf("expected no %s entry when User is empty, got %q", envUser, kv)
		}
	}
}

func TestLimitedBufferCapsAtLimit(t *testing.T) {
	b := limitedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdefgh"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 8 {
		t.Errorf("Write should report the full input length consumed, got %d", n)
	}
	if b.String() != "abcd" {
		t.Errorf("expected buffer truncated to limit, got %q", b.String())
	}
}

func TestLimitedBufferUnlimitedWhenZero(t *testing.T) {
	b := limitedBuffer{}
	_, _ = b.Write([]byte("hello world"))
	if b.String() != "hello world" {
		t.Errorf("zero limit should mean unbounded, got %q", b.String())
	}
}

func TestConstructionFailureOnlyOnSentinel(t *testing.T) {
	if ConstructionFailure(model.SandboxResult{HasExitCode: true, ExitCode: 0}) != nil {
		t.Error("exit code 0 must not be treated as construction failure")
	}
	if ConstructionFailure(model.SandboxResult{HasExitCode: true, ExitCode: -1}) == nil {
		t.Error("exit code -1 must be treated as construction failure")
	}
}
