// Package sandbox implements the judging pipeline's isolated execution
// primitive: run a single compiled executable against one test case's
// stdin under namespace separation, resource limits, privilege drop, and
// dumpability-off, and report a structured result.
//
// Isolation is applied in-process via a self-reexec trampoline rather than
// by shelling out to an external sandboxing tool: the Go runtime's own
// process-creation path already performs the clone() that establishes
// fresh namespaces and the stdio descriptor wiring as one atomic step
// before any child-side code runs, and the stock syscall.SysProcAttr on
// Linux exposes no field for setrlimit. So Execute re-invokes the current
// binary under the ReexecTrampolineArg hidden subcommand with the clone
// flags and redirected stdio already in place; TrampolineMain then applies
// rlimits, privilege drop, and dumpability-off before exec-replacing
// itself with the submitted executable. See TrampolineMain for the one place
// a seccomp filter would install, immediately before that final exec.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/kwant-dbg/codejudge/internal/model"
	judgeerr "github.com/kwant-dbg/codejudge/pkg/errors"
	"go.uber.org/zap"
)

// ReexecTrampolineArg is the hidden argv[1] that tells the worker binary
// it has been re-invoked as a sandbox child rather than as the worker
// itself. cmd/server's main() checks for this before doing anything
// else.
const ReexecTrampolineArg = "__sandbox_trampoline__"

// wallClockMultiplier and wallClockFloor implement the parent-side
// watchdog this implementation adds on top of the kernel CPU-time rlimit:
// a child blocked on I/O it will never receive burns no CPU time and so
// would never trip RLIMIT_CPU, but it also should not be able to stall the
// worker forever.
const (
	wallClockMultiplier = 5
	wallClockFloor       = 5 * time.Second
)

// Executor runs submitted executables under isolation. The zero value is
// not usable; construct with NewExecutor.
type Executor struct {
	selfPath string
	logger   *zap.Logger
}

// NewExecutor builds an Executor that re-execs selfPath (normally
// os.Executable()) as the trampoline.
func NewExecutor(selfPath string, logger *zap.Logger) *Executor {
	return &Executor{selfPath: selfPath, logger: logger}
}

// Execute runs executablePath against stdinText under cfg and returns a
// structured result. It is synchronous: it returns only once the child
// has been reaped or construction of the sandbox failed outright.
func (e *Executor) Execute(ctx context.Context, cfg model.SandboxConfig, executablePath, stdinText string) model.SandboxResult {
	cmd := exec.Command(e.selfPath, ReexecTrampolineArg, executablePath)
	cmd.Env = trampolineEnv(cfg)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWPID |
			syscall.CLONE_NEWNET |
			syscall.CLONE_NEWNS |
			syscall.CLONE_NEWUTS |
			syscall.CLONE_NEWIPC,
	}

	cmd.Stdin = bytes.NewReader([]byte(stdinText))
	var stdout, stderr limitedBuffer
	maxOut := cfg.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = model.DefaultSandboxConfig().MaxOutputBytes
	}
	stdout.limit = maxOut
	stderr.limit = maxOut
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		e.logger.Warn("sandbox construction failed", zap.Error(err))
		return model.SandboxResult{HasExitCode: true, ExitCode: -1}
	}
	if _, cleanup, ok := attachCgroup(cmd.Process.Pid); !ok {
		cleanup()
	} else {
		defer cleanup()
	}

	deadline := time.Duration(cfg.CPUTimeLimitSeconds) * time.Second * wallClockMultiplier
	if deadline < wallClockFloor {
		deadline = wallClockFloor
	}
	watchdogCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	var watchdogFired bool
	select {
	case waitErr = <-done:
	case <-watchdogCtx.Done():
		watchdogFired = true
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		waitErr = <-done
	}

	result := model.SandboxResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	interpretWaitResult(&result, waitErr, watchdogFired)
	result.Usage = readCgroupUsage(cmd.Process)
	return result
}

// interpretWaitResult fills in exit_code/signal/timeout/memory_exceeded
// per the parent-duties contract.
func interpretWaitResult(result *model.SandboxResult, waitErr error, watchdogFired bool) {
	if watchdogFired {
		result.SignalKilled = true
		result.Timeout = true
		return
	}
	if waitErr == nil {
		result.HasExitCode = true
		result.ExitCode = 0
		return
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		result.HasExitCode = true
		result.ExitCode = -1
		return
	}

	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		result.HasExitCode = true
		result.ExitCode = exitErr.ExitCode()
		return
	}

	if status.Signaled() {
		sig := status.Signal()
		result.SignalKilled = true
		result.Signal = int(sig)
		switch sig {
		case syscall.SIGXCPU:
			result.Timeout = true
		case syscall.SIGSEGV, syscall.SIGABRT:
			result.MemoryExceeded = true
		}
		return
	}

	result.HasExitCode = true
	result.ExitCode = status.ExitStatus()
}

// trampolineEnv clears the child's environment except for the resource
// envelope the trampoline needs to read before it execs the target,
// matching the "environment cleared" requirement on the final exec.
func trampolineEnv(cfg model.SandboxConfig) []string {
	env := []string{
		envPair(envCPULimit, itoa(cfg.CPUTimeLimitSeconds)),
		envPair(envMemLimitMB, itoa64(cfg.MemoryLimitMB)),
		envPair(envFDLimit, uitoa(cfg.FDLimit)),
		envPair(envProcLimit, uitoa(cfg.ProcessLimit)),
	}
	if cfg.User != "" {
		env = append(env, envPair(envUser, cfg.User))
	}
	return env
}

// ConstructionFailure builds the JudgeErr the pipeline persists when the
// sandbox itself could not be constructed (fork/pipe/namespace failure),
// per the implementation's chosen disposition (DESIGN.md: distinguishable
// from a submission misbehaving at runtime).
func ConstructionFailure(result model.SandboxResult) error {
	if !result.ConstructionFailed() {
		return nil
	}
	return judgeerr.New(judgeerr.ErrCodeSandboxUnavailable, "sandbox unavailable")
}

// limitedBuffer caps how much of a stream the parent will buffer, so a
// runaway child cannot exhaust the worker's own memory while the sandbox's
// own RLIMIT_AS bounds the child's.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.limit > 0 && b.buf.Len() >= b.limit {
		return n, nil // silently discard past the cap; io.Writer contract satisfied
	}
	if b.limit > 0 && b.buf.Len()+len(p) > b.limit {
		p = p[:b.limit-b.buf.Len()]
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }

var _ io.Writer = (*limitedBuffer)(nil)
