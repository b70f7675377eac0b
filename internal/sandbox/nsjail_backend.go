package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kwant-dbg/codejudge/internal/model"
	"go.uber.org/zap"
)

// NsJailExecutor is the alternate Sandbox backend selectable via
// JUDGE_SANDBOX_BACKEND=nsjail: it shells out to the external nsjail
// binary instead of the in-process trampoline. It satisfies the same
// contract as Executor — callers return a structured model.SandboxResult
// rather than a pre-classified verdict, so Classify stays the single
// place verdicts are decided regardless of which backend ran the code.
type NsJailExecutor struct {
	NsJailPath string
	logger     *zap.Logger
}

// NewNsJailExecutor builds an NsJailExecutor. nsjailPath is normally
// "nsjail", resolved via PATH.
func NewNsJailExecutor(nsjailPath string, logger *zap.Logger) *NsJailExecutor {
	return &NsJailExecutor{NsJailPath: nsjailPath, logger: logger}
}

// Execute runs executablePath under nsjail with the given resource
// envelope and stdin, mirroring Executor.Execute's signature so the
// pipeline can select either backend behind the same interface.
func (n *NsJailExecutor) Execute(ctx context.Context, cfg model.SandboxConfig, executablePath, stdinText string) model.SandboxResult {
	if _, err := exec.LookPath(n.NsJailPath); err != nil {
		n.logger.Warn("nsjail binary not found", zap.Error(err))
		return model.SandboxResult{HasExitCode: true, ExitCode: -1}
	}

	absExePath, err := filepath.Abs(executablePath)
	if err != nil {
		n.logger.Warn("resolving executable path", zap.Error(err))
		return model.SandboxResult{HasExitCode: true, ExitCode: -1}
	}
	exeDir := filepath.Dir(absExePath)

	args := []string{
		"-Mo", "-N",
		"--time_limit", fmt.Sprintf("%d", cfg.CPUTimeLimitSeconds),
		"--rlimit_as", fmt.Sprintf("%d", cfg.MemoryLimitMB),
		"--rlimit_nproc", fmt.Sprintf("%d", cfg.ProcessLimit),
		"--chroot", exeDir,
		"--hostname", "codejudge-sandbox",
		"--user", "65534",
		"--group", "65534",
		"--disable_clone_newuser",
		"--",
		filepath.Base(absExePath),
	}

	deadline := time.Duration(cfg.CPUTimeLimitSeconds)*time.Second*wallClockMultiplier + wallClockFloor
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(runCtx, n.NsJailPath, args...)
	cmd.Stdin = bytes.NewReader([]byte(stdinText))
	var stdout, stderr limitedBuffer
	stdout.limit = cfg.MaxOutputBytes
	stderr.limit = cfg.MaxOutputBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	result := model.SandboxResult{Stdout: stdout.String(), Stderr: stderr.String()}
	interpretNsJailResult(&result, err)
	return result
}

func interpretNsJailResult(result *model.SandboxResult, err error) {
	if err == nil {
		result.HasExitCode = true
		result.ExitCode = 0
		return
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
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
		case syscall.SIGKILL, syscall.SIGSEGV, syscall.SIGABRT:
			// nsjail enforces rlimit_as the same way the kernel does for the
			// native backend (SIGSEGV/SIGABRT on allocation failure), and
			// additionally may SIGKILL a jailed process outright when it
			// trips the limit from outside; treat all three as memory
			// exhaustion so both backends classify identically.
			result.MemoryExceeded = true
		}
		return
	}

	result.HasExitCode = true
	result.ExitCode = status.ExitStatus()
}
