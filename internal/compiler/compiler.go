// Package compiler implements the judging pipeline's Compiler Driver: it
// invokes the system C++ toolchain on a submitted source file and reports
// success or failure. It is not wrapped in the sandbox executor — the
// compiler itself is trusted code — but runs under a CPU cap the driver
// enforces on its own, to defend against adversarial source that triggers
// pathological compilation.
package compiler

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kwant-dbg/codejudge/internal/constants"
	judgeerr "github.com/kwant-dbg/codejudge/pkg/errors"
	"go.uber.org/zap"
)

// Driver invokes g++ (or a configured compatible binary) on a C++17
// source file. The zero value uses the default binary and timeout.
type Driver struct {
	GPPPath string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewDriver builds a Driver with the given g++ path; empty uses the
// project default. A nil logger disables logging.
func NewDriver(gppPath string, logger *zap.Logger) *Driver {
	if gppPath == "" {
		gppPath = constants.DefaultGPPPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{GPPPath: gppPath, Timeout: constants.MaxCompileTimeout, Logger: logger}
}

// Compile builds sourcePath into executablePath as C++17, optimized.
// It waits for the compiler to exit, killing it if it runs past the
// driver's CPU cap, and returns success iff g++ exited zero before that.
// The combined stdout/stderr is always returned for the caller to persist
// alongside a CompilationError verdict.
func (d *Driver) Compile(sourcePath, executablePath string) (output string, err error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = constants.MaxCompileTimeout
	}
	gppPath := d.GPPPath
	if gppPath == "" {
		gppPath = constants.DefaultGPPPath
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, lookErr := exec.LookPath(gppPath); lookErr != nil {
		return "", judgeerr.Wrap(judgeerr.ErrCodeCompile, "compiler not found", lookErr)
	}

	args := append([]string{sourcePath, "-o", executablePath}, strings.Fields(constants.GPPCompileFlags)...)
	cmd := exec.Command(gppPath, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if startErr := cmd.Start(); startErr != nil {
		return "", judgeerr.Wrap(judgeerr.ErrCodeCompile, "starting compiler", startErr)
	}

	timer := time.AfterFunc(timeout, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
	waitErr := cmd.Wait()
	timedOut := !timer.Stop()

	output = combined.String()
	if timedOut {
		logger.Warn("compilation exceeded cpu cap, killed",
			zap.String("source", sourcePath), zap.Duration("timeout", timeout))
		return output, judgeerr.New(judgeerr.ErrCodeCompile, "compilation exceeded time limit")
	}
	if waitErr != nil {
		logger.Info("compilation failed", zap.String("source", sourcePath), zap.String("output", output))
		return output, judgeerr.Wrap(judgeerr.ErrCodeCompile, "compiler exited non-zero", waitErr)
	}
	if _, statErr := os.Stat(executablePath); statErr != nil {
		return output, judgeerr.Wrap(judgeerr.ErrCodeCompile, "executable not produced", statErr)
	}
	return output, nil
}
