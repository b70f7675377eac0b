package sandbox

import (
	"context"

	"github.com/kwant-dbg/codejudge/internal/model"
)

// Sandbox runs a compiled executable against one test case's stdin under
// isolation and returns a structured result. Both Executor (native
// trampoline) and NsJailExecutor (external nsjail) implement it.
type Sandbox interface {
	Execute(ctx context.Context, cfg model.SandboxConfig, executablePath, stdinText string) model.SandboxResult
}

var (
	_ Sandbox = (*Executor)(nil)
	_ Sandbox = (*NsJailExecutor)(nil)
)
