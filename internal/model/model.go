// Package model holds the data types shared across the judging pipeline:
// submissions, test cases, sandbox configuration/results, and the verdict
// sum type that is ultimately persisted back to the store.
package model

import "time"

// Submission is one attempt by a user to solve a problem. The store is
// authoritative; the worker only ever holds a transient copy on local disk.
type Submission struct {
	ID         string
	ProblemID  string
	SourceCode string
}

// TestCase is a single (input, expected output) pair for a problem, in the
// order the store returns them.
type TestCase struct {
	Input  string
	Output string
}

// WorkPaths names the per-submission scratch files a Pipeline run owns.
// Both MUST be removed before the pipeline returns, regardless of outcome.
type WorkPaths struct {
	SourcePath string
	ExePath    string
}

// SandboxConfig describes the resource envelope a submitted executable is
// run under for a single test case.
type SandboxConfig struct {
	CPUTimeLimitSeconds int
	MemoryLimitMB       int64
	FDLimit             uint64
	ProcessLimit        uint64
	User                string // unprivileged account to drop to; empty disables privilege drop
	EnableNetwork        bool
	EnableFilesystemWrite bool
	ChrootDir             string
	MaxOutputBytes        int
}

// DefaultSandboxConfig mirrors the limits the distilled judging pipeline
// exercises in its end-to-end scenarios: 2s CPU, 256MiB address space.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		CPUTimeLimitSeconds: 2,
		MemoryLimitMB:       256,
		FDLimit:             64,
		ProcessLimit:        1,
		MaxOutputBytes:      10 * 1024 * 1024,
	}
}

// ResourceUsage is best-effort cgroup accounting for a sandboxed run. It is
// attached to logs only and never consulted by the classifier.
type ResourceUsage struct {
	CPUMicros    int64
	PeakMemBytes int64
	Available    bool
}

// SandboxResult is the structured outcome of one Sandbox.Execute call.
// ExitCode and Signal are mutually exclusive; a missing value is the zero
// value with the corresponding "present" semantics implied by the flags.
type SandboxResult struct {
	ExitCode       int
	HasExitCode    bool
	Signal         int
	SignalKilled   bool
	Timeout        bool
	MemoryExceeded bool
	Stdout         string
	Stderr         string
	Usage          ResourceUsage
}

// ConstructionFailed reports whether the sandbox itself could not be built
// (fork/pipe/namespace failure), as opposed to the child running and
// failing on its own. Per the distilled spec this is observed as
// ExitCode == -1 with HasExitCode true and empty output.
func (r SandboxResult) ConstructionFailed() bool {
	return r.HasExitCode && r.ExitCode == -1
}

// Verdict is the closed set of outcomes a submission can be classified as.
type Verdict int

const (
	Accepted Verdict = iota
	WrongAnswer
	CompilationError
	TimeLimitExceeded
	MemoryLimitExceeded
	RuntimeError
	JudgeError
)

// String renders the literal persisted-string form from the data model.
// JudgeError without a detail renders as the bare family name; callers
// wanting the "Judge Error: <detail>" form use JudgeErrorDetail.
func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "Accepted"
	case WrongAnswer:
		return "Wrong Answer"
	case CompilationError:
		return "Compilation Error"
	case TimeLimitExceeded:
		return "Time Limit Exceeded"
	case MemoryLimitExceeded:
		return "Memory Limit Exceeded"
	case RuntimeError:
		return "Runtime Error"
	case JudgeError:
		return "Judge Error"
	default:
		return "Judge Error: unknown verdict"
	}
}

// JudgeErrorDetail renders the free-text JudgeError family member that gets
// persisted, e.g. "Judge Error: Source not found".
func JudgeErrorDetail(detail string) string {
	return "Judge Error: " + detail
}

// CacheEntry is a cached, previously-fetched set of test cases for a
// problem, plus the fingerprint used to validate it against a fresh store
// read before trusting it.
type CacheEntry struct {
	ProblemID   string
	TestCases   []TestCase
	Fingerprint string
	ExpiresAt   time.Time
}
