// Package metrics is the worker's in-process counters: a small set of
// atomics tracking submissions processed, verdict breakdown, test-case
// cache hits/misses, and sandbox invocations, exposed to the operational
// HTTP surface as a JSON snapshot.
// There is no metrics client library in the project's dependency set, so
// this follows the same atomic-counter-plus-snapshot shape the rest of
// the project uses for in-memory state that needs to be read concurrently
// from an HTTP handler.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds the worker's lifetime counters. The zero value is ready
// to use; construct one with New and share it between the worker loop
// and the operational HTTP surface.
type Metrics struct {
	startedAt time.Time

	submissionsProcessed atomic.Int64
	submissionsFailed    atomic.Int64
	activeSubmissions    atomic.Int64

	verdictAccepted        atomic.Int64
	verdictWrongAnswer     atomic.Int64
	verdictTimeLimit       atomic.Int64
	verdictMemoryLimit     atomic.Int64
	verdictRuntimeError    atomic.Int64
	verdictCompilationErr  atomic.Int64
	verdictJudgeError      atomic.Int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	sandboxInvocations atomic.Int64
}

// New returns a Metrics ready for use, stamped with the current time as
// the worker's start time for uptime reporting.
func New() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// RecordSubmissionStart marks a submission as picked up off the queue.
func (m *Metrics) RecordSubmissionStart() {
	m.activeSubmissions.Add(1)
}

// RecordSubmissionEnd marks a submission as finished, successfully or not.
func (m *Metrics) RecordSubmissionEnd(failed bool) {
	m.activeSubmissions.Add(-1)
	m.submissionsProcessed.Add(1)
	if failed {
		m.submissionsFailed.Add(1)
	}
}

// RecordVerdict tallies a verdict string as produced by model.Verdict.String.
func (m *Metrics) RecordVerdict(verdict string) {
	switch verdict {
	case "Accepted":
		m.verdictAccepted.Add(1)
	case "Wrong Answer":
		m.verdictWrongAnswer.Add(1)
	case "Time Limit Exceeded":
		m.verdictTimeLimit.Add(1)
	case "Memory Limit Exceeded":
		m.verdictMemoryLimit.Add(1)
	case "Runtime Error":
		m.verdictRuntimeError.Add(1)
	case "Compilation Error":
		m.verdictCompilationErr.Add(1)
	default:
		m.verdictJudgeError.Add(1)
	}
}

// RecordCacheHit/RecordCacheMiss tally test-case cache lookups.
func (m *Metrics) RecordCacheHit()  { m.cacheHits.Add(1) }
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Add(1) }

// RecordSandboxInvocation tallies one sandboxed execution, whether it was
// a single-test-case run under the native executor or nsjail.
func (m *Metrics) RecordSandboxInvocation() {
	m.sandboxInvocations.Add(1)
}

// Snapshot returns a point-in-time copy of every counter, suitable for
// JSON serialization by the operational HTTP surface.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"uptime_seconds":         time.Since(m.startedAt).Seconds(),
		"submissions_processed":  m.submissionsProcessed.Load(),
		"submissions_failed":     m.submissionsFailed.Load(),
		"submissions_active":     m.activeSubmissions.Load(),
		"verdict_accepted":       m.verdictAccepted.Load(),
		"verdict_wrong_answer":   m.verdictWrongAnswer.Load(),
		"verdict_time_limit":     m.verdictTimeLimit.Load(),
		"verdict_memory_limit":   m.verdictMemoryLimit.Load(),
		"verdict_runtime_error":  m.verdictRuntimeError.Load(),
		"verdict_compile_error":  m.verdictCompilationErr.Load(),
		"verdict_judge_error":    m.verdictJudgeError.Load(),
		"cache_hits":             m.cacheHits.Load(),
		"cache_misses":           m.cacheMisses.Load(),
		"sandbox_invocations":    m.sandboxInvocations.Load(),
	}
}
