// Package verdict implements the pure function that maps a sandbox result
// and an expected output to a closed Verdict symbol.
package verdict

import (
	"strings"

	"github.com/kwant-dbg/codejudge/internal/model"
)

// Classify maps a sandbox result and expected output to a Verdict.
// Classification order matches the distilled contract exactly: timeout
// beats memory-exceeded beats signal/non-zero-exit beats output compare.
func Classify(result model.SandboxResult, expectedOutput string) model.Verdict {
	switch {
	case result.Timeout:
		return model.TimeLimitExceeded
	case result.MemoryExceeded:
		return model.MemoryLimitExceeded
	case result.SignalKilled, result.HasExitCode && result.ExitCode != 0:
		return model.RuntimeError
	}

	if Compare(result.Stdout, expectedOutput) {
		return model.Accepted
	}
	return model.WrongAnswer
}

// Compare is the strict comparator the judging pipeline always uses:
// exact byte equality after trimming only trailing ASCII whitespace from
// each side. No per-line normalization, no encoding translation.
func Compare(actual, expected string) bool {
	return rtrim(actual) == rtrim(expected)
}

// CompareFields is a looser comparator available to callers that
// explicitly opt into it (e.g. ad-hoc tooling); it collapses runs of
// whitespace and compares the program's and expected output's
// whitespace-separated fields. The judging pipeline never uses this mode
// — Classify always calls Compare.
func CompareFields(actual, expected string) bool {
	a := strings.Fields(normalizeNewlines(actual))
	e := strings.Fields(normalizeNewlines(expected))
	if len(a) != len(e) {
		return false
	}
	for i := range a {
		if a[i] != e[i] {
			return false
		}
	}
	return true
}

const trailingWhitespace = " \t\r\n"

// rtrim removes trailing ASCII space, tab, CR, LF only; it never touches
// leading whitespace or interior lines.
func rtrim(s string) string {
	return strings.TrimRight(s, trailingWhitespace)
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
