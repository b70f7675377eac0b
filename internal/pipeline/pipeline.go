// Package pipeline wires the store, test-case cache, compiler, sandbox,
// and verdict classifier into the single operation the worker performs
// once per dequeued submission id: judge it, end to end, and persist
// exactly one verdict.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kwant-dbg/codejudge/internal/cache"
	"github.com/kwant-dbg/codejudge/internal/constants"
	"github.com/kwant-dbg/codejudge/internal/metrics"
	"github.com/kwant-dbg/codejudge/internal/model"
	"github.com/kwant-dbg/codejudge/internal/sandbox"
	"github.com/kwant-dbg/codejudge/internal/verdict"
	judgeerr "github.com/kwant-dbg/codejudge/pkg/errors"
	"go.uber.org/zap"
)

// correlationIDKey is the context key the worker loop uses to hand the
// pipeline the per-submission snowflake id minted for this judging run,
// so every log line the pipeline emits while processing a submission can
// be grep-correlated across the worker's shared log stream even when two
// submissions are mid-flight at once.
type correlationIDKey struct{}

// WithCorrelationID attaches a per-submission correlation id to ctx for
// the pipeline to log alongside every step of this judging run.
func WithCorrelationID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// loggerFromContext returns base annotated with the correlation id
// carried on ctx, if any; otherwise it returns base unchanged.
func loggerFromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if id, ok := ctx.Value(correlationIDKey{}).(int64); ok {
		return base.With(zap.Int64("correlation_id", id))
	}
	return base
}

// SubmissionStore is the subset of *store.Store the pipeline depends on.
// Declaring it here, at the consumer, keeps the pipeline testable against
// a fake without needing a live Postgres connection.
type SubmissionStore interface {
	FetchSource(ctx context.Context, submissionID string) (string, error)
	FetchProblemID(ctx context.Context, submissionID string) (string, error)
	FetchTestCases(ctx context.Context, problemID string) ([]model.TestCase, error)
	TestCaseFingerprint(ctx context.Context, problemID string) (string, error)
	PersistVerdict(ctx context.Context, submissionID, verdict string) error
}

// CompilerDriver is the subset of *compiler.Driver the pipeline depends
// on.
type CompilerDriver interface {
	Compile(sourcePath, executablePath string) (string, error)
}

// Pipeline holds every collaborator a submission judgment needs. One
// instance is built at startup and shared by every worker-loop iteration;
// none of its fields are mutated after construction, so it is safe to
// call Judge from multiple goroutines if the worker loop is ever scaled
// out, though today it is driven from a single loop.
type Pipeline struct {
	Store    SubmissionStore
	Cache    *cache.Cache
	Compiler CompilerDriver
	Sandbox  sandbox.Sandbox
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	WorkDir       string
	SandboxConfig model.SandboxConfig
}

// Judge runs the full eight-step submission pipeline for submissionID and
// persists exactly one verdict string to the store before returning. A
// failure to persist is the only error Judge returns to its caller; every
// other failure mode along the way is folded into a JudgeError verdict
// and still written to the store, since a stuck-forever submission is
// worse than a recorded failure.
func (p *Pipeline) Judge(ctx context.Context, submissionID string) error {
	log := loggerFromContext(ctx, p.Logger)

	p.Metrics.RecordSubmissionStart()
	verdictStr, judgeErr := p.run(ctx, submissionID)
	p.Metrics.RecordVerdict(verdictStr)
	p.Metrics.RecordSubmissionEnd(judgeErr != nil)

	if err := p.Store.PersistVerdict(ctx, submissionID, verdictStr); err != nil {
		log.Error("failed to persist verdict", zap.String("submission_id", submissionID), zap.Error(err))
		return err
	}
	return nil
}

// run performs the judging work and returns the verdict string to
// persist, plus a non-nil error when something in the pipeline itself
// (as opposed to the submitted program) misbehaved. The returned verdict
// string is always non-empty and always the value to persist, even when
// err is non-nil.
func (p *Pipeline) run(ctx context.Context, submissionID string) (verdictStr string, err error) {
	log := loggerFromContext(ctx, p.Logger).With(zap.String("submission_id", submissionID))

	workDir := p.WorkDir
	if mkErr := os.MkdirAll(workDir, constants.TempDirPerm); mkErr != nil {
		log.Error("failed to create work dir", zap.Error(mkErr))
		return model.JudgeErrorDetail("storage unavailable"), mkErr
	}
	sourcePath := filepath.Join(workDir, submissionID+constants.SourceFileSuffix)
	exePath := filepath.Join(workDir, submissionID)
	defer func() {
		for _, path := range []string{sourcePath, exePath} {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn("failed to clean up work file", zap.String("path", path), zap.Error(rmErr))
			}
		}
	}()

	source, fetchErr := p.Store.FetchSource(ctx, submissionID)
	if fetchErr != nil {
		if judgeerr.IsErrorCode(fetchErr, judgeerr.ErrCodeSourceNotFound) {
			return model.JudgeErrorDetail("source not found"), fetchErr
		}
		return model.JudgeErrorDetail("store unavailable"), fetchErr
	}

	if writeErr := os.WriteFile(sourcePath, []byte(source), constants.CodeFilePerm); writeErr != nil {
		log.Error("failed to write source file", zap.Error(writeErr))
		return model.JudgeErrorDetail("write failure"), writeErr
	}

	compileOutput, compileErr := p.Compiler.Compile(sourcePath, exePath)
	if compileErr != nil {
		log.Info("compilation failed", zap.String("output", compileOutput))
		return model.CompilationError.String(), nil
	}

	problemID, probErr := p.Store.FetchProblemID(ctx, submissionID)
	if probErr != nil {
		return model.JudgeErrorDetail("problem not found"), probErr
	}

	testCases, tcErr := p.fetchTestCases(ctx, problemID)
	if tcErr != nil {
		return model.JudgeErrorDetail("store unavailable"), tcErr
	}
	if len(testCases) == 0 {
		return model.JudgeErrorDetail("no test cases"), judgeerr.New(judgeerr.ErrCodeNoTestCases, "no test cases")
	}

	paths := model.WorkPaths{SourcePath: sourcePath, ExePath: exePath}
	finalVerdict, runErr := p.runTestCases(ctx, log, paths, testCases)
	if runErr != nil {
		return model.JudgeErrorDetail("sandbox unavailable"), runErr
	}
	return finalVerdict.String(), nil
}

// fetchTestCases is cache-first: a cache hit is only trusted when its
// fingerprint matches a fresh, cheap store read taken right now. Any
// other outcome — miss, expiry, mismatch — falls through to a full store
// fetch and refreshes the cache entry for next time.
func (p *Pipeline) fetchTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	fp, fpErr := p.Store.TestCaseFingerprint(ctx, problemID)
	if fpErr == nil {
		if cached, ok := p.Cache.Get(problemID, fp); ok {
			p.Metrics.RecordCacheHit()
			return cached, nil
		}
	}
	p.Metrics.RecordCacheMiss()

	testCases, err := p.Store.FetchTestCases(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if fpErr == nil {
		p.Cache.Put(problemID, fp, testCases)
	}
	return testCases, nil
}

// runTestCases executes paths.ExePath against each test case in order,
// stopping at the first non-Accepted verdict. A sandbox construction
// failure aborts the whole submission rather than being folded into a
// per-test-case verdict, since it means the judging environment itself
// is unhealthy, not that the submission behaved badly.
func (p *Pipeline) runTestCases(ctx context.Context, log *zap.Logger, paths model.WorkPaths, testCases []model.TestCase) (model.Verdict, error) {
	for i, tc := range testCases {
		p.Metrics.RecordSandboxInvocation()
		result := p.Sandbox.Execute(ctx, p.SandboxConfig, paths.ExePath, tc.Input)
		if err := sandbox.ConstructionFailure(result); err != nil {
			return model.JudgeError, err
		}
		if result.Usage.Available {
			log.Debug("test case resource usage",
				zap.Int("test_case_index", i),
				zap.Int64("cpu_micros", result.Usage.CPUMicros),
				zap.Int64("peak_mem_bytes", result.Usage.PeakMemBytes))
		}

		v := verdict.Classify(result, tc.Output)
		if v != model.Accepted {
			log.Info("test case failed",
				zap.Int("test_case_index", i),
				zap.String("verdict", v.String()))
			return v, nil
		}
	}
	return model.Accepted, nil
}
