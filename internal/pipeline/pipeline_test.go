package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/kwant-dbg/codejudge/internal/cache"
	"github.com/kwant-dbg/codejudge/internal/metrics"
	"github.com/kwant-dbg/codejudge/internal/model"
	judgeerr "github.com/kwant-dbg/codejudge/pkg/errors"
	"go.uber.org/zap"
)

type fakeStore struct {
	source      string
	sourceErr   error
	problemID   string
	problemErr  error
	testCases   []model.TestCase
	testCaseErr error
	fingerprint string
	fpErr       error

	persistedVerdict string
	persistErr       error
}

func (f *fakeStore) FetchSource(ctx context.Context, submissionID string) (string, error) {
	return f.source, f.sourceErr
}

func (f *fakeStore) FetchProblemID(ctx context.Context, submissionID string) (string, error) {
	return f.problemID, f.problemErr
}

func (f *fakeStore) FetchTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	return f.testCases, f.testCaseErr
}

func (f *fakeStore) TestCaseFingerprint(ctx context.Context, problemID string) (string, error) {
	return f.fingerprint, f.fpErr
}

func (f *fakeStore) PersistVerdict(ctx context.Context, submissionID, verdict string) error {
	f.persistedVerdict = verdict
	return f.persistErr
}

type fakeCompiler struct {
	output string
	err    error
}

func (f *fakeCompiler) Compile(sourcePath, executablePath string) (string, error) {
	return f.output, f.err
}

type fakeSandbox struct {
	results []model.SandboxResult
	calls   int
}

func (f *fakeSandbox) Execute(ctx context.Context, cfg model.SandboxConfig, executablePath, stdinText string) model.SandboxResult {
	r := f.results[f.calls]
	f.calls++
	return r
}

func newTestPipeline(t *testing.T, store SubmissionStore, compiler CompilerDriver, sb *fakeSandbox) *Pipeline {
	t.Helper()
	return &Pipeline{
		Store:         store,
		Cache:         cache.New(t.TempDir(), time.Minute, 0, nil),
		Compiler:      compiler,
		Sandbox:       sb,
		Metrics:       metrics.New(),
		Logger:        zap.NewNop(),
		WorkDir:       t.TempDir(),
		SandboxConfig: model.DefaultSandboxConfig(),
	}
}

func TestJudgeAcceptedAllTestCasesPass(t *testing.T) {
	st := &fakeStore{
		source:      "int main(){}",
		problemID:   "p1",
		testCases:   []model.TestCase{{Input: "1", Output: "1\n"}},
		fingerprint: "fp",
	}
	sb := &fakeSandbox{results: []model.SandboxResult{{HasExitCode: true, ExitCode: 0, Stdout: "1\n"}}}
	p := newTestPipeline(t, st, &fakeCompiler{}, sb)

	if err := p.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	if st.persistedVerdict != "Accepted" {
		t.Errorf("persisted verdict = %q, want Accepted", st.persistedVerdict)
	}
}

func TestJudgeStopsAtFirstFailingTestCase(t *testing.T) {
	st := &fakeStore{
		source:    "int main(){}",
		problemID: "p1",
		testCases: []model.TestCase{
			{Input: "1", Output: "1\n"},
			{Input: "2", Output: "2\n"},
		},
		fingerprint: "fp",
	}
	sb := &fakeSandbox{results: []model.SandboxResult{
		{HasExitCode: true, ExitCode: 0, Stdout: "wrong\n"},
		{HasExitCode: true, ExitCode: 0, Stdout: "2\n"},
	}}
	p := newTestPipeline(t, st, &fakeCompiler{}, sb)

	if err := p.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	if st.persistedVerdict != "Wrong Answer" {
		t.Errorf("persisted verdict = %q, want Wrong Answer", st.persistedVerdict)
	}
	if sb.calls != 1 {
		t.Errorf("sandbox invoked %d times, want exactly 1 (short-circuit)", sb.calls)
	}
}

func TestJudgeCompilationFailureSkipsSandbox(t *testing.T) {
	st := &fakeStore{source: "broken", problemID: "p1"}
	sb := &fakeSandbox{}
	p := newTestPipeline(t, st, &fakeCompiler{err: context.DeadlineExceeded}, sb)

	if err := p.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	if st.persistedVerdict != "Compilation Error" {
		t.Errorf("persisted verdict = %q, want Compilation Error", st.persistedVerdict)
	}
	if sb.calls != 0 {
		t.Errorf("sandbox invoked %d times, want 0 after compile failure", sb.calls)
	}
}

func TestJudgeNoTestCasesIsJudgeError(t *testing.T) {
	st := &fakeStore{source: "int main(){}", problemID: "p1", testCases: nil, fingerprint: "fp"}
	p := newTestPipeline(t, st, &fakeCompiler{}, &fakeSandbox{})

	if err := p.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	if st.persistedVerdict != "Judge Error: no test cases" {
		t.Errorf("persisted verdict = %q, want Judge Error: no test cases", st.persistedVerdict)
	}
}

func TestJudgeSourceNotFoundIsJudgeError(t *testing.T) {
	st := &fakeStore{sourceErr: judgeerr.New(judgeerr.ErrCodeSourceNotFound, "source not found")}
	p := newTestPipeline(t, st, &fakeCompiler{}, &fakeSandbox{})

	if err := p.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	if st.persistedVerdict != "Judge Error: source not found" {
		t.Errorf("persisted verdict = %q, want Judge Error: source not found", st.persistedVerdict)
	}
}

func TestJudgeSandboxConstructionFailureIsJudgeError(t *testing.T) {
	st := &fakeStore{
		source:      "int main(){}",
		problemID:   "p1",
		testCases:   []model.TestCase{{Input: "1", Output: "1\n"}},
		fingerprint: "fp",
	}
	sb := &fakeSandbox{results: []model.SandboxResult{{HasExitCode: true, ExitCode: -1}}}
	p := newTestPipeline(t, st, &fakeCompiler{}, sb)

	if err := p.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	if st.persistedVerdict != "Judge Error: sandbox unavailable" {
		t.Errorf("persisted verdict = %q, want Judge Error: sandbox unavailable", st.persistedVerdict)
	}
}
