package worker

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/kwant-dbg/codejudge/pkg/snowflake"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	snowflake.MustInit(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	os.Exit(m.Run())
}

type fakeQueue struct {
	ids   []string
	errs  []error
	calls int
}

func (f *fakeQueue) PopSubmission(ctx context.Context) (string, error) {
	if f.calls >= len(f.ids) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	i := f.calls
	f.calls++
	return f.ids[i], f.errs[i]
}

type fakePipeline struct {
	judged []string
	err    error
}

func (f *fakePipeline) Judge(ctx context.Context, submissionID string) error {
	f.judged = append(f.judged, submissionID)
	return f.err
}

func TestLoopJudgesEachPoppedSubmission(t *testing.T) {
	q := &fakeQueue{ids: []string{"a", "b"}, errs: []error{nil, nil}}
	p := &fakePipeline{}
	l := &Loop{Queue: q, Pipeline: p, Logger: zap.NewNop()}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	if len(p.judged) != 2 || p.judged[0] != "a" || p.judged[1] != "b" {
		t.Errorf("judged = %v, want [a b]", p.judged)
	}
}

func TestLoopSurvivesQueueError(t *testing.T) {
	q := &fakeQueue{ids: []string{"", "a"}, errs: []error{errors.New("transient"), nil}}
	p := &fakePipeline{}
	l := &Loop{Queue: q, Pipeline: p, Logger: zap.NewNop()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.Run(ctx)

	if len(p.judged) != 1 || p.judged[0] != "a" {
		t.Errorf("judged = %v, want [a] after surviving a queue error", p.judged)
	}
}

func TestLoopSurvivesPipelineError(t *testing.T) {
	q := &fakeQueue{ids: []string{"a"}, errs: []error{nil}}
	p := &fakePipeline{err: errors.New("store unavailable")}
	l := &Loop{Queue: q, Pipeline: p, Logger: zap.NewNop()}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	if len(p.judged) != 1 {
		t.Errorf("judged = %v, want exactly 1 attempt even though it errored", p.judged)
	}
}
