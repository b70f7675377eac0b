package metrics

import "testing"

func TestRecordSubmissionLifecycle(t *testing.T) {
	m := New()
	m.RecordSubmissionStart()
	snap := m.Snapshot()
	if snap["submissions_active"].(int64) != 1 {
		t.Fatalf("expected 1 active submission, got %v", snap["submissions_active"])
	}

	m.RecordVerdict("Accepted")
	m.RecordSubmissionEnd(false)

	snap = m.Snapshot()
	if snap["submissions_active"].(int64) != 0 {
		t.Errorf("expected 0 active submissions after end, got %v", snap["submissions_active"])
	}
	if snap["submissions_processed"].(int64) != 1 {
		t.Errorf("expected 1 processed submission, got %v", snap["submissions_processed"])
	}
	if snap["submissions_failed"].(int64) != 0 {
		t.Errorf("expected 0 failed submissions, got %v", snap["submissions_failed"])
	}
	if snap["verdict_accepted"].(int64) != 1 {
		t.Errorf("expected 1 accepted verdict, got %v", snap["verdict_accepted"])
	}
}

func TestRecordSubmissionFailure(t *testing.T) {
	m := New()
	m.RecordSubmissionStart()
	m.RecordVerdict("JudgeError: sandbox unavailable")
	m.RecordSubmissionEnd(true)

	snap := m.Snapshot()
	if snap["submissions_failed"].(int64) != 1 {
		t.Errorf("expected 1 failed submission, got %v", snap["submissions_failed"])
	}
	if snap["verdict_judge_error"].(int64) != 1 {
		t.Errorf("expected unrecognized verdict strings to fall into judge_error bucket, got %v", snap["verdict_judge_error"])
	}
}

func TestCacheAndSandboxCounters(t *testing.T) {
	m := New()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordSandboxInvocation()

	snap := m.Snapshot()
	if snap["cache_hits"].(int64) != 2 {
		t.Errorf("expected 2 cache hits, got %v", snap["cache_hits"])
	}
	if snap["cache_misses"].(int64) != 1 {
		t.Errorf("expected 1 cache miss, got %v", snap["cache_misses"])
	}
	if snap["sandbox_invocations"].(int64) != 1 {
		t.Errorf("expected 1 sandbox invocation, got %v", snap["sandbox_invocations"])
	}
}
