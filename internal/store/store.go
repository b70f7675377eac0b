// Package store is the worker's relational-store collaborator: it owns
// the long-lived connection to the database holding submissions and test
// cases, the way the project's other services own one long-lived
// connection per backing store for their process lifetime. Subsystems
// borrow the connection through Store's methods; they never close it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kwant-dbg/codejudge/internal/model"
	judgeerr "github.com/kwant-dbg/codejudge/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// submissionRow and testCaseRow map the two tables the worker's contract
// names in the external-interface schema. GORM is told the exact table
// names since the worker does not own migrations for this schema.
type submissionRow struct {
	ID         string `gorm:"column:id"`
	ProblemID  string `gorm:"column:problem_id"`
	SourceCode string `gorm:"column:source_code"`
	Verdict    string `gorm:"column:verdict"`
}

func (submissionRow) TableName() string { return "submissions" }

type testCaseRow struct {
	ID        int64  `gorm:"column:id"`
	ProblemID string `gorm:"column:problem_id"`
	Input     string `gorm:"column:input"`
	Output    string `gorm:"column:output"`
}

func (testCaseRow) TableName() string { return "test_cases" }

// Store is the worker's single long-lived handle to the relational
// store. Construct once at startup with Open; the worker holds it for
// its entire lifetime.
type Store struct {
	db *gorm.DB
}

// Open establishes the connection described by dsn (the opaque
// DATABASE_URL the worker was given) and verifies it is reachable.
// Connection failure here is fatal per the bootstrap contract.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap store connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &Store{db: db}, nil
}

// FetchSource reads the submitter's source text by submission id.
// A missing row is reported as ErrCodeSourceNotFound.
func (s *Store) FetchSource(ctx context.Context, submissionID string) (string, error) {
	var row submissionRow
	err := s.db.WithContext(ctx).Select("source_code").Where("id = ?", submissionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", judgeerr.New(judgeerr.ErrCodeSourceNotFound, "source not found")
	}
	if err != nil {
		return "", judgeerr.Wrap(judgeerr.ErrCodeStorageUnavailable, "fetch source", err)
	}
	return row.SourceCode, nil
}

// FetchProblemID reads the problem a submission targets.
// A missing row is reported as ErrCodeProblemNotFound.
func (s *Store) FetchProblemID(ctx context.Context, submissionID string) (string, error) {
	var row submissionRow
	err := s.db.WithContext(ctx).Select("problem_id").Where("id = ?", submissionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", judgeerr.New(judgeerr.ErrCodeProblemNotFound, "problem not found")
	}
	if err != nil {
		return "", judgeerr.Wrap(judgeerr.ErrCodeStorageUnavailable, "fetch problem id", err)
	}
	return row.ProblemID, nil
}

// FetchTestCases reads all test cases for a problem, in insertion order
// (tie-broken by numeric id, per the data model's ordering contract).
// An empty result is not itself an error; callers check len() and raise
// ErrCodeNoTestCases themselves, since "no rows" and "store error" need
// different verdicts here.
func (s *Store) FetchTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	var rows []testCaseRow
	err := s.db.WithContext(ctx).
		Where("problem_id = ?", problemID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, judgeerr.Wrap(judgeerr.ErrCodeStorageUnavailable, "fetch test cases", err)
	}
	cases := make([]model.TestCase, len(rows))
	for i, r := range rows {
		cases[i] = model.TestCase{Input: r.Input, Output: r.Output}
	}
	return cases, nil
}

// TestCaseFingerprint computes a cheap summary of a problem's test-case
// rows (count and max id) without fetching the bodies, so the test-case
// cache can validate a hit against current store contents without paying
// for a full refetch on every submission.
func (s *Store) TestCaseFingerprint(ctx context.Context, problemID string) (string, error) {
	var count int64
	var maxID int64
	if err := s.db.WithContext(ctx).Model(&testCaseRow{}).Where("problem_id = ?", problemID).Count(&count).Error; err != nil {
		return "", judgeerr.Wrap(judgeerr.ErrCodeStorageUnavailable, "count test cases", err)
	}
	if count > 0 {
		if err := s.db.WithContext(ctx).Model(&testCaseRow{}).Where("problem_id = ?", problemID).
			Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
			return "", judgeerr.Wrap(judgeerr.ErrCodeStorageUnavailable, "max test case id", err)
		}
	}
	return fmt.Sprintf("%d:%d", count, maxID), nil
}

// PersistVerdict writes the final verdict string for a submission and
// stamps judged_at. It is the pipeline's single write to the store and is
// called exactly once per successfully dequeued submission.
func (s *Store) PersistVerdict(ctx context.Context, submissionID, verdict string) error {
	err := s.db.WithContext(ctx).
		Model(&submissionRow{}).
		Where("id = ?", submissionID).
		Updates(map[string]any{"verdict": verdict, "judged_at": gorm.Expr("NOW()")}).Error
	if err != nil {
		return judgeerr.Wrap(judgeerr.ErrCodeStorageUnavailable, "persist verdict", err)
	}
	return nil
}
