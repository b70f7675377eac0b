// Package cache implements the judging pipeline's test-case disk cache:
// an optional, best-effort on-disk cache of fetched test-case bodies
// keyed by problem id, with TTL expiry and size-bounded eviction. It is
// never a correctness dependency — a miss, a corrupt entry, or a
// fingerprint mismatch against a fresh store read always falls through
// to the store.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kwant-dbg/codejudge/internal/model"
	"go.uber.org/zap"
)

// Cache is a disk-backed, size-bounded cache of per-problem test-case
// sets. The zero value is not usable; construct with New.
type Cache struct {
	dir          string
	ttl          time.Duration
	maxDiskUsage int64

	mu           sync.Mutex
	currentUsage int64
	logger       *zap.Logger
}

// New builds a Cache rooted at dir, creating it if necessary. A dir that
// cannot be created degrades the cache to always-miss rather than
// failing the worker: the cache is never a correctness dependency.
func New(dir string, ttl time.Duration, maxDiskUsage int64, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("test case cache directory unavailable, cache disabled", zap.String("dir", dir), zap.Error(err))
	}
	c := &Cache{dir: dir, ttl: ttl, maxDiskUsage: maxDiskUsage, logger: logger}
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if info, err := e.Info(); err == nil {
				c.currentUsage += info.Size()
			}
		}
	}
	return c
}

// Fingerprint hashes a problem id's test-case set (or any cheap
// fresh-read summary of it, such as a row count and max id) into a
// short string used to validate a cache hit against current store
// contents without refetching the full bodies.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Get returns the cached test cases for problemID if present, unexpired,
// and matching wantFingerprint. Any other outcome is a miss: expired
// entries are evicted, fingerprint mismatches are treated as stale and
// left for the caller to refresh via Put.
func (c *Cache) Get(problemID, wantFingerprint string) ([]model.TestCase, bool) {
	path := c.entryPath(problemID)

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.removeLocked(path)
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.removeLocked(path)
		return nil, false
	}
	if entry.Fingerprint != wantFingerprint {
		// Stale relative to the store: never treated as authoritative.
		return nil, false
	}
	return entry.TestCases, true
}

// Put writes (or replaces) the cached test cases for problemID, evicting
// older entries if needed to stay under the disk budget. A write failure
// is swallowed: the cache is best-effort.
func (c *Cache) Put(problemID, fingerprint string, testCases []model.TestCase) {
	entry := model.CacheEntry{ProblemID: problemID, TestCases: testCases, Fingerprint: fingerprint, ExpiresAt: time.Now().Add(c.ttl)}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.entryPath(problemID)
	if err := c.makeRoom(int64(len(data))); err != nil {
		c.logger.Warn("test case cache eviction failed, skipping write", zap.Error(err))
		return
	}
	if info, statErr := os.Stat(path); statErr == nil {
		c.currentUsage -= info.Size() // the existing entry is about to be replaced
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return
	}
	c.currentUsage += int64(len(data))
}

// makeRoom evicts the least-recently-modified entries until currentUsage
// plus newSize fits under the disk budget, or reports an error if eviction
// cannot free enough room. An entry larger than the whole budget is
// accepted without evicting anything. currentUsage is the
// cache's own running total, kept in sync by Put and removeLocked; a
// directory listing is only needed when eviction actually has to happen.
func (c *Cache) makeRoom(newSize int64) error {
	if c.maxDiskUsage <= 0 || newSize > c.maxDiskUsage {
		return nil // unbounded, or caller accepts the overage for one entry
	}
	if c.currentUsage+newSize <= c.maxDiskUsage {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}
	type candidate struct {
		path    string
		size    int64
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{filepath.Join(c.dir, e.Name()), info.Size(), info.ModTime()})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.Before(candidates[j].modTime) })
	for _, cand := range candidates {
		if c.currentUsage+newSize <= c.maxDiskUsage {
			break
		}
		if err := os.Remove(cand.path); err == nil {
			c.currentUsage -= cand.size
		}
	}
	if c.currentUsage+newSize > c.maxDiskUsage {
		return fmt.Errorf("insufficient cache budget for %d bytes", newSize)
	}
	return nil
}

func (c *Cache) removeLocked(path string) {
	if info, err := os.Stat(path); err == nil {
		c.currentUsage -= info.Size()
	}
	_ = os.Remove(path)
}

func (c *Cache) entryPath(problemID string) string {
	safe := strings.ReplaceAll(problemID, string(filepath.Separator), "_")
	return filepath.Join(c.dir, safe+".json")
}
