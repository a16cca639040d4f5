package hierarchy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

// Rule set sources reported by Stats.
const (
	SourceNone     = "none"
	SourceFile     = "file"
	SourceDatabase = "database"
)

// RuleMirror persists the active rule set to the hierarchy_rules table and
// reads it back when the rule file is unavailable.
type RuleMirror interface {
	ReplaceRules(ctx context.Context, rules []domain.Rule) error
	LoadRules(ctx context.Context) ([]domain.Rule, error)
}

// BackupStore is the archive the repository writes rule-file backups to.
type BackupStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// RuleRepository owns the cached rule set loaded from the rule file. The
// cache is refreshed by ReloadIfStale when the file's modification time
// moves; an unchanged file is a no-op.
type RuleRepository struct {
	path   string
	mirror RuleMirror
	now    func() time.Time

	mu                  sync.RWMutex
	all                 []domain.Rule
	active              []domain.Rule
	version             string
	loadedAt            time.Time
	fileMtime           time.Time
	failedMtime         time.Time
	fingerprint         uint64
	mirroredFingerprint uint64
	source              string
	lastErr             error
}

// RepositoryOption customises a RuleRepository.
type RepositoryOption func(*RuleRepository)

// WithClock overrides the repository clock.
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *RuleRepository) { r.now = now }
}

// NewRuleRepository creates a repository for the rule file at path. mirror
// may be nil, in which case nothing is mirrored and there is no database
// fallback.
func NewRuleRepository(path string, mirror RuleMirror, opts ...RepositoryOption) *RuleRepository {
	r := &RuleRepository{path: path, mirror: mirror, now: time.Now, source: SourceNone}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the rule file path.
func (r *RuleRepository) Path() string { return r.path }

// Rules returns the active rules in descending priority, reloading first if
// the file changed. Reload failures are logged and the previous rule set is
// kept; with no usable rule set the result is empty and resolution runs in
// degraded mode.
func (r *RuleRepository) Rules(ctx context.Context) []domain.Rule {
	if _, err := r.ReloadIfStale(ctx); err != nil {
		logger.Warn("hierarchy: rule reload failed, keeping previous rule set",
			"path", r.path, "error", err)
	}

	r.mu.RLock()
	empty := len(r.active) == 0
	r.mu.RUnlock()
	if empty {
		if err := r.loadFromMirror(ctx); err != nil {
			logger.Warn("hierarchy: database rule fallback failed", "error", err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Rule, len(r.active))
	copy(out, r.active)
	return out
}

// ReloadIfStale reloads the rule file when its modification time is after
// the cache timestamp or differs from the last seen mtime. A file that
// failed to load is not retried until its mtime changes. It reports
// whether a reload happened.
func (r *RuleRepository) ReloadIfStale(ctx context.Context) (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("rule file %s: %w", r.path, err)
		}
		return false, fmt.Errorf("stat rule file: %w", err)
	}

	r.mu.RLock()
	fresh := r.source == SourceFile &&
		!info.ModTime().After(r.loadedAt) &&
		info.ModTime().Equal(r.fileMtime)
	failed := r.lastErr != nil && info.ModTime().Equal(r.failedMtime)
	r.mu.RUnlock()
	if failed {
		return false, nil
	}
	if fresh {
		return false, nil
	}

	if err := r.load(ctx, info.ModTime()); err != nil {
		return false, err
	}
	return true, nil
}

// Reload forces a reload of the rule file regardless of its mtime.
func (r *RuleRepository) Reload(ctx context.Context) error {
	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("stat rule file: %w", err)
	}
	return r.load(ctx, info.ModTime())
}

func (r *RuleRepository) load(ctx context.Context, mtime time.Time) error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read rule file: %w", err)
	}

	rf, err := ParseRuleFile(data)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Source = r.path
		}
		r.mu.Lock()
		r.lastErr = err
		r.failedMtime = mtime
		r.mu.Unlock()
		return err
	}

	fp := xxh3.Hash(data)
	active := rf.Active()

	r.mu.Lock()
	r.all = rf.Rules
	r.active = active
	r.version = rf.Version
	r.loadedAt = r.now()
	r.fileMtime = mtime
	r.fingerprint = fp
	r.source = SourceFile
	r.lastErr = nil
	r.failedMtime = time.Time{}
	needsMirror := r.mirror != nil && r.mirroredFingerprint != fp
	r.mu.Unlock()

	logger.Info("hierarchy: rules loaded",
		"path", r.path, "version", rf.Version, "total", len(rf.Rules), "active", len(active))

	if needsMirror {
		if err := r.mirror.ReplaceRules(ctx, active); err != nil {
			return fmt.Errorf("mirror rules: %w", err)
		}
		r.mu.Lock()
		r.mirroredFingerprint = fp
		r.mu.Unlock()
	}
	return nil
}

func (r *RuleRepository) loadFromMirror(ctx context.Context) error {
	if r.mirror == nil {
		return nil
	}
	rules, err := r.mirror.LoadRules(ctx)
	if err != nil {
		return err
	}
	var active []domain.Rule
	for _, rule := range rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	if len(active) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.active) > 0 {
		return nil
	}
	r.all = rules
	r.active = SortByPriority(active)
	r.loadedAt = r.now()
	r.source = SourceDatabase
	logger.Info("hierarchy: rules loaded from database", "active", len(active))
	return nil
}

// RuleStats summarises the cached rule set.
type RuleStats struct {
	TotalRules      int            `json:"total_rules"`
	ActiveRules     int            `json:"active_rules"`
	Version         string         `json:"version,omitempty"`
	RulesByPriority map[string]int `json:"rules_by_priority"`
	RulesByPattern  map[string]int `json:"rules_by_pattern_type"`
	FallbackRules   int            `json:"fallback_rules"`
	Source          string         `json:"source"`
	CacheLoadedAt   *time.Time     `json:"cache_loaded_at,omitempty"`
	FileModifiedAt  *time.Time     `json:"file_modified_at,omitempty"`
	Fingerprint     string         `json:"fingerprint,omitempty"`
	LastReloadError string         `json:"last_reload_error,omitempty"`
}

// Stats returns counts over the cached rule set. Priority buckets are
// hundreds-wide ("900-999", "1000-1099").
func (r *RuleRepository) Stats() RuleStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := RuleStats{
		TotalRules:      len(r.all),
		ActiveRules:     len(r.active),
		Version:         r.version,
		RulesByPriority: make(map[string]int),
		RulesByPattern:  make(map[string]int),
		Source:          r.source,
	}
	for _, rule := range r.active {
		st.RulesByPriority[PriorityBucket(rule.Priority)]++
		st.RulesByPattern[string(rule.PatternType)]++
		if rule.IsFallback() {
			st.FallbackRules++
		}
	}
	if !r.loadedAt.IsZero() {
		t := r.loadedAt
		st.CacheLoadedAt = &t
	}
	if !r.fileMtime.IsZero() {
		t := r.fileMtime
		st.FileModifiedAt = &t
	}
	if r.fingerprint != 0 {
		st.Fingerprint = fmt.Sprintf("%016x", r.fingerprint)
	}
	if r.lastErr != nil {
		st.LastReloadError = r.lastErr.Error()
	}
	return st
}

// PriorityBucket names the hundreds band a priority falls in.
func PriorityBucket(p int) string {
	lo := (p / 100) * 100
	return fmt.Sprintf("%d-%d", lo, lo+99)
}

const backupPrefix = "rule-backups/hierarchy_rules_"

// Backup copies the current rule file into store under a timestamped key
// carrying the content fingerprint, then prunes all but the newest keep
// backups. When the newest backup already has the same fingerprint nothing
// is written and its key is returned.
func (r *RuleRepository) Backup(ctx context.Context, store BackupStore, keep int) (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("read rule file: %w", err)
	}
	fp := fmt.Sprintf("%016x", xxh3.Hash(data))

	keys, err := store.List(ctx, backupPrefix)
	if err != nil {
		return "", fmt.Errorf("list backups: %w", err)
	}
	sort.Strings(keys)

	if n := len(keys); n > 0 && strings.HasSuffix(keys[n-1], "_"+fp+".yaml") {
		return keys[n-1], nil
	}

	key := backupPrefix + r.now().UTC().Format("20060102_150405") + "_" + fp + ".yaml"
	if err := store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	keys = append(keys, key)

	if keep > 0 && len(keys) > keep {
		for _, old := range keys[:len(keys)-keep] {
			if err := store.Delete(ctx, old); err != nil {
				return key, fmt.Errorf("prune backup %s: %w", old, err)
			}
		}
	}
	logger.Info("hierarchy: rule file backed up", "key", key)
	return key, nil
}
