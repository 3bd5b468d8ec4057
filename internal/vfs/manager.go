// Package vfs implements the copy-on-write session VFS (C4): a private,
// writable working copy of a base directory per branch, committed back
// atomically through a staging directory or discarded on rollback.
package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brioproj/brio/internal/domain"
)

// SessionInfo is the bookkeeping record kept for a live session (spec.md
// §4.4 begin_session step 4).
type SessionInfo struct {
	BasePath         string
	SessionDir       string
	BaseSnapshotHash string
	CreatedAt        time.Time
}

// SandboxPolicy restricts which base paths a session may be opened against
// (spec.md §4.4, "sandbox policy").
type SandboxPolicy struct {
	AllowedRoots []string
}

func (p SandboxPolicy) allows(absPath string) bool {
	if len(p.AllowedRoots) == 0 {
		return true
	}
	for _, root := range p.AllowedRoots {
		if absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Manager owns the set of live sessions and the temp directory they live
// under. Operations on the session map are serialized by mu; file-system
// work for distinct sessions proceeds independently (spec.md §4.4
// "Concurrency").
type Manager struct {
	rootTemp string
	policy   SandboxPolicy

	mu       sync.Mutex
	sessions map[domain.SessionId]*SessionInfo
}

// NewManager creates a Manager rooted at rootTemp, recovering any orphaned
// session directories left behind by a previous process (spec.md §4.4
// "Orphan recovery").
func NewManager(rootTemp string, policy SandboxPolicy) (*Manager, error) {
	if err := os.MkdirAll(rootTemp, 0o755); err != nil {
		return nil, fmt.Errorf("vfs: create root_temp: %w", err)
	}
	m := &Manager{
		rootTemp: rootTemp,
		policy:   policy,
		sessions: make(map[domain.SessionId]*SessionInfo),
	}
	if err := m.recoverOrphans(); err != nil {
		return nil, err
	}
	return m, nil
}

// recoverOrphans scans root_temp and removes any directory not referenced
// by a live SessionInfo. Called once at startup; safe to call again since
// every session directory it could legitimately touch is already tracked
// in m.sessions by then.
func (m *Manager) recoverOrphans() error {
	entries, err := os.ReadDir(m.rootTemp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vfs: scan root_temp: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, live := m.sessions[domain.SessionId(entry.Name())]; live {
			continue
		}
		_ = os.RemoveAll(filepath.Join(m.rootTemp, entry.Name()))
	}
	return nil
}

// canonicalize resolves basePath to an absolute path and checks it against
// the sandbox policy (spec.md §4.4 begin_session step 1).
func (m *Manager) canonicalize(basePath string) (string, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("vfs: resolve base path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		abs = resolved
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("vfs: resolve base path: %w", err)
	}
	if !m.policy.allows(abs) {
		return "", &domain.PolicyViolationError{Reason: fmt.Sprintf("%s is outside the sandbox", abs)}
	}
	return abs, nil
}

// BeginSession opens a private, writable copy of basePath and returns the
// new session's id (spec.md §4.4 begin_session).
func (m *Manager) BeginSession(basePath string) (domain.SessionId, error) {
	abs, err := m.canonicalize(basePath)
	if err != nil {
		return "", err
	}

	baseHash, err := hashTree(abs)
	if err != nil {
		return "", fmt.Errorf("vfs: hash base path: %w", err)
	}

	sessionID := domain.NewSessionId()
	sessionDir := filepath.Join(m.rootTemp, sessionID.String())
	if err := cloneTree(abs, sessionDir); err != nil {
		return "", fmt.Errorf("vfs: clone session dir: %w", err)
	}

	m.mu.Lock()
	m.sessions[sessionID] = &SessionInfo{
		BasePath:         abs,
		SessionDir:       sessionDir,
		BaseSnapshotHash: baseHash,
		CreatedAt:        time.Now(),
	}
	m.mu.Unlock()

	return sessionID, nil
}

// SessionDir returns the live session's writable working directory, for
// callers (the executor) that need to point agents at it.
func (m *Manager) SessionDir(id domain.SessionId) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[id]
	if !ok {
		return "", &domain.NotFoundError{Kind: "session", ID: id.String()}
	}
	return info.SessionDir, nil
}

// BasePath returns the base directory a live session was opened against.
func (m *Manager) BasePath(id domain.SessionId) (string, error) {
	m.mu.Lock()
	info, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return "", &domain.NotFoundError{Kind: "session", ID: id.String()}
	}
	return info.BasePath, nil
}

// SessionChanges computes a live session's pending file changes against its
// base without committing them, for callers (the lifecycle manager's merge
// step) that need to preview a branch's delta before a commit decision.
func (m *Manager) SessionChanges(id domain.SessionId) ([]domain.FileChange, error) {
	m.mu.Lock()
	info, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, &domain.NotFoundError{Kind: "session", ID: id.String()}
	}
	return computeChanges(info.BasePath, info.SessionDir)
}

// ReadBase reads path relative to a session's base directory, for merge
// strategies that need the common-ancestor content (spec.md §4.2
// three-way merge).
func (m *Manager) ReadBase(id domain.SessionId, path string) (string, bool, error) {
	m.mu.Lock()
	info, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return "", false, &domain.NotFoundError{Kind: "session", ID: id.String()}
	}
	return readIfExists(filepath.Join(info.BasePath, path))
}

// ReadSession reads path relative to a session's working directory.
func (m *Manager) ReadSession(id domain.SessionId, path string) (string, bool, error) {
	m.mu.Lock()
	info, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return "", false, &domain.NotFoundError{Kind: "session", ID: id.String()}
	}
	return readIfExists(filepath.Join(info.SessionDir, path))
}

func readIfExists(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// RollbackSession discards a session's working directory without touching
// the base (spec.md §4.4 rollback_session).
func (m *Manager) RollbackSession(id domain.SessionId) error {
	m.mu.Lock()
	info, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return &domain.NotFoundError{Kind: "session", ID: id.String()}
	}
	return os.RemoveAll(info.SessionDir)
}

// CommitSession detects external mutation of the base since BeginSession,
// computes the session's file changes, and applies them atomically via a
// staging directory (spec.md §4.4 commit_session). Returns the applied
// change set.
func (m *Manager) CommitSession(id domain.SessionId) ([]domain.FileChange, error) {
	m.mu.Lock()
	info, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, &domain.NotFoundError{Kind: "session", ID: id.String()}
	}

	release, err := acquireBaseLock(info.BasePath)
	if err != nil {
		return nil, err
	}
	defer release()

	currentHash, err := hashTree(info.BasePath)
	if err != nil {
		return nil, fmt.Errorf("vfs: re-hash base path: %w", err)
	}
	if currentHash != info.BaseSnapshotHash {
		return nil, &domain.ExternalMutationError{
			BasePath:     info.BasePath,
			OriginalHash: info.BaseSnapshotHash,
			CurrentHash:  currentHash,
		}
	}

	changes, err := computeChanges(info.BasePath, info.SessionDir)
	if err != nil {
		return nil, fmt.Errorf("vfs: compute changes: %w", err)
	}

	if err := applyChanges(info.BasePath, info.SessionDir, changes); err != nil {
		return nil, err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := os.RemoveAll(info.SessionDir); err != nil {
		return changes, fmt.Errorf("vfs: remove session dir after commit: %w", err)
	}
	return changes, nil
}

// applyChanges stages every Added/Modified file, then finalizes by deleting
// removed paths in the base and renaming staged files into place (spec.md
// §4.4 commit_session step 3).
func applyChanges(basePath, sessionDir string, changes []domain.FileChange) error {
	stagingDir := filepath.Join(basePath, fmt.Sprintf(".commit_%s", uuid.NewString()))
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("vfs: create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	type staged struct{ from, to string }
	var toRename []staged

	for _, c := range changes {
		if c.Kind == domain.ChangeDeleted {
			continue
		}
		src := filepath.Join(sessionDir, c.Path)
		dst := filepath.Join(stagingDir, c.Path)
		if err := copyFile(src, dst, 0o644); err != nil {
			return fmt.Errorf("vfs: stage %s: %w", c.Path, err)
		}
		toRename = append(toRename, staged{from: dst, to: filepath.Join(basePath, c.Path)})
	}

	for _, c := range changes {
		if c.Kind != domain.ChangeDeleted {
			continue
		}
		if err := os.RemoveAll(filepath.Join(basePath, c.Path)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("vfs: delete %s: %w", c.Path, err)
		}
	}

	for _, s := range toRename {
		if info, err := os.Stat(s.to); err == nil && info.IsDir() {
			if err := os.RemoveAll(s.to); err != nil {
				return fmt.Errorf("vfs: clear conflicting directory at %s: %w", s.to, err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(s.to), 0o755); err != nil {
			return fmt.Errorf("vfs: create parent for %s: %w", s.to, err)
		}
		if err := os.Rename(s.from, s.to); err != nil {
			return fmt.Errorf("vfs: finalize %s: %w", s.to, err)
		}
	}
	return nil
}
