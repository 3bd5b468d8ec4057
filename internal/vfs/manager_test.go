package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brioproj/brio/internal/domain"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "base")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatalf("mkdir base: %v", err)
	}
	rootTemp := filepath.Join(root, "sessions")
	m, err := NewManager(rootTemp, SandboxPolicy{AllowedRoots: []string{root}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, base
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBeginSession_RejectsOutsideSandbox(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(filepath.Join(root, "sessions"), SandboxPolicy{AllowedRoots: []string{filepath.Join(root, "allowed")}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	outside := filepath.Join(root, "elsewhere")
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	_, err = m.BeginSession(outside)
	if err == nil {
		t.Fatal("expected a policy violation")
	}
	if _, ok := err.(*domain.PolicyViolationError); !ok {
		t.Errorf("err = %T, want *domain.PolicyViolationError", err)
	}
}

func TestRollbackSession_LeavesBaseUntouched(t *testing.T) {
	m, base := newTestManager(t)
	writeFile(t, filepath.Join(base, "a.txt"), "hello")

	id, err := m.BeginSession(base)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	sessionDir, err := m.SessionDir(id)
	if err != nil {
		t.Fatalf("SessionDir: %v", err)
	}
	writeFile(t, filepath.Join(sessionDir, "a.txt"), "modified")
	writeFile(t, filepath.Join(sessionDir, "new.txt"), "new content")

	if err := m.RollbackSession(id); err != nil {
		t.Fatalf("RollbackSession: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(base, "a.txt"))
	if err != nil {
		t.Fatalf("read base a.txt: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("base a.txt = %q, want unchanged %q", content, "hello")
	}
	if _, err := os.Stat(filepath.Join(base, "new.txt")); !os.IsNotExist(err) {
		t.Error("new.txt leaked into base after rollback")
	}
	if _, err := os.Stat(sessionDir); !os.IsNotExist(err) {
		t.Error("session directory should be removed after rollback")
	}
}

func TestCommitSession_AppliesAddedModifiedDeleted(t *testing.T) {
	m, base := newTestManager(t)
	writeFile(t, filepath.Join(base, "keep.txt"), "keep")
	writeFile(t, filepath.Join(base, "modify.txt"), "old")
	writeFile(t, filepath.Join(base, "remove.txt"), "bye")

	id, err := m.BeginSession(base)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	sessionDir, err := m.SessionDir(id)
	if err != nil {
		t.Fatalf("SessionDir: %v", err)
	}

	writeFile(t, filepath.Join(sessionDir, "modify.txt"), "new")
	writeFile(t, filepath.Join(sessionDir, "added.txt"), "brand new")
	if err := os.Remove(filepath.Join(sessionDir, "remove.txt")); err != nil {
		t.Fatal(err)
	}

	changes, err := m.CommitSession(id)
	if err != nil {
		t.Fatalf("CommitSession: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("changes = %+v, want 3", changes)
	}

	assertContent := func(path, want string) {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	assertContent(filepath.Join(base, "keep.txt"), "keep")
	assertContent(filepath.Join(base, "modify.txt"), "new")
	assertContent(filepath.Join(base, "added.txt"), "brand new")
	if _, err := os.Stat(filepath.Join(base, "remove.txt")); !os.IsNotExist(err) {
		t.Error("remove.txt should have been deleted from base")
	}
	if _, err := os.Stat(sessionDir); !os.IsNotExist(err) {
		t.Error("session directory should be removed after commit")
	}
}

func TestCommitSession_DetectsExternalMutation(t *testing.T) {
	m, base := newTestManager(t)
	writeFile(t, filepath.Join(base, "a.txt"), "original")

	id, err := m.BeginSession(base)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}

	// Mutate the base directly, outside the session.
	writeFile(t, filepath.Join(base, "a.txt"), "mutated externally")

	_, err = m.CommitSession(id)
	if err == nil {
		t.Fatal("expected an external mutation error")
	}
	if _, ok := err.(*domain.ExternalMutationError); !ok {
		t.Errorf("err = %T, want *domain.ExternalMutationError", err)
	}
}

func TestCommitSession_UnknownSession(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CommitSession(domain.NewSessionId())
	if _, ok := err.(*domain.NotFoundError); !ok {
		t.Errorf("err = %T, want *domain.NotFoundError", err)
	}
}

func TestNewManager_RecoversOrphanedSessionDirs(t *testing.T) {
	root := t.TempDir()
	rootTemp := filepath.Join(root, "sessions")
	if err := os.MkdirAll(filepath.Join(rootTemp, "orphan-id"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(rootTemp, "orphan-id", "leftover.txt"), "x")

	if _, err := NewManager(rootTemp, SandboxPolicy{}); err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rootTemp, "orphan-id")); !os.IsNotExist(err) {
		t.Error("orphaned session directory should have been removed at startup")
	}
}
