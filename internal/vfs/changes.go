package vfs

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/brioproj/brio/internal/domain"
)

// computeChanges compares sessionDir against baseDir and returns the set of
// Added/Modified/Deleted file changes (spec.md §4.4 commit_session step 2):
// a size fast-path short-circuits unchanged files, falling back to a SHA-256
// comparison only when sizes match.
func computeChanges(baseDir, sessionDir string) ([]domain.FileChange, error) {
	baseFiles, err := listFiles(baseDir)
	if err != nil {
		return nil, err
	}
	sessionFiles, err := listFiles(sessionDir)
	if err != nil {
		return nil, err
	}

	var paths []string
	seen := make(map[string]bool)
	for p := range baseFiles {
		paths = append(paths, p)
		seen[p] = true
	}
	for p := range sessionFiles {
		if !seen[p] {
			paths = append(paths, p)
			seen[p] = true
		}
	}
	sort.Strings(paths)

	var changes []domain.FileChange
	for _, rel := range paths {
		baseInfo, inBase := baseFiles[rel]
		sessionInfo, inSession := sessionFiles[rel]

		switch {
		case inSession && !inBase:
			changes = append(changes, domain.FileChange{Kind: domain.ChangeAdded, Path: rel})
		case inBase && !inSession:
			changes = append(changes, domain.FileChange{Kind: domain.ChangeDeleted, Path: rel})
		default:
			differs, err := filesDiffer(
				filepath.Join(baseDir, rel), baseInfo.size,
				filepath.Join(sessionDir, rel), sessionInfo.size,
			)
			if err != nil {
				return nil, err
			}
			if differs {
				changes = append(changes, domain.FileChange{Kind: domain.ChangeModified, Path: rel})
			}
		}
	}
	return changes, nil
}

type fileStat struct{ size int64 }

func listFiles(root string) (map[string]fileStat, error) {
	out := make(map[string]fileStat)
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out[rel] = fileStat{size: info.Size()}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func filesDiffer(aPath string, aSize int64, bPath string, bSize int64) (bool, error) {
	if aSize != bSize {
		return true, nil
	}
	aSum, err := fileSHA256(aPath)
	if err != nil {
		return false, err
	}
	bSum, err := fileSHA256(bPath)
	if err != nil {
		return false, err
	}
	return aSum != bSum, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return string(h.Sum(nil)), nil
}
