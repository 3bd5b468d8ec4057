package vfs

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// cloneTree copies src to dst, preferring a reflink (copy-on-write) clone
// when the host filesystem supports it and falling back to a plain
// recursive copy otherwise (spec.md §4.4 begin_session step 3).
func cloneTree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("vfs: create session parent dir: %w", err)
	}
	if err := reflinkTree(src, dst); err == nil {
		return nil
	}
	return copyTreeRecursive(src, dst)
}

// reflinkTree shells out to `cp --reflink=auto -a`, which clones via
// copy-on-write on filesystems that support it (btrfs, xfs with reflink,
// APFS) and transparently falls back to a normal copy on those that don't.
// A non-zero exit (missing `cp`, or a `cp` build without --reflink support)
// is reported so the caller can fall back to copyTreeRecursive itself.
func reflinkTree(src, dst string) error {
	cmd := exec.Command("cp", "--reflink=auto", "-a", src, dst)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("cp --reflink=auto: %w: %s", err, string(out))
	}
	return nil
}

func copyTreeRecursive(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return copyFile(p, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
