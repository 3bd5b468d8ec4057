package vfs

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// hashTree computes H(H(ordered concatenation over root of (relative_path,
// NUL, file_content)) || H(file_count)), hex-encoded, where H is SHA-256 and
// file_count is a big-endian uint64 (spec.md §4.4, "base_snapshot_hash"). Traversal is in sorted order so the hash is
// deterministic regardless of the underlying filesystem's directory order.
func hashTree(root string) (string, error) {
	var paths []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return emptyTreeHash(), nil
		}
		return "", err
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		h.Write([]byte(rel))
		h.Write([]byte{0})
		f, err := os.Open(filepath.Join(root, rel))
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}

	countHash := sha256.New()
	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], uint64(len(paths)))
	countHash.Write(countBuf[:])

	final := sha256.New()
	final.Write(h.Sum(nil))
	final.Write(countHash.Sum(nil))
	return hex.EncodeToString(final.Sum(nil)), nil
}

func emptyTreeHash() string {
	h := sha256.New()
	countHash := sha256.New()
	var countBuf [8]byte
	countHash.Write(countBuf[:])
	final := sha256.New()
	final.Write(h.Sum(nil))
	final.Write(countHash.Sum(nil))
	return hex.EncodeToString(final.Sum(nil))
}
