package watcher

import (
	"hash"
	"hash/fnv"
	"io/fs"
	"path/filepath"
)

// fingerprint walks root and folds (path, size, modtime) of every
// non-ignored entry into a single hash. It is the fallback change
// detector used when fsnotify can't be initialized (network mounts,
// restricted sandboxes, unsupported platforms): two scans with the same
// fingerprint saw the same tree, so there is nothing to wake the caller
// for.
func fingerprint(root string, ignore func(relPath string, isDir bool) bool) (string, error) {
	h := fnv.New64a()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		if ignore(relPath, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}

		_, _ = h.Write([]byte(relPath))
		_, _ = h.Write([]byte{0})
		if !d.IsDir() {
			writeInt64(h, info.Size())
			writeInt64(h, info.ModTime().UnixNano())
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return string(h.Sum(nil)), nil
}

func writeInt64(h hash.Hash, v int64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	_, _ = h.Write(buf[:])
}
