package col

import (
	"encoding/hex"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Digest returns the hex BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint combines the digests of all sources in read order.
// Two trees built from identical files have identical fingerprints.
func (t *Tree) Fingerprint() string {
	h := blake3.New()
	for _, s := range t.Sources {
		_, _ = h.Write([]byte(s.Path))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(s.Digest))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalPath returns the absolute, symlink-free form of path. It is the
// key used for include guards and caches, and falls back to the absolute
// path when the file cannot be resolved.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
