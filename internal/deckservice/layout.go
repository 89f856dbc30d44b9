package deckservice

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var hashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidHash reports whether s looks like a content hash.
func ValidHash(s string) bool { return hashRe.MatchString(s) }

// OutputDir returns the output tree for hash under baseDir.
func OutputDir(baseDir, hash string) string { return filepath.Join(baseDir, hash) }

// StorePath returns the normalized store of hash under baseDir.
func StorePath(baseDir, hash string) string { return filepath.Join(baseDir, hash, StoreFile) }

// MediaPath returns the media directory of hash under baseDir.
func MediaPath(baseDir, hash string) string { return filepath.Join(baseDir, hash, MediaDir) }

// Extracted lists the content hashes with an output tree under baseDir,
// sorted. A missing baseDir yields no hashes.
func Extracted(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && ValidHash(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
