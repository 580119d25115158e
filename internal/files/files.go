// Package files stores message attachments and profile pictures. The chat
// core only deals in opaque refs; attaching a file is two-phase: the file is
// stored first, then the message row references it. Orphans from a failed
// second phase are reclaimed by Sweep.
package files

import (
	"fmt"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

type Store interface {
	// Put stores data under a name derived from scope (typically the
	// uploading user's id) and the original filename's extension, and
	// returns the ref.
	Put(data []byte, originalName, scope string) (string, error)
	// Resolve turns a ref into a URL path clients can fetch.
	Resolve(ref string) (string, error)
	// Remove deletes a stored file. Removing a missing ref is not an error.
	Remove(ref string) error
}

// DiskStore keeps files in a flat directory and serves them under baseURL.
type DiskStore struct {
	root    string
	baseURL string
}

func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *DiskStore) Put(data []byte, originalName, scope string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(originalName), ".")
	if ext == "" {
		ext = "bin"
	}
	nonce := time.Now().UnixNano() + rand.Int63n(1e9)
	ref := fmt.Sprintf("%s-%d.%s", scope, nonce, ext)

	if err := os.WriteFile(filepath.Join(s.root, ref), data, 0o644); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *DiskStore) Resolve(ref string) (string, error) {
	// Refs are single path segments; anything else never came from Put.
	if ref == "" || ref != path.Base(ref) {
		return "", fmt.Errorf("invalid file ref %q", ref)
	}
	return s.baseURL + "/" + ref, nil
}

func (s *DiskStore) Remove(ref string) error {
	if ref != path.Base(ref) {
		return fmt.Errorf("invalid file ref %q", ref)
	}
	err := os.Remove(filepath.Join(s.root, ref))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Sweep removes files older than cutoff that inUse does not claim. Meant to
// run as a periodic cleanup task, outside any request path.
func (s *DiskStore) Sweep(cutoff time.Time, inUse func(ref string) bool) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) || inUse(entry.Name()) {
			continue
		}
		os.Remove(filepath.Join(s.root, entry.Name()))
	}
	return nil
}
