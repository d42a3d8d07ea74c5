// Package face holds the biometric collaborators of the check-in flow:
// the on-disk reference image store and the external matcher capability.
//
// Reference images live under <root>/<phone>/reference_N.jpg with N in
// 1..MaxReferences. Registration appends at the next free index; deletion
// renumbers the remaining images so indexes stay contiguous.
package face

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// MaxReferences is the maximum number of reference images per user.
const MaxReferences = 3

var (
	// ErrNoReferences means no reference images exist for the phone.
	ErrNoReferences = errors.New("no reference images registered")
	// ErrTooManyReferences means the per-user reference slots are full.
	ErrTooManyReferences = errors.New("maximum reference images reached")
	// ErrReferenceNotFound means the requested reference index is absent.
	ErrReferenceNotFound = errors.New("reference image not found")
)

// Store manages per-phone reference image directories under a root path.
type Store struct {
	root string
}

// NewStore creates (if needed) and wraps the root reference directory.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// userDir returns the directory holding one phone's references.
func (s *Store) userDir(phone string) string {
	return filepath.Join(s.root, phone)
}

// refPath returns the path of reference image index (1-based).
func (s *Store) refPath(phone string, index int) string {
	return filepath.Join(s.userDir(phone), fmt.Sprintf("reference_%d.jpg", index))
}

// List returns the existing reference image paths for phone, sorted by
// index. A missing directory is an empty list, not an error.
func (s *Store) List(phone string) ([]string, error) {
	if _, err := os.Stat(s.userDir(phone)); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var out []string
	for i := 1; i <= MaxReferences; i++ {
		p := s.refPath(phone, i)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Count returns how many reference images are registered for phone.
func (s *Store) Count(phone string) (int, error) {
	refs, err := s.List(phone)
	if err != nil {
		return 0, err
	}
	return len(refs), nil
}

// Path returns the path of reference image index for phone, or
// ErrReferenceNotFound.
func (s *Store) Path(phone string, index int) (string, error) {
	if index < 1 || index > MaxReferences {
		return "", ErrReferenceNotFound
	}
	p := s.refPath(phone, index)
	if _, err := os.Stat(p); err != nil {
		return "", ErrReferenceNotFound
	}
	return p, nil
}

// Add stores the content of r as the next reference image for phone and
// returns its 1-based index. Fails with ErrTooManyReferences when all
// slots are taken.
func (s *Store) Add(phone string, r io.Reader) (int, error) {
	refs, err := s.List(phone)
	if err != nil {
		return 0, err
	}
	if len(refs) >= MaxReferences {
		return 0, ErrTooManyReferences
	}
	if err := os.MkdirAll(s.userDir(phone), 0o755); err != nil {
		return 0, err
	}

	index := len(refs) + 1
	f, err := os.Create(s.refPath(phone, index))
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return 0, err
	}
	return index, nil
}

// Remove deletes reference image index for phone and renumbers the
// remaining images so they stay contiguous from 1.
func (s *Store) Remove(phone string, index int) error {
	p, err := s.Path(phone, index)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return err
	}
	// Shift higher-numbered references down one slot.
	for i := index + 1; i <= MaxReferences; i++ {
		src := s.refPath(phone, i)
		if _, err := os.Stat(src); err != nil {
			break
		}
		if err := os.Rename(src, s.refPath(phone, i-1)); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll deletes every reference image for phone (user deletion).
func (s *Store) RemoveAll(phone string) error {
	err := os.RemoveAll(s.userDir(phone))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
