// Package images manages avatar files in the upload directory: in-place
// downscaling of oversized uploads, removal of superseded files, and the
// default avatar every profile starts with.
package images

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/scribe-blog/scribe-be/internal/models"
)

// MaxDimension is the longest side an avatar may have after processing.
const MaxDimension = 300

// Store performs file operations inside a fixed upload directory.
type Store struct {
	uploadPath string
}

// NewStore creates a Store rooted at uploadPath, creating the directory if
// needed.
func NewStore(uploadPath string) (*Store, error) {
	if err := os.MkdirAll(uploadPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{uploadPath: uploadPath}, nil
}

// Path returns the absolute location of a stored file.
func (s *Store) Path(name string) string {
	return filepath.Join(s.uploadPath, name)
}

// Resize shrinks the named image in place so that neither dimension exceeds
// MaxDimension, preserving aspect ratio. Images already within bounds are
// left untouched. Open or decode failures propagate to the caller.
func (s *Store) Resize(name string) error {
	path := s.Path(name)

	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", name, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= MaxDimension && bounds.Dy() <= MaxDimension {
		return nil
	}

	resized := imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	if err := imaging.Save(resized, path); err != nil {
		return fmt.Errorf("failed to save resized image %s: %w", name, err)
	}
	return nil
}

// Cleanup removes the named file unconditionally. A missing file is an
// error; callers guard against removing the default avatar.
func (s *Store) Cleanup(name string) error {
	return os.Remove(s.Path(name))
}

// EnsureDefaultAvatar guarantees the default avatar exists in the upload
// directory, writing a flat placeholder if it is absent. The file must be
// present at deploy time and is never deleted afterwards.
func (s *Store) EnsureDefaultAvatar() error {
	path := s.Path(models.DefaultAvatar)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	placeholder := imaging.New(MaxDimension, MaxDimension, color.NRGBA{R: 0x9a, G: 0xa7, B: 0xb0, A: 0xff})
	if err := imaging.Save(placeholder, path); err != nil {
		return fmt.Errorf("failed to write default avatar: %w", err)
	}
	return nil
}
