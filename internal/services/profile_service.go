package services

import (
	"database/sql"
	"fmt"

	"github.com/scribe-blog/scribe-be/internal/images"
	"github.com/scribe-blog/scribe-be/internal/models"
)

// ProfileServiceProvider defines the interface for profile services.
type ProfileServiceProvider interface {
	GetProfile(userID string) (models.Profile, error)
	ReplaceAvatar(userID, newImage string) error
	ResetAvatar(userID string) error
	ReferencedImages() (map[string]bool, error)
}

// ProfileService provides business logic for profiles and their avatar
// files.
type ProfileService struct {
	db           *sql.DB
	store        *images.Store
	eventService EventServiceProvider
}

// NewProfileService creates a new ProfileService.
func NewProfileService(db *sql.DB, store *images.Store, eventService EventServiceProvider) *ProfileService {
	return &ProfileService{db: db, store: store, eventService: eventService}
}

// GetProfile retrieves the profile row for a user.
func (s *ProfileService) GetProfile(userID string) (models.Profile, error) {
	var profile models.Profile
	row := s.db.QueryRow("SELECT user_id, image FROM profiles WHERE user_id = ?", userID)
	err := row.Scan(&profile.UserID, &profile.Image)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Profile{}, fmt.Errorf("profile for user %s: %w", userID, ErrNotFound)
		}
		return models.Profile{}, err
	}
	return profile, nil
}

// ReplaceAvatar points the profile at a newly uploaded file. The previous
// file is deleted first unless it is the default avatar, and the new file
// is resized in place afterwards. Filesystem failures propagate.
func (s *ProfileService) ReplaceAvatar(userID, newImage string) error {
	profile, err := s.GetProfile(userID)
	if err != nil {
		return err
	}
	if newImage == profile.Image {
		return nil
	}

	if profile.Image != models.DefaultAvatar {
		if err := s.store.Cleanup(profile.Image); err != nil {
			return fmt.Errorf("failed to remove old avatar: %w", err)
		}
	}

	if _, err := s.db.Exec("UPDATE profiles SET image = ? WHERE user_id = ?", newImage, userID); err != nil {
		return err
	}

	if err := s.store.Resize(newImage); err != nil {
		return err
	}

	s.eventService.CreateEvent("profile.avatar.update", "info", fmt.Sprintf("Avatar updated for user %s", userID), nil)
	return nil
}

// ResetAvatar returns the profile to the default avatar, deleting the old
// file. Resetting an already-default profile is a no-op; the default
// avatar file itself is never deleted.
func (s *ProfileService) ResetAvatar(userID string) error {
	profile, err := s.GetProfile(userID)
	if err != nil {
		return err
	}
	if profile.Image == models.DefaultAvatar {
		return nil
	}

	if err := s.store.Cleanup(profile.Image); err != nil {
		return fmt.Errorf("failed to remove old avatar: %w", err)
	}

	if _, err := s.db.Exec("UPDATE profiles SET image = ? WHERE user_id = ?", models.DefaultAvatar, userID); err != nil {
		return err
	}

	s.eventService.CreateEvent("profile.avatar.reset", "info", fmt.Sprintf("Avatar reset for user %s", userID), nil)
	return nil
}

// ReferencedImages returns the set of filenames any profile points at,
// always including the default avatar. The upload sweeper treats files
// outside this set as orphans.
func (s *ProfileService) ReferencedImages() (map[string]bool, error) {
	rows, err := s.db.Query("SELECT DISTINCT image FROM profiles")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	referenced := map[string]bool{models.DefaultAvatar: true}
	for rows.Next() {
		var image string
		if err := rows.Scan(&image); err != nil {
			return nil, err
		}
		referenced[image] = true
	}
	return referenced, rows.Err()
}
