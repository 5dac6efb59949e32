package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/scribe-blog/scribe-be/internal/auth"
	"github.com/scribe-blog/scribe-be/internal/forms"
	"github.com/scribe-blog/scribe-be/internal/images"
	"github.com/scribe-blog/scribe-be/internal/services"
)

// maxUploadBytes bounds a profile submission including the avatar file.
const maxUploadBytes = 10 << 20

// ProfileHandler handles the profile edit form for the current user.
type ProfileHandler struct {
	users    services.UserServiceProvider
	profiles services.ProfileServiceProvider
	store    *images.Store
	secure   bool
}

// NewProfileHandler creates a new ProfileHandler. secure controls the
// Secure flag on issued CSRF cookies.
func NewProfileHandler(users services.UserServiceProvider, profiles services.ProfileServiceProvider, store *images.Store, secure bool) *ProfileHandler {
	return &ProfileHandler{users: users, profiles: profiles, store: store, secure: secure}
}

// IdentityPayload defines the editable scalar fields on the user row.
type IdentityPayload struct {
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// Show returns the current user, their profile and a CSRF token for the
// edit form.
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	user, err := h.users.GetUserByID(claims.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("User from token not found in DB")
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	profile, err := h.profiles.GetProfile(claims.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to load profile")
		http.Error(w, "Failed to load profile", http.StatusInternalServerError)
		return
	}

	token := forms.IssueCSRF(w, h.secure)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user":      user,
		"icon":      profile.IconPath(),
		"csrfToken": token,
	})
}

// Update handles the multipart profile submission: identity fields with
// uniqueness checks, and either a new avatar upload or an explicit removal.
// Every accepted outcome ends in a redirect to the profile page.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	payload := IdentityPayload{
		Username:  strings.TrimSpace(r.FormValue("username")),
		Email:     strings.TrimSpace(r.FormValue("email")),
		FirstName: strings.TrimSpace(r.FormValue("first_name")),
		LastName:  strings.TrimSpace(r.FormValue("last_name")),
	}

	fieldErrors := forms.Check(payload)
	if fieldErrors == nil {
		fieldErrors = forms.Errors{}
	}
	if _, taken := fieldErrors["username"]; !taken {
		if dup, err := h.users.IsUsernameTaken(payload.Username, claims.UserID); err != nil {
			http.Error(w, "Failed to validate username", http.StatusInternalServerError)
			return
		} else if dup {
			fieldErrors["username"] = "this username is already in use"
		}
	}
	if _, taken := fieldErrors["email"]; !taken {
		if dup, err := h.users.IsEmailTaken(payload.Email, claims.UserID); err != nil {
			http.Error(w, "Failed to validate email", http.StatusInternalServerError)
			return
		} else if dup {
			fieldErrors["email"] = "this email is already in use"
		}
	}
	if len(fieldErrors) > 0 {
		forms.WriteErrors(w, fieldErrors)
		return
	}

	// Step 1: write the scalar fields to the user row.
	if _, err := h.users.UpdateIdentity(claims.UserID, payload.Username, payload.Email, payload.FirstName, payload.LastName); err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to update user identity")
		http.Error(w, "Failed to update profile", http.StatusInternalServerError)
		return
	}

	// Step 2: avatar. A new upload supersedes the removal flag.
	file, header, err := r.FormFile("icon")
	switch {
	case err == nil:
		defer file.Close()
		name, saveErr := h.saveUpload(file, header.Filename)
		if saveErr != nil {
			log.Error().Err(saveErr).Str("user_id", claims.UserID).Msg("Failed to store uploaded avatar")
			http.Error(w, "Failed to store avatar", http.StatusInternalServerError)
			return
		}
		if err := h.profiles.ReplaceAvatar(claims.UserID, name); err != nil {
			log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to replace avatar")
			http.Error(w, "Failed to replace avatar", http.StatusInternalServerError)
			return
		}
	case errors.Is(err, http.ErrMissingFile):
		if r.FormValue("remove_icon") == "true" {
			if err := h.profiles.ResetAvatar(claims.UserID); err != nil {
				log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to reset avatar")
				http.Error(w, "Failed to reset avatar", http.StatusInternalServerError)
				return
			}
		}
	default:
		http.Error(w, "Invalid avatar upload", http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// saveUpload writes the uploaded file into the upload directory under a
// generated name, keeping the original extension.
func (h *ProfileHandler) saveUpload(src io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := uuid.New().String() + ext

	dst, err := os.Create(h.store.Path(name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(h.store.Path(name))
		return "", err
	}
	return name, nil
}
