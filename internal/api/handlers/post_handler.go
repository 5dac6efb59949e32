package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/scribe-blog/scribe-be/internal/auth"
	"github.com/scribe-blog/scribe-be/internal/forms"
	"github.com/scribe-blog/scribe-be/internal/models"
	"github.com/scribe-blog/scribe-be/internal/services"
)

// PostHandler handles HTTP requests for browsing and managing posts.
type PostHandler struct {
	posts  services.PostServiceProvider
	users  services.UserServiceProvider
	secure bool
}

// NewPostHandler creates a new PostHandler. secure controls the Secure flag
// on issued CSRF cookies.
func NewPostHandler(posts services.PostServiceProvider, users services.UserServiceProvider, secure bool) *PostHandler {
	return &PostHandler{posts: posts, users: users, secure: secure}
}

// PostPayload defines the submittable fields of a post. Author and posting
// time are never read from the request.
type PostPayload struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// redirectToIndex is the shared recovery for missing rows and ownership
// mismatches: a silent redirect, never an error page.
func redirectToIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func postID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// Index handles the request to list all posts, newest first.
func (h *PostHandler) Index(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.GetAllPosts()
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve posts")
		http.Error(w, "Failed to retrieve posts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(posts)
}

// Detail handles the request to view a single post. A malformed or unknown
// id redirects to the index.
func (h *PostHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r)
	if err != nil {
		redirectToIndex(w, r)
		return
	}

	post, err := h.posts.GetPostByID(id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			redirectToIndex(w, r)
			return
		}
		log.Error().Err(err).Int64("post_id", id).Msg("Failed to retrieve post")
		http.Error(w, "Failed to retrieve post", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(post)
}

// UserPosts handles the request to list one user's posts. An unknown user
// redirects to the index.
func (h *PostHandler) UserPosts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	author, err := h.users.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			redirectToIndex(w, r)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to retrieve author")
		http.Error(w, "Failed to retrieve author", http.StatusInternalServerError)
		return
	}

	posts, err := h.posts.GetPostsByAuthor(author.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to retrieve user posts")
		http.Error(w, "Failed to retrieve posts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"username": author.Username,
		"posts":    posts,
	})
}

// NewForm returns the empty post form descriptor with a CSRF token.
func (h *PostHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	token := forms.IssueCSRF(w, h.secure)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"fields":    []string{"title", "content"},
		"csrfToken": token,
	})
}

// Create handles an accepted post submission. Author and timestamp come
// from the session and the clock at this call site, then the client is
// redirected to the new post's page.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	var payload PostPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if fieldErrors := forms.Check(payload); fieldErrors != nil {
		forms.WriteErrors(w, fieldErrors)
		return
	}

	post, err := h.posts.CreatePost(payload.Title, payload.Content, claims.UserID, time.Now())
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to create post")
		http.Error(w, "Failed to create post", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/post/%d", post.ID), http.StatusSeeOther)
}

// loadOwnedPost fetches a post and re-checks that the requester is its
// author. A missing row or a mismatch both end in a redirect to index.
func (h *PostHandler) loadOwnedPost(w http.ResponseWriter, r *http.Request) (models.PostWithAuthor, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return models.PostWithAuthor{}, false
	}

	id, err := postID(r)
	if err != nil {
		redirectToIndex(w, r)
		return models.PostWithAuthor{}, false
	}

	post, err := h.posts.GetPostByID(id)
	if err != nil || post.Author != claims.UserID {
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			log.Error().Err(err).Int64("post_id", id).Msg("Failed to load post for ownership check")
		}
		redirectToIndex(w, r)
		return models.PostWithAuthor{}, false
	}
	return post, true
}

// UpdateForm returns the prefilled form for editing a post.
func (h *PostHandler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadOwnedPost(w, r)
	if !ok {
		return
	}

	token := forms.IssueCSRF(w, h.secure)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"post":      post,
		"csrfToken": token,
	})
}

// Update handles an accepted edit. Only title and content are written;
// afterwards the client is redirected to the index, not the post.
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadOwnedPost(w, r)
	if !ok {
		return
	}

	var payload PostPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if fieldErrors := forms.Check(payload); fieldErrors != nil {
		forms.WriteErrors(w, fieldErrors)
		return
	}

	if _, err := h.posts.UpdatePost(post.ID, payload.Title, payload.Content); err != nil {
		log.Error().Err(err).Int64("post_id", post.ID).Msg("Failed to update post")
		http.Error(w, "Failed to update post", http.StatusInternalServerError)
		return
	}

	redirectToIndex(w, r)
}

// Delete handles the immediate deletion of a post by its author.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadOwnedPost(w, r)
	if !ok {
		return
	}

	if err := h.posts.DeletePost(post.ID); err != nil {
		log.Error().Err(err).Int64("post_id", post.ID).Msg("Failed to delete post")
		http.Error(w, "Failed to delete post", http.StatusInternalServerError)
		return
	}

	redirectToIndex(w, r)
}

// ConfirmDelete returns the post data for the deletion confirmation page.
// The deletion itself goes through Delete.
func (h *PostHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadOwnedPost(w, r)
	if !ok {
		return
	}

	token := forms.IssueCSRF(w, h.secure)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"post":      post,
		"csrfToken": token,
	})
}
