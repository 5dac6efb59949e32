package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribe-blog/scribe-be/internal/auth"
	"github.com/scribe-blog/scribe-be/internal/database"
	"github.com/scribe-blog/scribe-be/internal/forms"
	"github.com/scribe-blog/scribe-be/internal/images"
	"github.com/scribe-blog/scribe-be/internal/models"
	"github.com/scribe-blog/scribe-be/internal/services"
	ws "github.com/scribe-blog/scribe-be/internal/websocket"
)

type testEnv struct {
	router   *chi.Mux
	db       *sql.DB
	auth     *auth.Auth
	store    *images.Store
	users    *services.UserService
	posts    *services.PostService
	profiles *services.ProfileService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvSecure(t, false)
}

func newTestEnvSecure(t *testing.T, secure bool) *testEnv {
	t.Helper()

	db, err := database.New("file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	store, err := images.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.EnsureDefaultAvatar())

	hub := ws.NewHub()
	go hub.Run()

	a := auth.New("test-secret")
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db)
	postService := services.NewPostService(db, hub, eventService)
	profileService := services.NewProfileService(db, store, eventService)

	router := NewRouter(Deps{
		Auth:     a,
		Hub:      hub,
		Users:    userService,
		Posts:    postService,
		Profiles: profileService,
		Events:   eventService,
		Store:    store,
		Secure:   secure,
	})

	return &testEnv{
		router:   router,
		db:       db,
		auth:     a,
		store:    store,
		users:    userService,
		posts:    postService,
		profiles: profileService,
	}
}

func (e *testEnv) registerUser(t *testing.T, username string) models.User {
	t.Helper()
	user, err := e.users.CreateUser(username, username+"@example.com", "Test", "User", "hunter2pass")
	require.NoError(t, err)
	return user
}

// authedRequest builds a request carrying a valid session token and CSRF
// pair for the given user.
func (e *testEnv) authedRequest(t *testing.T, user models.User, method, target string, body io.Reader) *http.Request {
	t.Helper()
	token, err := e.auth.GenerateToken(user)
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, body)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	req.AddCookie(&http.Cookie{Name: forms.CSRFCookie, Value: "test-csrf"})
	req.Header.Set(forms.CSRFHeader, "test-csrf")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestIndex_ListsPostsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := env.posts.CreatePost("first", "c", alice.ID, base)
	require.NoError(t, err)
	_, err = env.posts.CreatePost("second", "c", alice.ID, base.Add(time.Hour))
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var posts []models.PostWithAuthor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, "second", posts[0].Title)
	assert.Equal(t, "first", posts[1].Title)
	assert.Equal(t, "alice", posts[0].AuthorUsername)
	assert.Equal(t, "images/default.jpg", posts[0].AuthorIcon)
}

func TestAbout(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "About")
}

func TestPostDetail_UnknownIDRedirectsToIndex(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/post/999", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/post/not-a-number", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestUserPosts_UnknownUserRedirectsToIndex(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/user/ghost", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestUserPosts_ListsOnlyThatUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")
	bob := env.registerUser(t, "bob")

	_, err := env.posts.CreatePost("from alice", "c", alice.ID, time.Now())
	require.NoError(t, err)
	_, err = env.posts.CreatePost("from bob", "c", bob.ID, time.Now())
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/user/"+alice.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Username string                  `json:"username"`
		Posts    []models.PostWithAuthor `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "alice", payload.Username)
	require.Len(t, payload.Posts, 1)
	assert.Equal(t, "from alice", payload.Posts[0].Title)
}

func TestCreatePost_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/post/new", strings.NewReader(`{"title":"x","content":"y"}`))
	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreatePost_RequiresCSRF(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	req := env.authedRequest(t, alice, http.MethodPost, "/post/new", jsonBody(t, map[string]string{"title": "x", "content": "y"}))
	req.Header.Del(forms.CSRFHeader)
	rec := env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreatePost_RedirectsToNewPost(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	before := time.Now()
	req := env.authedRequest(t, alice, http.MethodPost, "/post/new", jsonBody(t, map[string]string{"title": "Hello", "content": "World"}))
	rec := env.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/post/1", rec.Header().Get("Location"))

	detail := env.do(httptest.NewRequest(http.MethodGet, "/post/1", nil))
	require.Equal(t, http.StatusOK, detail.Code)

	var post models.PostWithAuthor
	require.NoError(t, json.Unmarshal(detail.Body.Bytes(), &post))
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "World", post.Content)
	assert.Equal(t, alice.ID, post.Author)
	assert.WithinDuration(t, before, post.DatePosted, 5*time.Second)
}

func TestCreatePost_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	req := env.authedRequest(t, alice, http.MethodPost, "/post/new", jsonBody(t, map[string]string{"title": "", "content": ""}))
	rec := env.do(req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var payload struct {
		Errors forms.Errors `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload.Errors, "title")
	assert.Contains(t, payload.Errors, "content")
}

func TestUpdatePost_ByNonAuthorRedirectsAndLeavesPostAlone(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")
	mallory := env.registerUser(t, "mallory")

	created, err := env.posts.CreatePost("Hello", "World", alice.ID, time.Now())
	require.NoError(t, err)

	target := fmt.Sprintf("/post/%d/update", created.ID)
	req := env.authedRequest(t, mallory, http.MethodPost, target, jsonBody(t, map[string]string{"title": "hacked", "content": "hacked"}))
	rec := env.do(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	got, err := env.posts.GetPostByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "World", got.Content)
}

func TestUpdatePost_ByAuthorRedirectsToIndex(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	postedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created, err := env.posts.CreatePost("Hello", "World", alice.ID, postedAt)
	require.NoError(t, err)

	target := fmt.Sprintf("/post/%d/update", created.ID)
	req := env.authedRequest(t, alice, http.MethodPost, target, jsonBody(t, map[string]string{"title": "Edited", "content": "Body"}))
	rec := env.do(req)
	// Update redirects to the index, unlike create.
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	got, err := env.posts.GetPostByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Title)
	assert.Equal(t, alice.ID, got.Author)
	assert.WithinDuration(t, postedAt, got.DatePosted, time.Second)
}

func TestUpdatePost_MissingPostRedirects(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	req := env.authedRequest(t, alice, http.MethodPost, "/post/404/update", jsonBody(t, map[string]string{"title": "t", "content": "c"}))
	rec := env.do(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestDeletePost_OwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")
	mallory := env.registerUser(t, "mallory")

	created, err := env.posts.CreatePost("Hello", "World", alice.ID, time.Now())
	require.NoError(t, err)

	target := fmt.Sprintf("/post/delete/%d", created.ID)
	rec := env.do(env.authedRequest(t, mallory, http.MethodPost, target, nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	_, err = env.posts.GetPostByID(created.ID)
	require.NoError(t, err, "post survives a stranger's delete")

	rec = env.do(env.authedRequest(t, alice, http.MethodPost, target, nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	_, err = env.posts.GetPostByID(created.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestConfirmDelete_ReturnsPostData(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	created, err := env.posts.CreatePost("Hello", "World", alice.ID, time.Now())
	require.NoError(t, err)

	target := fmt.Sprintf("/post/%d/delete", created.ID)
	rec := env.do(env.authedRequest(t, alice, http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hello")
	assert.Contains(t, rec.Body.String(), "csrfToken")

	// The post still exists; only the direct delete route removes it.
	_, err = env.posts.GetPostByID(created.ID)
	assert.NoError(t, err)
}

func TestNewPostForm_IssuesCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	rec := env.do(env.authedRequest(t, alice, http.MethodGet, "/post/new", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "csrfToken")
}

// The Secure flag on CSRF cookies comes from configuration, not from the
// request, so it holds behind a TLS-terminating proxy.
func TestNewPostForm_CSRFCookieSecureFlagFollowsConfig(t *testing.T) {
	env := newTestEnvSecure(t, true)
	alice := env.registerUser(t, "alice")

	rec := env.do(env.authedRequest(t, alice, http.MethodGet, "/post/new", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == forms.CSRFCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "CSRF cookie issued with the form")
	assert.True(t, cookie.Secure)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/auth/register", jsonBody(t, map[string]string{
		"username":  "carol",
		"email":     "carol@example.com",
		"firstName": "Carol",
		"lastName":  "Jones",
		"password":  "longenoughpw",
	})))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(t, map[string]string{
		"email":    "carol@example.com",
		"password": "longenoughpw",
	})))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "token")

	var sawToken, sawCSRF bool
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case "token":
			sawToken = true
		case forms.CSRFCookie:
			sawCSRF = true
		}
	}
	assert.True(t, sawToken, "login sets the session cookie")
	assert.True(t, sawCSRF, "login sets the CSRF cookie")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "alice")

	rec := env.do(httptest.NewRequest(http.MethodPost, "/auth/register", jsonBody(t, map[string]string{
		"username":  "alice",
		"email":     "other@example.com",
		"firstName": "A",
		"lastName":  "B",
		"password":  "longenoughpw",
	})))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "username")
}

func TestProfile_ShowReturnsIcon(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	rec := env.do(env.authedRequest(t, alice, http.MethodGet, "/profile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "images/default.jpg")
	assert.Contains(t, rec.Body.String(), "csrfToken")
}

// profileForm builds a multipart submission of the profile edit form.
func profileForm(t *testing.T, fields map[string]string, iconWidth, iconHeight int) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if iconWidth > 0 {
		part, err := writer.CreateFormFile("icon", "upload.jpg")
		require.NoError(t, err)
		img := imaging.New(iconWidth, iconHeight, color.NRGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff})
		require.NoError(t, imaging.Encode(part, img, imaging.JPEG))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func (e *testEnv) postProfile(t *testing.T, user models.User, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := e.authedRequest(t, user, http.MethodPost, "/profile", nil)
	req.Body = io.NopCloser(body)
	req.Header.Set("Content-Type", contentType)
	return e.do(req)
}

func TestProfile_UpdateIdentityFields(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	body, contentType := profileForm(t, map[string]string{
		"username":   "alice-renamed",
		"email":      "alice@example.com",
		"first_name": "Alicia",
		"last_name":  "Liddell",
	}, 0, 0)

	rec := env.postProfile(t, alice, body, contentType)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))

	user, err := env.users.GetUserByID(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice-renamed", user.Username)
	assert.Equal(t, "Alicia", user.FirstName)
	assert.Equal(t, "Liddell", user.LastName)
}

func TestProfile_DuplicateUsernameFieldError(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")
	env.registerUser(t, "bob")

	body, contentType := profileForm(t, map[string]string{
		"username":   "bob",
		"email":      "alice@example.com",
		"first_name": "A",
		"last_name":  "B",
	}, 0, 0)

	rec := env.postProfile(t, alice, body, contentType)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "username")

	// The row is unchanged on a rejected submission.
	user, err := env.users.GetUserByID(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestProfile_DuplicateEmailFieldError(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")
	env.registerUser(t, "bob")

	body, contentType := profileForm(t, map[string]string{
		"username":   "alice",
		"email":      "bob@example.com",
		"first_name": "A",
		"last_name":  "B",
	}, 0, 0)

	rec := env.postProfile(t, alice, body, contentType)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "email")

	user, err := env.users.GetUserByID(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestProfile_AvatarUploadIsStoredAndResized(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	body, contentType := profileForm(t, map[string]string{
		"username":   "alice",
		"email":      "alice@example.com",
		"first_name": "A",
		"last_name":  "B",
	}, 1000, 500)

	rec := env.postProfile(t, alice, body, contentType)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))

	profile, err := env.profiles.GetProfile(alice.ID)
	require.NoError(t, err)
	require.NotEqual(t, models.DefaultAvatar, profile.Image)

	img, err := imaging.Open(env.store.Path(profile.Image))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())

	// The sentinel is still on disk.
	_, err = os.Stat(env.store.Path(models.DefaultAvatar))
	assert.NoError(t, err)
}

func TestProfile_RemoveIconResetsToDefault(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	// Upload a custom avatar first.
	body, contentType := profileForm(t, map[string]string{
		"username":   "alice",
		"email":      "alice@example.com",
		"first_name": "A",
		"last_name":  "B",
	}, 400, 400)
	rec := env.postProfile(t, alice, body, contentType)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	profile, err := env.profiles.GetProfile(alice.ID)
	require.NoError(t, err)
	custom := profile.Image
	require.NotEqual(t, models.DefaultAvatar, custom)

	// Then request removal.
	body, contentType = profileForm(t, map[string]string{
		"username":    "alice",
		"email":       "alice@example.com",
		"first_name":  "A",
		"last_name":   "B",
		"remove_icon": "true",
	}, 0, 0)
	rec = env.postProfile(t, alice, body, contentType)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	profile, err = env.profiles.GetProfile(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultAvatar, profile.Image)

	_, err = os.Stat(env.store.Path(custom))
	assert.True(t, os.IsNotExist(err), "old custom avatar is gone")
	_, err = os.Stat(env.store.Path(models.DefaultAvatar))
	assert.NoError(t, err, "sentinel survives")
}

func TestActivity_ReturnsRecentEvents(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	_, err := env.posts.CreatePost("Hello", "World", alice.ID, time.Now())
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/activity?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "post.create")
}

func TestGetMe(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerUser(t, "alice")

	rec := env.do(env.authedRequest(t, alice, http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.NotContains(t, rec.Body.String(), "password")
}
