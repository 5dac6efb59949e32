package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/scribe-blog/scribe-be/internal/api/handlers"
	"github.com/scribe-blog/scribe-be/internal/auth"
	"github.com/scribe-blog/scribe-be/internal/forms"
	"github.com/scribe-blog/scribe-be/internal/images"
	"github.com/scribe-blog/scribe-be/internal/services"
	ws "github.com/scribe-blog/scribe-be/internal/websocket"
)

// Deps bundles everything the router's handlers need; each handler receives
// its collaborators explicitly rather than through shared globals.
type Deps struct {
	Auth     *auth.Auth
	Hub      *ws.Hub
	Users    services.UserServiceProvider
	Posts    services.PostServiceProvider
	Profiles services.ProfileServiceProvider
	Events   services.EventServiceProvider
	Store    *images.Store
	Secure   bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration for development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"}, // Adjust for your frontend URL
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", forms.CSRFHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	postHandler := handlers.NewPostHandler(d.Posts, d.Users, d.Secure)
	profileHandler := handlers.NewProfileHandler(d.Users, d.Profiles, d.Store, d.Secure)
	userHandler := handlers.NewUserHandler(d.Users, d.Auth, d.Secure)
	eventHandler := handlers.NewEventHandler(d.Events)
	feedHandler := handlers.NewFeedHandler(d.Hub)

	// Public read routes
	r.Get("/", postHandler.Index)
	r.Get("/about", handlers.About)
	r.Get("/post/{id}", postHandler.Detail)
	r.Get("/user/{id}", postHandler.UserPosts)
	r.Get("/activity", eventHandler.GetRecent)
	r.Get("/ws/feed", feedHandler.Serve)

	// Uploaded avatars
	fileServer := http.StripPrefix("/images/", http.FileServer(http.Dir(d.Store.Path(""))))
	r.Get("/images/*", fileServer.ServeHTTP)

	// Auth endpoints
	r.Post("/auth/register", userHandler.Register)
	r.Post("/auth/login", userHandler.Login)

	// Routes that require a signed-in user; mutating ones also need the
	// CSRF pair.
	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware())
		r.Use(forms.CSRFMiddleware())

		r.Get("/auth/me", userHandler.GetMe)

		r.Get("/post/new", postHandler.NewForm)
		r.Post("/post/new", postHandler.Create)
		r.Get("/post/{id}/update", postHandler.UpdateForm)
		r.Post("/post/{id}/update", postHandler.Update)
		r.Post("/post/delete/{id}", postHandler.Delete)
		r.Get("/post/{id}/delete", postHandler.ConfirmDelete)

		r.Get("/profile", profileHandler.Show)
		r.Post("/profile", profileHandler.Update)
	})

	return r
}
