package routers

import (
	"net/http"
	"time"

	"collabnotes/internal/handlers"
	"collabnotes/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth        *handlers.AuthHandler
	Users       *handlers.UserHandler
	Notes       *handlers.NoteHandler
	Collab      *handlers.CollabHandler
	Health      *handlers.HealthHandler
	RequireAuth func(http.Handler) http.Handler
}

// NewRouter builds the full HTTP surface.
func NewRouter(h Handlers, allowedOrigins []string) *chi.Mux {
	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	router.Use(chimw.RequestID, chimw.RealIP, chimw.Logger, chimw.Recoverer)
	router.Use(metrics.Middleware())

	HealthRoutes(router, h.Health)
	CollabRoutes(router, h.Collab)

	router.Group(func(r chi.Router) {
		// websocket connections outlive any request timeout
		r.Use(chimw.Timeout(60 * time.Second))
		AuthRoutes(r, h.Auth, h.RequireAuth)
		UserRoutes(r, h.Users, h.RequireAuth)
		NoteRoutes(r, h.Notes, h.RequireAuth)
	})
	return router
}

func HealthRoutes(r chi.Router, healthHandler *handlers.HealthHandler) {
	r.Get("/healthz", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
}

func CollabRoutes(r chi.Router, collabHandler *handlers.CollabHandler) {
	r.Get("/ws", collabHandler.ServeWS)
}

func AuthRoutes(r chi.Router, authHandler *handlers.AuthHandler, requireAuth func(http.Handler) http.Handler) {
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", authHandler.RegisterHandler)
		r.Post("/login", authHandler.LoginHandler)
		r.With(requireAuth).Post("/logout", authHandler.LogoutHandler)
	})
}

func UserRoutes(r chi.Router, userHandler *handlers.UserHandler, requireAuth func(http.Handler) http.Handler) {
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", userHandler.MeHandler)
		r.Put("/me", userHandler.UpdateMeHandler)
		r.Delete("/me", userHandler.DeleteMeHandler)
		r.Get("/{id}", userHandler.GetUserHandler)
	})
}

func NoteRoutes(r chi.Router, noteHandler *handlers.NoteHandler, requireAuth func(http.Handler) http.Handler) {
	r.Route("/api/v1/notes", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", noteHandler.CreateNoteHandler)
		r.Get("/", noteHandler.ListNotesHandler)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", noteHandler.GetNoteHandler)
			r.Put("/", noteHandler.UpdateNoteHandler)
			r.Delete("/", noteHandler.DeleteNoteHandler)

			r.Get("/versions", noteHandler.ListVersionsHandler)
			r.Get("/versions/{version}", noteHandler.GetVersionHandler)
			r.Post("/versions/{version}/restore", noteHandler.RestoreVersionHandler)

			r.Get("/collaborators", noteHandler.ListCollaboratorsHandler)
			r.Post("/collaborators", noteHandler.AddCollaboratorHandler)
			r.Delete("/collaborators/{userId}", noteHandler.RemoveCollaboratorHandler)

			r.Get("/presence", noteHandler.PresenceHandler)
		})
	})
}
