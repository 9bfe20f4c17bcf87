package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/trackio/engine/internal/api/handlers"
	mw "github.com/trackio/engine/internal/api/middleware"
)

type Dependencies struct {
	HMACSecret           []byte
	AuthHandler          *handlers.AuthHandler
	OrganizationsHandler *handlers.OrganizationsHandler
	ProjectsHandler      *handlers.ProjectsHandler
	SprintsHandler       *handlers.SprintsHandler
	StoriesHandler       *handlers.StoriesHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	// Health endpoints
	hh := handlers.NewHealthHandler()
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/docs/doc.json"),
	))

	r.Route("/api/v1", func(api chi.Router) {
		// Auth routes (public)
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", dep.AuthHandler.Register)
			ar.Post("/login", dep.AuthHandler.Login)
			ar.Post("/logout", dep.AuthHandler.Logout)
			ar.Post("/refresh", dep.AuthHandler.Refresh)
		})

		// Protected routes
		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret))

			// Organizations and members
			protected.Route("/orgs", func(or chi.Router) {
				or.Get("/", dep.OrganizationsHandler.List)
				or.Post("/", dep.OrganizationsHandler.Create)
				or.Get("/{orgID}", dep.OrganizationsHandler.Get)
				or.Delete("/{orgID}", dep.OrganizationsHandler.Delete)

				or.Get("/{orgID}/members", dep.OrganizationsHandler.ListMembers)
				or.Post("/{orgID}/members", dep.OrganizationsHandler.AddMember)
				or.Put("/{orgID}/members/{userID}", dep.OrganizationsHandler.UpdateMemberRole)
				or.Delete("/{orgID}/members/{userID}", dep.OrganizationsHandler.RemoveMember)

				or.Get("/{orgID}/projects", dep.ProjectsHandler.List)
				or.Post("/{orgID}/projects", dep.ProjectsHandler.Create)
			})

			// Projects
			protected.Route("/projects/{projectID}", func(pr chi.Router) {
				pr.Get("/", dep.ProjectsHandler.Get)
				pr.Put("/", dep.ProjectsHandler.Update)
				pr.Post("/archive", dep.ProjectsHandler.Archive)
				pr.Delete("/", dep.ProjectsHandler.Delete)

				pr.Get("/sprints", dep.SprintsHandler.List)
				pr.Post("/sprints", dep.SprintsHandler.Create)

				pr.Get("/stories", dep.StoriesHandler.Board)
				pr.Post("/stories", dep.StoriesHandler.Create)
				pr.Post("/stories/reorder", dep.StoriesHandler.Reorder)
				pr.Post("/stories/backfill-slugs", dep.StoriesHandler.BackfillSlugs)
			})

			// Sprints
			protected.Route("/sprints/{sprintID}", func(sr chi.Router) {
				sr.Put("/", dep.SprintsHandler.Update)
				sr.Delete("/", dep.SprintsHandler.Delete)
			})

			// Stories
			protected.Route("/stories/{storyID}", func(sr chi.Router) {
				sr.Get("/", dep.StoriesHandler.Get)
				sr.Patch("/", dep.StoriesHandler.Update)
				sr.Post("/archive", dep.StoriesHandler.Archive)
				sr.Delete("/", dep.StoriesHandler.Delete)
				sr.Get("/history", dep.StoriesHandler.History)
			})
		})
	})

	return r
}
