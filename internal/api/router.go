package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pulsevault/pulsevault/internal/auth"
	"github.com/pulsevault/pulsevault/internal/datastore"
)

// ServerInfo is reported by the info endpoint for watcher handshakes.
type ServerInfo struct {
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Testing  bool   `json:"testing"`
}

// NewRouter wires every API route onto the datastore.
func NewRouter(ds *datastore.Datastore, jwtSvc *auth.JWT, corsOrigins []string, info ServerInfo) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	uh := &userHandler{ds: ds, jwt: jwtSvc}
	bh := &bucketHandler{ds: ds}
	sh := &settingsHandler{ds: ds}
	th := &teamHandler{ds: ds}

	r.Route("/api/0", func(r chi.Router) {
		r.Get("/info", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, info)
		})

		r.Post("/login", uh.login)
		r.Post("/signup", uh.signup)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(jwtSvc))

			r.Get("/me", uh.me)
			r.Get("/users", uh.list)

			r.Route("/buckets", func(r chi.Router) {
				r.Get("/", bh.list)
				r.Post("/", bh.create)
				r.Get("/{bucketID}", bh.get)
				r.Delete("/{bucketID}", bh.delete)

				r.Post("/{bucketID}/heartbeat", bh.heartbeat)
				r.Get("/{bucketID}/events", bh.getEvents)
				r.Post("/{bucketID}/events", bh.insertEvents)
				r.Get("/{bucketID}/events/count", bh.countEvents)
				r.Get("/{bucketID}/events/{eventID}", bh.getEvent)
				r.Delete("/{bucketID}/events/{eventID}", bh.deleteEvent)
				r.Get("/{bucketID}/teams/{teamID}/events", bh.getTeamEvents)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", sh.list)
				r.Get("/{key}", sh.get)
				r.Post("/{key}", sh.set)
				r.Delete("/{key}", sh.delete)
			})

			r.Route("/teams", func(r chi.Router) {
				r.Get("/", th.list)
				r.Post("/", th.create)
				r.Get("/mine", th.mine)
				r.Get("/{teamID}", th.get)
				r.Get("/{teamID}/members", th.members)
				r.Post("/{teamID}/members", th.addMembers)
				r.Delete("/{teamID}/members/{memberID}", th.removeMember)
				r.Get("/{teamID}/configuration", th.getConfiguration)
				r.Post("/{teamID}/configuration", th.addConfiguration)
				r.Put("/{teamID}/configuration", th.updateConfiguration)
			})
		})
	})

	return r
}

// requestIDFrom pulls the chi request id out of the context for error bodies.
func requestIDFrom(r *http.Request) string {
	return chimw.GetReqID(r.Context())
}
