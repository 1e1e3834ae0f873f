package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/agent"
	"github.com/inkwatch/inkwatch/internal/auth"
	"github.com/inkwatch/inkwatch/internal/repository"
)

// RouterConfig holds the dependencies of the HTTP surface, wired in main
// after every component is initialized.
type RouterConfig struct {
	Logger *zap.Logger

	JWT        *auth.JWTAgent
	AuthAgents auth.Registry

	Users   *repository.Users
	Queries *repository.Queries
	Actions *repository.Actions

	Agents   agent.Registry
	AgentEnv *agent.Env

	// ImageDir, when non-empty, is served statically under /_/image/.
	ImageDir string

	CORSOrigins []string
}

// NewRouter builds the fully configured chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))

	authHandler := newAuthHandler(cfg.AuthAgents, cfg.Users, cfg.JWT, cfg.Logger)
	queryHandler := newQueryHandler(cfg.Queries, cfg.Logger)
	actionHandler := newActionHandler(cfg.Actions, cfg.Agents, cfg.AgentEnv, cfg.Logger)
	userHandler := newUserHandler(cfg.Users, cfg.Logger)

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if cfg.ImageDir != "" {
		fileServer := http.StripPrefix("/_/image/", http.FileServer(http.Dir(cfg.ImageDir)))
		r.Get("/_/image/*", fileServer.ServeHTTP)
	}

	r.Post("/auth/{agent}", authHandler.exchange)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.JWT))

		r.Post("/query/new", queryHandler.create)
		r.Get("/query/list", queryHandler.list)
		r.Post("/query/update", queryHandler.update)
		r.Post("/query/delete", queryHandler.delete)

		r.Post("/action/{agent}/update", actionHandler.update)
		r.Post("/action/{agent}/test", actionHandler.test)
		r.Get("/action/list", actionHandler.list)
		r.Post("/action/delete", actionHandler.delete)
		r.Post("/action/toggle", actionHandler.toggle)

		r.Get("/user/settings", userHandler.getSettings)
		r.Post("/user/settings", userHandler.updateSettings)
	})

	return r
}
