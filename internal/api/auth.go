package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/auth"
	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/repository"
)

type authHandler struct {
	agents auth.Registry
	users  *repository.Users
	jwt    *auth.JWTAgent
	logger *zap.Logger
}

func newAuthHandler(agents auth.Registry, users *repository.Users, jwt *auth.JWTAgent, logger *zap.Logger) *authHandler {
	return &authHandler{agents: agents, users: users, jwt: jwt, logger: logger.Named("api.auth")}
}

type exchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

type exchangeResponse struct {
	Token string `json:"token"`
}

// exchange swaps an OAuth2 authorization code for a service JWT, creating
// the user row on first login.
func (h *authHandler) exchange(w http.ResponseWriter, r *http.Request) {
	agentName := chi.URLParam(r, "agent")
	agent, ok := h.agents.Lookup(agentName)
	if !ok {
		writeErr(w, h.logger, errs.InvalidParameter("agent", agentName))
		return
	}

	var req exchangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeErr(w, h.logger, errs.InvalidParameter("code", ""))
		return
	}

	identity, err := agent.Exchange(r.Context(), req.Code, req.RedirectURI)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}

	created, err := h.users.Create(r.Context(), repository.CreateUserRequest{
		AuthAgent: agentName,
		AuthUID:   identity.AuthUID,
		Name:      identity.Name,
		Email:     identity.Email,
		Picture:   identity.Picture,
	})
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if created {
		h.logger.Info("user created", zap.String("auth_agent", agentName))
	}

	uid, err := h.users.LookupID(r.Context(), agentName, identity.AuthUID)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}

	token, err := h.jwt.Issue(uid)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	w.Header().Set("Authorization", "Bearer "+token)
	writeJSON(w, http.StatusOK, exchangeResponse{Token: token})
}
