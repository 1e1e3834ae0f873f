package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/agent"
	"github.com/inkwatch/inkwatch/internal/db"
	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/repository"
)

type actionHandler struct {
	actions *repository.Actions
	agents  agent.Registry
	env     *agent.Env
	logger  *zap.Logger
}

func newActionHandler(actions *repository.Actions, agents agent.Registry, env *agent.Env, logger *zap.Logger) *actionHandler {
	return &actionHandler{actions: actions, agents: agents, env: env, logger: logger.Named("api.action")}
}

// webpushSubscription mirrors the PushSubscription JSON a browser hands the
// frontend, plus the display strings the client derives from its UA.
type webpushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	Browser *string `json:"browser"`
	Device  *string `json:"device"`
	OS      *string `json:"os"`
}

// update registers a new delivery target under the named agent. For
// webpush the body carries the subscription; for infolog an empty object
// suffices.
func (h *actionHandler) update(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())
	agentName := chi.URLParam(r, "agent")
	if _, ok := h.agents.Lookup(agentName); !ok {
		writeErr(w, h.logger, errs.InvalidParameter("agent", agentName))
		return
	}

	var sub webpushSubscription
	if agentName == "webpush" {
		if !decodeJSON(w, r, &sub) {
			return
		}
		if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
			writeErr(w, h.logger, errs.InvalidParameter("subscription", sub.Endpoint))
			return
		}
	}

	targetID, err := h.actions.CreateTarget(r.Context(), uid, agentName)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}

	if agentName == "webpush" {
		err := h.actions.UpsertWebpush(r.Context(), &db.WebpushExtInfo{
			ID:       targetID,
			UID:      uid,
			Endpoint: sub.Endpoint,
			P256dh:   sub.Keys.P256dh,
			Auth:     sub.Keys.Auth,
			Browser:  sub.Browser,
			Device:   sub.Device,
			OS:       sub.OS,
		})
		if err != nil {
			writeErr(w, h.logger, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]int64{"id": targetID})
}

// test asks the agent for a self-test delivery to an existing target.
func (h *actionHandler) test(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())
	agentName := chi.URLParam(r, "agent")

	a, ok := h.agents.Lookup(agentName)
	if !ok {
		writeErr(w, h.logger, errs.InvalidParameter("agent", agentName))
		return
	}
	tester, ok := a.(agent.Tester)
	if !ok {
		writeErr(w, h.logger, errs.InvalidParameter("agent", agentName))
		return
	}

	var req struct {
		ID int64 `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := tester.Test(r.Context(), h.env, uid, req.ID); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// list returns the user's delivery targets, decorated with agent-specific
// metadata where the agent provides an extractor.
func (h *actionHandler) list(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())
	rows, err := h.actions.ListTargets(r.Context(), uid)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	for i := range rows {
		a, ok := h.agents.Lookup(rows[i].Agent)
		if !ok {
			continue
		}
		provider, ok := a.(agent.ExtInfoProvider)
		if !ok {
			continue
		}
		ext, err := provider.ExtInfo(r.Context(), h.env, rows[i].ID)
		if err != nil {
			h.logger.Warn("ext info lookup failed",
				zap.Int64("target_id", rows[i].ID),
				zap.Error(err),
			)
			continue
		}
		rows[i].ExtInfo = ext
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *actionHandler) delete(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())
	var req struct {
		ID int64 `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.actions.DeleteTarget(r.Context(), uid, req.ID); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *actionHandler) toggle(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())
	var req struct {
		Agent  string `json:"agent"`
		Active bool   `json:"active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.actions.ToggleAgent(r.Context(), uid, req.Agent, req.Active); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
