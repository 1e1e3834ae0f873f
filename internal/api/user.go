package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/feed"
	"github.com/inkwatch/inkwatch/internal/repository"
)

type userHandler struct {
	users  *repository.Users
	logger *zap.Logger
}

func newUserHandler(users *repository.Users, logger *zap.Logger) *userHandler {
	return &userHandler{users: users, logger: logger.Named("api.user")}
}

func (h *userHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())
	settings, err := h.users.GetSettings(r.Context(), uid)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	Language *string   `json:"language"`
	TimeZone *string   `json:"time_zone"`
	DayHrs   *[2]int64 `json:"day_hrs"`
}

func (h *userHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())

	var req updateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var update repository.UpdateSettingsRequest
	if req.Language != nil {
		lang, err := feed.ParseLanguage(*req.Language)
		if err != nil {
			writeErr(w, h.logger, err)
			return
		}
		update.Language = &lang
	}
	if req.TimeZone != nil {
		tz, err := feed.ParseTimeZone(*req.TimeZone)
		if err != nil {
			writeErr(w, h.logger, err)
			return
		}
		update.TimeZone = &tz
	}
	update.DayHrs = req.DayHrs

	if err := h.users.UpdateSettings(r.Context(), uid, update); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
