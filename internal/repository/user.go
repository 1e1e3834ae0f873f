package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkwatch/inkwatch/internal/db"
	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/feed"
)

// Users is the GORM-backed user store.
type Users struct {
	db *gorm.DB
}

// NewUsers returns a user repository over the given handle.
func NewUsers(database *gorm.DB) *Users {
	return &Users{db: database}
}

// CreateUserRequest carries the identity and optional profile of a new user.
// Locale fields are defaulted when absent; the day-hours mask defaults to
// all-accepting.
type CreateUserRequest struct {
	AuthAgent string
	AuthUID   string
	Name      *string
	Email     *string
	Picture   *string
	Language  *feed.Language
	TimeZone  *feed.TimeZone
	DayHrs    *[2]int64
}

// Create inserts the user if the (auth_agent, auth_uid) identity is new.
// Returns true when a row was inserted, false when the identity already
// existed.
func (r *Users) Create(ctx context.Context, req CreateUserRequest) (bool, error) {
	lang := feed.DefaultLanguage
	if req.Language != nil {
		lang = *req.Language
	}
	tz := feed.DefaultTimeZone
	if req.TimeZone != nil {
		tz = *req.TimeZone
	}
	dayHrs := [2]int64{feed.DayHoursMax, feed.DayHoursMax}
	if req.DayHrs != nil {
		dayHrs = *req.DayHrs
	}

	user := db.User{
		AuthAgent: req.AuthAgent,
		AuthUID:   req.AuthUID,
		Name:      req.Name,
		Email:     req.Email,
		Picture:   req.Picture,
		Language:  string(lang),
		TimeZone:  string(tz),
		DayHrs0:   dayHrs[0],
		DayHrs1:   dayHrs[1],
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&user)
	if result.Error != nil {
		return false, wrapErr(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// LookupID resolves the local surrogate id of an identity. An unknown
// identity is Unauthorized, not a store error.
func (r *Users) LookupID(ctx context.Context, authAgent, authUID string) (int64, error) {
	var user db.User
	err := r.db.WithContext(ctx).
		Select("id").
		First(&user, "auth_uid = ? AND auth_agent = ?", authUID, authAgent).Error
	if err != nil {
		if errs.IsNotFound(wrapErr(err)) {
			return 0, errs.Unauthorized()
		}
		return 0, wrapErr(err)
	}
	return user.ID, nil
}

// Settings is the user-tunable delivery profile.
type Settings struct {
	Language feed.Language `json:"language"`
	TimeZone feed.TimeZone `json:"time_zone"`
	DayHrs   [2]int64      `json:"day_hrs"`
}

// GetSettings reads a user's delivery profile.
func (r *Users) GetSettings(ctx context.Context, uid int64) (*Settings, error) {
	var user db.User
	err := r.db.WithContext(ctx).
		Select("language", "time_zone", "day_hrs_0", "day_hrs_1").
		First(&user, "id = ?", uid).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	lang, err := feed.ParseLanguage(user.Language)
	if err != nil {
		return nil, errs.Internal(err)
	}
	tz, err := feed.ParseTimeZone(user.TimeZone)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return &Settings{
		Language: lang,
		TimeZone: tz,
		DayHrs:   [2]int64{user.DayHrs0, user.DayHrs1},
	}, nil
}

// UpdateSettingsRequest updates only the fields that are present.
type UpdateSettingsRequest struct {
	Language *feed.Language
	TimeZone *feed.TimeZone
	DayHrs   *[2]int64
}

// UpdateSettings applies a partial settings update. Updating an unknown
// user is Unauthorized.
func (r *Users) UpdateSettings(ctx context.Context, uid int64, req UpdateSettingsRequest) error {
	updates := map[string]any{}
	if req.Language != nil {
		updates["language"] = string(*req.Language)
	}
	if req.TimeZone != nil {
		updates["time_zone"] = string(*req.TimeZone)
	}
	if req.DayHrs != nil {
		updates["day_hrs_0"] = req.DayHrs[0]
		updates["day_hrs_1"] = req.DayHrs[1]
	}
	if len(updates) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", uid).
		Updates(updates)
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.Unauthorized()
	}
	return nil
}
