package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/inkwatch/inkwatch/internal/db"
	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/feed"
)

// Actions is the GORM-backed store of delivery-agent bindings, delivery
// targets, and their per-feed watermarks.
type Actions struct {
	db *gorm.DB
}

// NewActions returns an action repository over the given handle.
func NewActions(database *gorm.DB) *Actions {
	return &Actions{db: database}
}

// CreateTarget registers a new delivery target for the user under the named
// agent, creating the agent binding on first use. Returns the new target id.
func (r *Actions) CreateTarget(ctx context.Context, uid int64, agentName string) (int64, error) {
	var targetID int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Bind the agent on first use; an existing binding keeps its
		// active flag.
		err := tx.Exec(
			"INSERT OR IGNORE INTO user_action_agents ( uid, act_agent, act_active ) VALUES ( ?, ?, 1 )",
			uid, agentName,
		).Error
		if err != nil {
			return err
		}
		var binding db.UserActionAgent
		if err := tx.First(&binding, "uid = ? AND act_agent = ?", uid, agentName).Error; err != nil {
			return err
		}
		target := db.UserAction{UID: uid, AID: binding.ID}
		if err := tx.Create(&target).Error; err != nil {
			return err
		}
		targetID = target.ID
		return nil
	})
	if err != nil {
		return 0, wrapErr(err)
	}
	return targetID, nil
}

// DeleteTarget removes one delivery target owned by the user. Any webpush
// extension row goes with it via cascade.
func (r *Actions) DeleteTarget(ctx context.Context, uid, targetID int64) error {
	result := r.db.WithContext(ctx).
		Where("uid = ? AND id = ?", uid, targetID).
		Delete(&db.UserAction{})
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound(gorm.ErrRecordNotFound)
	}
	return nil
}

// ToggleAgent flips the active flag of a user's agent binding. Inactive
// bindings keep their targets but receive nothing.
func (r *Actions) ToggleAgent(ctx context.Context, uid int64, agentName string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&db.UserActionAgent{}).
		Where("uid = ? AND act_agent = ?", uid, agentName).
		Update("act_active", active)
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound(gorm.ErrRecordNotFound)
	}
	return nil
}

// ListedTarget is one row of a user's delivery-target listing. ExtInfo is
// filled in by the agent's metadata extractor when it has one.
type ListedTarget struct {
	ID      int64  `json:"id"`
	Agent   string `json:"agent"`
	Active  bool   `json:"active"`
	ExtInfo any    `json:"ext_info,omitempty"`
}

// ListTargets returns every delivery target of the user with its agent name
// and active flag.
func (r *Actions) ListTargets(ctx context.Context, uid int64) ([]ListedTarget, error) {
	var rows []ListedTarget
	err := r.db.WithContext(ctx).
		Table("user_actions").
		Select("user_actions.id AS id, user_action_agents.act_agent AS agent, user_action_agents.act_active AS active").
		Joins("INNER JOIN user_action_agents ON user_action_agents.id = user_actions.aid").
		Where("user_actions.uid = ?", uid).
		Scan(&rows).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return rows, nil
}

// UpsertWebpush attaches or refreshes the webpush extension row of a target.
// The (endpoint, uid) pair is unique: re-subscribing the same browser
// endpoint replaces the stored keys instead of growing a second row.
func (r *Actions) UpsertWebpush(ctx context.Context, ext *db.WebpushExtInfo) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO webpush_ext_info ( id, uid, endpoint, p256dh, auth, browser, device, os )
		 VALUES ( ?, ?, ?, ?, ?, ?, ?, ? )
		 ON CONFLICT ( endpoint, uid ) DO UPDATE SET
		   p256dh = excluded.p256dh,
		   auth = excluded.auth,
		   browser = excluded.browser,
		   device = excluded.device,
		   os = excluded.os`,
		ext.ID, ext.UID, ext.Endpoint, ext.P256dh, ext.Auth, ext.Browser, ext.Device, ext.OS,
	).Error
	return wrapErr(err)
}

// WebpushTarget is the joined row the webpush agent needs to emit: the
// subscription keys plus the owner's locale.
type WebpushTarget struct {
	Endpoint string
	P256dh   string
	Auth     string
	OS       *string
	Language string
	TimeZone string
}

// GetWebpushTarget reads the webpush extension of one target together with
// its owner's locale. A missing row is Unauthorized: the subscription is
// gone or never belonged to that user.
func (r *Actions) GetWebpushTarget(ctx context.Context, uid, targetID int64) (*WebpushTarget, error) {
	var row WebpushTarget
	err := r.db.WithContext(ctx).
		Table("webpush_ext_info").
		Select("webpush_ext_info.endpoint, webpush_ext_info.p256dh, webpush_ext_info.auth, webpush_ext_info.os, users.language, users.time_zone").
		Joins("INNER JOIN users ON users.id = webpush_ext_info.uid").
		Where("webpush_ext_info.uid = ? AND webpush_ext_info.id = ?", uid, targetID).
		Take(&row).Error
	if err != nil {
		if errs.IsNotFound(wrapErr(err)) {
			return nil, errs.Unauthorized()
		}
		return nil, wrapErr(err)
	}
	return &row, nil
}

// WebpushExtInfo returns the display metadata of one webpush target, used
// by the listing extractor.
func (r *Actions) WebpushExtInfo(ctx context.Context, targetID int64) (map[string]any, error) {
	var ext db.WebpushExtInfo
	err := r.db.WithContext(ctx).First(&ext, "id = ?", targetID).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return map[string]any{
		"browser": ext.Browser,
		"device":  ext.Device,
		"os":      ext.OS,
	}, nil
}

// AdvanceWatermark raises a target's per-feed delivery watermark to ts,
// never lowering it. Applying max() in the statement keeps out-of-order
// completions harmless: a strictly older item can never overwrite a newer
// one.
func (r *Actions) AdvanceWatermark(ctx context.Context, uid, targetID int64, kind feed.Kind, ts int64) error {
	column := WatermarkColumn(kind)
	stmt := fmt.Sprintf(
		"UPDATE user_actions SET %s = max(%s, ?) WHERE uid = ? AND id = ?",
		column, column,
	)
	err := r.db.WithContext(ctx).Exec(stmt, ts, uid, targetID).Error
	return wrapErr(err)
}
