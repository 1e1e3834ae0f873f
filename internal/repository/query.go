package repository

import (
	"context"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/inkwatch/inkwatch/internal/db"
	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/feed"
)

// Queries is the GORM-backed subscription-query store.
type Queries struct {
	db *gorm.DB
}

// NewQueries returns a query repository over the given handle.
func NewQueries(database *gorm.DB) *Queries {
	return &Queries{db: database}
}

// PVPQueryConfig is the JSON shape of a pvp query as submitted and listed
// through the HTTP surface. Omitted modes default to regular, challenge,
// open and x (not fest or event); omitted rules default to area, tower,
// rainmaker and clams (not the regular turf rule). Stages are ids in 1..32.
type PVPQueryConfig struct {
	Modes  []string        `json:"modes,omitempty"`
	Rules  []string        `json:"rules,omitempty"`
	Stages PVPStagesConfig `json:"stages"`
}

// PVPStagesConfig carries the include/exclude stage lists of a query.
type PVPStagesConfig struct {
	Includes []int `json:"includes"`
	Excludes []int `json:"excludes,omitempty"`
}

var defaultQueryModes = []feed.Mode{feed.ModeRegular, feed.ModeChallenge, feed.ModeOpen, feed.ModeX}
var defaultQueryRules = []feed.Rule{feed.RuleArea, feed.RuleTower, feed.RuleRainmaker, feed.RuleClams}

// Pack validates the config and folds it into the stored bitmasks.
func (c *PVPQueryConfig) Pack() (modes uint8, rules uint8, includes, excludes uint32, err error) {
	if len(c.Modes) == 0 {
		for _, m := range defaultQueryModes {
			modes |= uint8(m)
		}
	}
	for _, s := range c.Modes {
		m := feed.ParseMode(s)
		if m == feed.ModeUnknown {
			return 0, 0, 0, 0, errs.InvalidParameter("mode", s)
		}
		modes |= uint8(m)
	}
	if len(c.Rules) == 0 {
		for _, r := range defaultQueryRules {
			rules |= uint8(r)
		}
	}
	for _, s := range c.Rules {
		r := feed.ParseRule(s)
		if r == feed.RuleUnknown {
			return 0, 0, 0, 0, errs.InvalidParameter("rule", s)
		}
		rules |= uint8(r)
	}
	for _, lists := range [][]int{c.Stages.Includes, c.Stages.Excludes} {
		for _, id := range lists {
			if id < 1 || id > feed.MaxStageID {
				return 0, 0, 0, 0, errs.InvalidParameter("stage", strconv.Itoa(id))
			}
		}
	}
	if len(c.Stages.Includes) == 0 {
		return 0, 0, 0, 0, errs.InvalidParameter("stages.includes", "empty")
	}
	return modes, rules, feed.StageMask(c.Stages.Includes), feed.StageMask(c.Stages.Excludes), nil
}

// Unpack expands stored bitmasks back into the config shape for listing.
func Unpack(q *db.PVPQuery) PVPQueryConfig {
	var cfg PVPQueryConfig
	for _, m := range []feed.Mode{feed.ModeRegular, feed.ModeChallenge, feed.ModeOpen, feed.ModeX, feed.ModeFest, feed.ModeEvent} {
		if q.Modes&uint8(m) != 0 {
			cfg.Modes = append(cfg.Modes, m.String())
		}
	}
	for _, r := range []feed.Rule{feed.RuleRegular, feed.RuleArea, feed.RuleTower, feed.RuleRainmaker, feed.RuleClams} {
		if q.Rules&uint8(r) != 0 {
			cfg.Rules = append(cfg.Rules, r.String())
		}
	}
	cfg.Stages.Includes = feed.StagesFromMask(q.Includes)
	cfg.Stages.Excludes = feed.StagesFromMask(q.Excludes)
	return cfg
}

// Create stores a packed query for the user and returns its id.
func (r *Queries) Create(ctx context.Context, uid int64, cfg *PVPQueryConfig) (int64, error) {
	modes, rules, includes, excludes, err := cfg.Pack()
	if err != nil {
		return 0, err
	}
	q := db.PVPQuery{
		UID:      uid,
		Modes:    modes,
		Rules:    rules,
		Includes: includes,
		Excludes: excludes,
	}
	if err := r.db.WithContext(ctx).Create(&q).Error; err != nil {
		return 0, wrapErr(err)
	}
	return q.ID, nil
}

// ListedQuery is one row of a user's query listing.
type ListedQuery struct {
	ID          int64          `json:"id"`
	CreatedTime time.Time      `json:"created_time"`
	Config      PVPQueryConfig `json:"config"`
}

// List returns all of a user's queries, newest first.
func (r *Queries) List(ctx context.Context, uid int64) ([]ListedQuery, error) {
	var rows []db.PVPQuery
	err := r.db.WithContext(ctx).
		Where("uid = ?", uid).
		Order("created_time DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]ListedQuery, 0, len(rows))
	for i := range rows {
		out = append(out, ListedQuery{
			ID:          rows[i].ID,
			CreatedTime: rows[i].CreatedTime,
			Config:      Unpack(&rows[i]),
		})
	}
	return out, nil
}

// Update replaces the predicate of an existing query owned by the user.
func (r *Queries) Update(ctx context.Context, uid, qid int64, cfg *PVPQueryConfig) error {
	modes, rules, includes, excludes, err := cfg.Pack()
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&db.PVPQuery{}).
		Where("id = ? AND uid = ?", qid, uid).
		Updates(map[string]any{
			"modes":    modes,
			"rules":    rules,
			"includes": includes,
			"excludes": excludes,
		})
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound(gorm.ErrRecordNotFound)
	}
	return nil
}

// Delete removes a query owned by the user.
func (r *Queries) Delete(ctx context.Context, uid, qid int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND uid = ?", qid, uid).
		Delete(&db.PVPQuery{})
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound(gorm.ErrRecordNotFound)
	}
	return nil
}

