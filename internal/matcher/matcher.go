// Package matcher answers "which (user, delivery-target) pairs are
// interested in this rotation item?" with one predicate query per item.
// Queries, items and the user's day-hours mask are all packed bitmaps, so
// the entire predicate collapses into a single WHERE clause over the join
// of pvp_queries, users, user_action_agents and user_actions.
package matcher

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/feed"
)

// Match is one interested delivery target.
type Match struct {
	TargetID int64  `gorm:"column:target_id"`
	UID      int64  `gorm:"column:uid"`
	Agent    string `gorm:"column:agent"`
}

// Matcher runs the predicate SELECT over the store.
type Matcher struct {
	db *gorm.DB
}

// New returns a matcher over the given handle.
func New(database *gorm.DB) *Matcher {
	return &Matcher{db: database}
}

// LookupPVP returns the distinct delivery targets whose owner holds at
// least one query matching the item, whose day-hours mask covers the item's
// start, whose agent binding is active, and whose watermark for the item's
// feed (rx_event for event items, rx_pvp otherwise) is older than the item.
// The day-hours column and the watermark column are the only interpolated
// identifiers; each comes from a closed two-element set.
func (m *Matcher) LookupPVP(ctx context.Context, item *feed.PVPItem) ([]Match, error) {
	half, bit := feed.DayHoursBucket(item.StartTime)
	rxColumn := "rx_pvp"
	if item.Mode == feed.ModeEvent {
		rxColumn = "rx_event"
	}
	stmt := fmt.Sprintf(`
		SELECT DISTINCT
		  user_actions.id  AS target_id,
		  users.id         AS uid,
		  user_action_agents.act_agent AS agent
		FROM pvp_queries
		  INNER JOIN users ON users.id = pvp_queries.uid
		  INNER JOIN user_action_agents ON user_action_agents.uid = users.id
		  INNER JOIN user_actions ON user_actions.aid = user_action_agents.id
		WHERE ( users.%s & ? ) != 0
		  AND ( pvp_queries.modes & ? ) != 0
		  AND ( pvp_queries.rules & ? ) != 0
		  AND ( pvp_queries.includes & ? ) != 0
		  AND ( pvp_queries.excludes & ? ) = 0
		  AND user_action_agents.act_active
		  AND user_actions.%s < ?`,
		feed.DayHoursColumn(half),
		rxColumn,
	)

	var matches []Match
	err := m.db.WithContext(ctx).
		Raw(stmt,
			int64(1)<<bit,
			uint8(item.Mode),
			uint8(item.Rule),
			item.StageMask(),
			item.StageMask(),
			item.StartTime.Unix(),
		).
		Scan(&matches).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	return matches, nil
}
