// Package spider turns fetched upstream documents into batches of newly
// visible rotation items. It keeps one monotone cursor per feed — the key
// time of the newest item already emitted — and yields only items strictly
// newer than the cursor's previous value.
//
// Cursors are process-lived. A restart resets them to the zero instant,
// which re-announces every currently visible item on the next fetch; the
// per-target delivery watermark suppresses the duplicates downstream.
package spider

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/feed"
	"github.com/inkwatch/inkwatch/internal/upstream"
)

// Spider holds the per-feed cursor state. One reader-writer lock guards all
// cursors; only the poll loops write, and they hold the lock across the
// synchronous diff computation only, never across I/O.
type Spider struct {
	mu      sync.RWMutex
	cursors map[feed.Kind]time.Time
	logger  *zap.Logger
}

// New returns a spider with every cursor at the zero instant.
func New(logger *zap.Logger) *Spider {
	s := &Spider{logger: logger.Named("spider")}
	s.resetLocked()
	return s
}

func (s *Spider) resetLocked() {
	s.cursors = map[feed.Kind]time.Time{
		feed.KindGearPickupBrand: {},
		feed.KindGearLimited:     {},
		feed.KindPVPRegular:      {},
		feed.KindPVPBankara:      {},
		feed.KindPVPXMatch:       {},
		feed.KindPVPEvent:        {},
		feed.KindPVPFest:         {},
		feed.KindCoopNormal:      {},
		feed.KindCoopBigRun:      {},
		feed.KindCoopTeamContest: {},
	}
}

// Reset drops every cursor back to the zero instant, re-announcing the full
// visible window on the next fetch.
func (s *Spider) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Cursor reads one cursor, for observability and tests.
func (s *Spider) Cursor(kind feed.Kind) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[kind]
}

// advance moves one cursor forward if key is newer, returning the prior
// value and whether the caller should emit from this sub-list.
func (s *Spider) advance(kind feed.Kind, key time.Time) (old time.Time, moved bool) {
	old = s.cursors[kind]
	if !key.After(old) {
		return old, false
	}
	s.cursors[kind] = key
	s.logger.Debug("cursor advanced",
		zap.String("feed", kind.String()),
		zap.Time("from", old),
		zap.Time("to", key),
	)
	return old, true
}

// UpdateSchedules diffs a fetched schedules document against the pvp and
// coop cursors and returns the newly visible items. Ranked slots emit two
// items (Challenge + Open) from one upstream tuple; slots with a missing
// settings tuple emit nothing.
func (s *Spider) UpdateSchedules(resp *upstream.SchedulesResponse) ([]feed.PVPItem, []feed.CoopItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pvp []feed.PVPItem
	var coop []feed.CoopItem
	data := &resp.Data

	// regular
	if nodes := data.RegularSchedules.Nodes; len(nodes) > 0 {
		if old, ok := s.advance(feed.KindPVPRegular, nodes[len(nodes)-1].StartTime.Time); ok {
			for _, n := range nodes {
				if n.StartTime.After(old) && n.RegularMatchSetting != nil {
					pvp = append(pvp, pvpItem(feed.ModeRegular, n.TimePeriod, n.RegularMatchSetting))
				}
			}
		}
	}

	// bankara
	if nodes := data.BankaraSchedules.Nodes; len(nodes) > 0 {
		if old, ok := s.advance(feed.KindPVPBankara, nodes[len(nodes)-1].StartTime.Time); ok {
			for _, n := range nodes {
				if n.StartTime.After(old) && len(n.BankaraMatchSettings) == 2 {
					pvp = append(pvp,
						pvpItem(feed.ModeChallenge, n.TimePeriod, &n.BankaraMatchSettings[0]),
						pvpItem(feed.ModeOpen, n.TimePeriod, &n.BankaraMatchSettings[1]),
					)
				}
			}
		}
	}

	// x match
	if nodes := data.XSchedules.Nodes; len(nodes) > 0 {
		if old, ok := s.advance(feed.KindPVPXMatch, nodes[len(nodes)-1].StartTime.Time); ok {
			for _, n := range nodes {
				if n.StartTime.After(old) && n.XMatchSetting != nil {
					pvp = append(pvp, pvpItem(feed.ModeX, n.TimePeriod, n.XMatchSetting))
				}
			}
		}
	}

	// fest
	if nodes := data.FestSchedules.Nodes; len(nodes) > 0 {
		if old, ok := s.advance(feed.KindPVPFest, nodes[len(nodes)-1].StartTime.Time); ok {
			for _, n := range nodes {
				if n.StartTime.After(old) && n.FestMatchSetting != nil {
					pvp = append(pvp, pvpItem(feed.ModeFest, n.TimePeriod, n.FestMatchSetting))
				}
			}
		}
	}

	// event: each node shares one league setting across a list of time
	// periods; the sub-list key is the last node's last period start.
	if nodes := data.EventSchedules.Nodes; len(nodes) > 0 {
		if key, ok := lastEventStart(nodes); ok {
			if old, moved := s.advance(feed.KindPVPEvent, key); moved {
				for _, n := range nodes {
					for _, p := range n.TimePeriods {
						if p.StartTime.After(old) {
							pvp = append(pvp, pvpItem(feed.ModeEvent, p, &n.LeagueMatchSetting.MatchSetting))
						}
					}
				}
			}
		}
	}

	// coop normal
	if nodes := data.CoopSchedule.RegularSchedules.Nodes; len(nodes) > 0 {
		if old, ok := s.advance(feed.KindCoopNormal, nodes[len(nodes)-1].StartTime.Time); ok {
			for _, n := range nodes {
				if n.StartTime.After(old) {
					weapons := make([]string, 0, len(n.Setting.Weapons))
					for _, w := range n.Setting.Weapons {
						weapons = append(weapons, w.SourceID)
					}
					coop = append(coop, feed.CoopItem{
						StartTime: n.StartTime.Time,
						EndTime:   n.EndTime.Time,
						Stage:     n.Setting.CoopStage.ID,
						Weapons:   weapons,
						KingGuess: n.KingGuess,
					})
				}
			}
		}
	}

	return pvp, coop
}

// UpdateGear diffs a fetched gear document against the two gear cursors.
// The pickup brand carries one shared end time; limited listings are keyed
// by the LAST element's end time, and any element beyond it logs a warning.
// Such an element is still emitted with the current window, and again on a
// later fetch that advances the cursor while it is still listed.
func (s *Spider) UpdateGear(resp *upstream.GearResponse) []feed.GearItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var gears []feed.GearItem
	town := &resp.Data.Gesotown

	// Brand gears share the window's single end time, so an advance emits
	// the whole window.
	if _, ok := s.advance(feed.KindGearPickupBrand, town.PickupBrand.SaleEndTime.Time); ok {
		for _, g := range town.PickupBrand.BrandGears {
			gears = append(gears, gearItem(&g))
		}
	}

	if n := len(town.LimitedGears); n > 0 {
		last := town.LimitedGears[n-1].SaleEndTime.Time
		for _, g := range town.LimitedGears {
			if g.SaleEndTime.After(last) {
				s.logger.Warn("limited gear listed past the cursor key",
					zap.String("id", g.ID),
					zap.Time("sale_end_time", g.SaleEndTime.Time),
					zap.Time("cursor_key", last),
				)
			}
		}
		if old, ok := s.advance(feed.KindGearLimited, last); ok {
			for _, g := range town.LimitedGears {
				if g.SaleEndTime.After(old) {
					gears = append(gears, gearItem(&g))
				}
			}
		}
	}

	return gears
}

func pvpItem(mode feed.Mode, period upstream.TimePeriod, setting *upstream.MatchSetting) feed.PVPItem {
	stages := make([]int, 0, len(setting.VsStages))
	for _, st := range setting.VsStages {
		stages = append(stages, st.VsStageID)
	}
	return feed.PVPItem{
		StartTime: period.StartTime.Time,
		EndTime:   period.EndTime.Time,
		Mode:      mode,
		Rule:      feed.RuleFromID(setting.VsRule.ID),
		Stages:    stages,
	}
}

func gearItem(g *upstream.GearSale) feed.GearItem {
	return feed.GearItem{
		SaleEndTime:      g.SaleEndTime.Time,
		ID:               g.ID,
		SourceID:         g.Gear.SourceID,
		Type:             feed.GearTypeFromName(g.Gear.TypeName),
		Brand:            g.Gear.Brand.ID,
		Price:            g.Price,
		PrimaryPower:     g.Gear.PrimaryGearPower.SourceID,
		AdditionalPowers: len(g.Gear.AdditionalPowers),
	}
}

func lastEventStart(nodes []upstream.EventNode) (time.Time, bool) {
	for i := len(nodes) - 1; i >= 0; i-- {
		if ps := nodes[i].TimePeriods; len(ps) > 0 {
			return ps[len(ps)-1].StartTime.Time, true
		}
	}
	return time.Time{}, false
}
