// Package repository exposes the typed query functions over the store.
// Every top-level operation runs on a borrowed pooled connection (via
// gorm's WithContext) or inside a scoped transaction. All statements are
// parameterized; the matcher's day-hours column and the watermark column
// are the only interpolated identifiers, both chosen from closed sets.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/feed"
)

// wrapErr maps driver-level failures into the service taxonomy.
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.NotFound(err)
	case errors.Is(err, context.DeadlineExceeded):
		// Pool checkout contention surfaces as a deadline on the borrow.
		return errs.PoolTimeout(err)
	default:
		return errs.Store(err)
	}
}

// WatermarkColumn names the user_actions column tracking a feed's delivery
// watermark. The result is interpolated into the update statement, so the
// mapping is the closed set of rx_* columns and nothing else.
func WatermarkColumn(kind feed.Kind) string {
	switch kind {
	case feed.KindPVPRegular, feed.KindPVPBankara, feed.KindPVPXMatch, feed.KindPVPFest:
		return "rx_pvp"
	case feed.KindPVPEvent:
		return "rx_event"
	case feed.KindCoopNormal, feed.KindCoopBigRun:
		return "rx_coop"
	case feed.KindCoopTeamContest:
		return "rx_coop_ex"
	case feed.KindGearLimited:
		return "rx_gear"
	case feed.KindGearPickupBrand:
		return "rx_gear_brand"
	default:
		return "rx_pvp"
	}
}
