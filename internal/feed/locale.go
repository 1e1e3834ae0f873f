package feed

import (
	"time"

	"github.com/inkwatch/inkwatch/internal/errs"
)

// Language is a user's preferred notification language, from a small closed
// set. Values are stored as their string form.
type Language string

const (
	LangEnUS Language = "en-us"
	LangJaJP Language = "ja-jp"
	LangZhCN Language = "zh-cn"
)

// DefaultLanguage is applied on user creation when no language is given.
const DefaultLanguage = LangEnUS

// ParseLanguage validates a stored or submitted language string.
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case LangEnUS, LangJaJP, LangZhCN:
		return Language(s), nil
	default:
		return "", errs.InvalidParameter("language", s)
	}
}

// TimeZone is a named fixed offset from the closed set the renderer and the
// webpush payload understand.
type TimeZone string

const (
	TZJst  TimeZone = "jst"
	TZPt   TimeZone = "pt"
	TZCest TimeZone = "cest"
	TZCst  TimeZone = "cst"
)

// DefaultTimeZone is applied on user creation when no time zone is given.
const DefaultTimeZone = TZJst

// ParseTimeZone validates a stored or submitted time zone string.
func ParseTimeZone(s string) (TimeZone, error) {
	switch TimeZone(s) {
	case TZJst, TZPt, TZCest, TZCst:
		return TimeZone(s), nil
	default:
		return "", errs.InvalidParameter("time_zone", s)
	}
}

var tzOffsets = map[TimeZone]*time.Location{
	TZJst:  time.FixedZone("JST", 9*60*60),
	TZPt:   time.FixedZone("PT", -7*60*60),
	TZCest: time.FixedZone("CEST", 2*60*60),
	TZCst:  time.FixedZone("CST", 8*60*60),
}

// Location returns the fixed offset for the zone.
func (z TimeZone) Location() *time.Location {
	if loc, ok := tzOffsets[z]; ok {
		return loc
	}
	return tzOffsets[DefaultTimeZone]
}
