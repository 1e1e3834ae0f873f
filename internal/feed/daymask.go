package feed

import "time"

// The day-hours mask gates when a user accepts deliveries: 7 days × 12
// two-hour buckets = 84 bits. That does not fit one 64-bit column (and a
// JavaScript client cannot represent integers above 2^53), so the mask is
// stored as two 48-bit halves: days 0..3 in day_hrs_0, days 4..6 in
// day_hrs_1. Weekdays are numbered with Sunday = 0.

// DayHoursMax is the all-accepting value of one 48-bit half.
const DayHoursMax int64 = (1 << 48) - 1

// jst is the fixed +09:00 offset the rotation grid is expressed in.
var jst = time.FixedZone("JST", 9*60*60)

// DayHoursBucket converts an instant to its day-hours bucket: which half
// column holds the bit, and the bit's position within that half.
func DayHoursBucket(t time.Time) (half int, bit int) {
	local := t.In(jst)
	weekday := int(local.Weekday())
	half = weekday / 4
	bit = local.Hour()/2 + 12*(weekday%4)
	return half, bit
}

// DayHoursColumn names the users column holding the given half. The result
// feeds the one identifier interpolation the matcher performs, so the set of
// possible values is closed here.
func DayHoursColumn(half int) string {
	if half == 0 {
		return "day_hrs_0"
	}
	return "day_hrs_1"
}
