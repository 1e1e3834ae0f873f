package db

import "time"

// Models mirror the migration DDL; golang-migrate owns the schema and GORM
// never auto-migrates. Surrogate ids are plain integers — the HTTP surface
// hands them to JavaScript clients, which cannot represent values past 2^53,
// and SQLite rowids stay far below that.

// User is one authenticated identity, unique on (auth_agent, auth_uid).
// Language and time zone are always present, defaulted on creation. The
// day-hours delivery mask is 84 bits (7 days x 12 two-hour buckets) split
// across two 48-bit halves: days 0..3 in DayHrs0, days 4..6 in DayHrs1.
type User struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	CreatedTime time.Time `gorm:"column:created_time;autoCreateTime"`
	AuthAgent   string    `gorm:"column:auth_agent"`
	AuthUID     string    `gorm:"column:auth_uid"`
	Name        *string   `gorm:"column:name"`
	Email       *string   `gorm:"column:email"`
	Picture     *string   `gorm:"column:picture"`
	Language    string    `gorm:"column:language"`
	TimeZone    string    `gorm:"column:time_zone"`
	DayHrs0     int64     `gorm:"column:day_hrs_0"`
	DayHrs1     int64     `gorm:"column:day_hrs_1"`
}

func (User) TableName() string { return "users" }

// PVPQuery is one stored subscription predicate, packed as bitmasks:
// 8 mode bits, 8 rule bits, and 32 include/exclude stage bits where bit i
// is stage id i+1.
type PVPQuery struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	UID         int64     `gorm:"column:uid"`
	CreatedTime time.Time `gorm:"column:created_time;autoCreateTime"`
	Modes       uint8     `gorm:"column:modes"`
	Rules       uint8     `gorm:"column:rules"`
	Includes    uint32    `gorm:"column:includes"`
	Excludes    uint32    `gorm:"column:excludes"`
}

func (PVPQuery) TableName() string { return "pvp_queries" }

// UserActionAgent is a user's binding to a named delivery agent, with an
// independent active flag. One row per (user, agent name).
type UserActionAgent struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	UID       int64  `gorm:"column:uid"`
	ActAgent  string `gorm:"column:act_agent"`
	ActActive bool   `gorm:"column:act_active"`
}

func (UserActionAgent) TableName() string { return "user_action_agents" }

// UserAction is one concrete delivery target under an agent binding, with
// per-feed watermarks. Each Rx column is the unix-second start time of the
// newest item already delivered on that feed; deliveries only ever raise it.
type UserAction struct {
	ID          int64 `gorm:"column:id;primaryKey"`
	UID         int64 `gorm:"column:uid"`
	AID         int64 `gorm:"column:aid"`
	RxPVP       int64 `gorm:"column:rx_pvp"`
	RxEvent     int64 `gorm:"column:rx_event"`
	RxCoop      int64 `gorm:"column:rx_coop"`
	RxCoopEx    int64 `gorm:"column:rx_coop_ex"`
	RxGear      int64 `gorm:"column:rx_gear"`
	RxGearBrand int64 `gorm:"column:rx_gear_brand"`
}

func (UserAction) TableName() string { return "user_actions" }

// WebpushExtInfo extends a webpush delivery target with its subscription
// keys and opaque display strings. Its lifetime equals the target row's
// lifetime (cascade delete).
type WebpushExtInfo struct {
	ID       int64   `gorm:"column:id;primaryKey"`
	UID      int64   `gorm:"column:uid"`
	Endpoint string  `gorm:"column:endpoint"`
	P256dh   string  `gorm:"column:p256dh"`
	Auth     string  `gorm:"column:auth"`
	Browser  *string `gorm:"column:browser"`
	Device   *string `gorm:"column:device"`
	OS       *string `gorm:"column:os"`
}

func (WebpushExtInfo) TableName() string { return "webpush_ext_info" }
