package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inkwatch/inkwatch/internal/db"
	"github.com/inkwatch/inkwatch/internal/feed"
	"github.com/inkwatch/inkwatch/internal/repository"
)

type fixture struct {
	db      *gorm.DB
	users   *repository.Users
	queries *repository.Queries
	actions *repository.Actions
	matcher *Matcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.New(db.Config{
		Path:     ":memory:",
		Logger:   zaptest.NewLogger(t),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	return &fixture{
		db:      database,
		users:   repository.NewUsers(database),
		queries: repository.NewQueries(database),
		actions: repository.NewActions(database),
		matcher: New(database),
	}
}

// seedSubscriber creates a user with an all-accepting day mask, one query
// and one active infolog target, returning (uid, targetID).
func (f *fixture) seedSubscriber(t *testing.T, authUID string, cfg repository.PVPQueryConfig) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.users.Create(ctx, repository.CreateUserRequest{AuthAgent: "google", AuthUID: authUID})
	require.NoError(t, err)
	uid, err := f.users.LookupID(ctx, "google", authUID)
	require.NoError(t, err)
	_, err = f.queries.Create(ctx, uid, &cfg)
	require.NoError(t, err)
	targetID, err := f.actions.CreateTarget(ctx, uid, "infolog")
	require.NoError(t, err)
	return uid, targetID
}

var s1Query = repository.PVPQueryConfig{
	Modes:  []string{"x"},
	Rules:  []string{"clams"},
	Stages: repository.PVPStagesConfig{Includes: []int{1, 2}, Excludes: []int{4, 5}},
}

func s1Item(start time.Time) *feed.PVPItem {
	return &feed.PVPItem{
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		Mode:      feed.ModeX,
		Rule:      feed.RuleClams,
		Stages:    []int{1, 3},
	}
}

func TestLookupMatchesS1(t *testing.T) {
	f := newFixture(t)
	uid, targetID := f.seedSubscriber(t, "u1", s1Query)

	matches, err := f.matcher.LookupPVP(context.Background(), s1Item(time.Now().UTC()))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uid, matches[0].UID)
	assert.Equal(t, targetID, matches[0].TargetID)
	assert.Equal(t, "infolog", matches[0].Agent)
}

func TestLookupExcludeHitS2(t *testing.T) {
	f := newFixture(t)
	f.seedSubscriber(t, "u1", s1Query)

	item := s1Item(time.Now().UTC())
	item.Stages = []int{1, 4}
	matches, err := f.matcher.LookupPVP(context.Background(), item)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLookupRuleMismatchS3(t *testing.T) {
	f := newFixture(t)
	f.seedSubscriber(t, "u1", s1Query)

	item := s1Item(time.Now().UTC())
	item.Rule = feed.RuleRainmaker
	matches, err := f.matcher.LookupPVP(context.Background(), item)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLookupModeMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedSubscriber(t, "u1", s1Query)

	item := s1Item(time.Now().UTC())
	item.Mode = feed.ModeChallenge
	matches, err := f.matcher.LookupPVP(context.Background(), item)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLookupNeutralStages(t *testing.T) {
	f := newFixture(t)
	f.seedSubscriber(t, "u1", s1Query)

	item := s1Item(time.Now().UTC())
	item.Stages = []int{16, 17, 18}
	matches, err := f.matcher.LookupPVP(context.Background(), item)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLookupUnknownRuleMatchesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedSubscriber(t, "u1", s1Query)

	item := s1Item(time.Now().UTC())
	item.Rule = feed.RuleUnknown
	matches, err := f.matcher.LookupPVP(context.Background(), item)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLookupInactiveBinding(t *testing.T) {
	f := newFixture(t)
	uid, _ := f.seedSubscriber(t, "u1", s1Query)
	ctx := context.Background()

	require.NoError(t, f.actions.ToggleAgent(ctx, uid, "infolog", false))
	matches, err := f.matcher.LookupPVP(ctx, s1Item(time.Now().UTC()))
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, f.actions.ToggleAgent(ctx, uid, "infolog", true))
	matches, err = f.matcher.LookupPVP(ctx, s1Item(time.Now().UTC()))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestLookupWatermarkFilters(t *testing.T) {
	f := newFixture(t)
	uid, targetID := f.seedSubscriber(t, "u1", s1Query)
	ctx := context.Background()

	start := time.Now().UTC()
	require.NoError(t, f.actions.AdvanceWatermark(ctx, uid, targetID, feed.KindPVPRegular, start.Unix()))

	// rx_pvp == start_time: already delivered, no match
	matches, err := f.matcher.LookupPVP(ctx, s1Item(start))
	require.NoError(t, err)
	assert.Empty(t, matches)

	// a strictly newer item matches again
	matches, err = f.matcher.LookupPVP(ctx, s1Item(start.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestLookupDayHoursGate(t *testing.T) {
	f := newFixture(t)
	uid, _ := f.seedSubscriber(t, "u1", s1Query)
	ctx := context.Background()

	start := time.Now().UTC()
	half, bit := feed.DayHoursBucket(start)

	// Clear only the item's bucket bit in the relevant half.
	dayHrs := [2]int64{feed.DayHoursMax, feed.DayHoursMax}
	dayHrs[half] &^= int64(1) << bit
	require.NoError(t, f.users.UpdateSettings(ctx, uid, repository.UpdateSettingsRequest{DayHrs: &dayHrs}))

	matches, err := f.matcher.LookupPVP(ctx, s1Item(start))
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Restore the bit and the match comes back.
	dayHrs[half] |= int64(1) << bit
	require.NoError(t, f.users.UpdateSettings(ctx, uid, repository.UpdateSettingsRequest{DayHrs: &dayHrs}))
	matches, err = f.matcher.LookupPVP(ctx, s1Item(start))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestLookupFansOutAcrossUsers(t *testing.T) {
	f := newFixture(t)
	uid1, t1 := f.seedSubscriber(t, "u1", s1Query)
	uid2, t2 := f.seedSubscriber(t, "u2", s1Query)

	// u3 subscribes to a different rule and must not appear
	f.seedSubscriber(t, "u3", repository.PVPQueryConfig{
		Modes:  []string{"x"},
		Rules:  []string{"tower"},
		Stages: repository.PVPStagesConfig{Includes: []int{1, 2}},
	})

	matches, err := f.matcher.LookupPVP(context.Background(), s1Item(time.Now().UTC()))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	got := map[int64]int64{}
	for _, m := range matches {
		got[m.UID] = m.TargetID
	}
	assert.Equal(t, map[int64]int64{uid1: t1, uid2: t2}, got)
}

func TestLookupDistinctAcrossQueries(t *testing.T) {
	f := newFixture(t)
	uid, targetID := f.seedSubscriber(t, "u1", s1Query)
	ctx := context.Background()

	// A second overlapping query must not duplicate the target row.
	_, err := f.queries.Create(ctx, uid, &repository.PVPQueryConfig{
		Modes:  []string{"x", "open"},
		Rules:  []string{"clams", "area"},
		Stages: repository.PVPStagesConfig{Includes: []int{1}},
	})
	require.NoError(t, err)

	matches, err := f.matcher.LookupPVP(ctx, s1Item(time.Now().UTC()))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, targetID, matches[0].TargetID)
}
