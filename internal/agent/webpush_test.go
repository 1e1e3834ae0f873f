package agent

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inkwatch/inkwatch/internal/db"
	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/feed"
	"github.com/inkwatch/inkwatch/internal/repository"
)

func writeVAPIDPem(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vapid.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: der,
	}), 0o600))
	return path
}

func TestLoadVAPIDKeys(t *testing.T) {
	wp, err := NewWebPush(WebPushConfig{PrivatePEMPath: writeVAPIDPem(t)})
	require.NoError(t, err)
	assert.Equal(t, "webpush", wp.Name())
	assert.NotEmpty(t, wp.vapidPrivate)
	assert.NotEmpty(t, wp.vapidPublic)

	// public key is a 65-byte uncompressed point
	pub, err := base64.RawURLEncoding.DecodeString(wp.vapidPublic)
	require.NoError(t, err)
	assert.Len(t, pub, 65)
	assert.Equal(t, byte(4), pub[0])
}

func TestLoadVAPIDKeysRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0o600))
	_, err := NewWebPush(WebPushConfig{PrivatePEMPath: path})
	assert.Equal(t, errs.KindInvalidParameter, errs.KindOf(err))

	_, err = NewWebPush(WebPushConfig{PrivatePEMPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Equal(t, errs.KindInvalidParameter, errs.KindOf(err))
}

func TestPlatformVariant(t *testing.T) {
	win := "Windows 11"
	mac := "macOS"
	assert.Equal(t, "pc", platformVariant(&win))
	assert.Equal(t, "mobile", platformVariant(&mac))
	assert.Equal(t, "mobile", platformVariant(nil))
}

func TestItemTagCollapsesSameSlot(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := &feed.PVPItem{Mode: feed.ModeX, StartTime: start, Stages: []int{1, 2}}
	b := &feed.PVPItem{Mode: feed.ModeX, StartTime: start, Stages: []int{3, 4}}
	c := &feed.PVPItem{Mode: feed.ModeOpen, StartTime: start}

	assert.Equal(t, itemTag(a), itemTag(b))
	assert.NotEqual(t, itemTag(a), itemTag(c))

	decoded, err := base64.StdEncoding.DecodeString(itemTag(a))
	require.NoError(t, err)
	assert.Equal(t, "pvp-x-1709287200", string(decoded))
}

func TestStageBody(t *testing.T) {
	names := feed.NamerFor(feed.LangEnUS)
	assert.Equal(t, "[Sturgeon Shipyard] & [Manta Maria]", stageBody(names, []int{14, 18}))
}

// subscriptionKeys builds a browser-side subscription key pair the library
// can encrypt against.
func subscriptionKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	point := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(point), base64.RawURLEncoding.EncodeToString(secret)
}

type pushFixture struct {
	env      *Env
	agent    *WebPush
	uid      int64
	targetID int64
}

func newPushFixture(t *testing.T, endpoint string) *pushFixture {
	t.Helper()
	database, err := db.New(db.Config{
		Path:     ":memory:",
		Logger:   zaptest.NewLogger(t),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)

	users := repository.NewUsers(database)
	actions := repository.NewActions(database)
	ctx := context.Background()

	_, err = users.Create(ctx, repository.CreateUserRequest{AuthAgent: "google", AuthUID: "u1"})
	require.NoError(t, err)
	uid, err := users.LookupID(ctx, "google", "u1")
	require.NoError(t, err)
	targetID, err := actions.CreateTarget(ctx, uid, "webpush")
	require.NoError(t, err)

	p256dh, auth := subscriptionKeys(t)
	osName := "Windows 10"
	require.NoError(t, actions.UpsertWebpush(ctx, &db.WebpushExtInfo{
		ID:       targetID,
		UID:      uid,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
		OS:       &osName,
	}))

	wp, err := NewWebPush(WebPushConfig{PrivatePEMPath: writeVAPIDPem(t)})
	require.NoError(t, err)

	return &pushFixture{
		env: &Env{
			Users:        users,
			Actions:      actions,
			ImageBaseURL: "https://inkwatch.example.com",
			Logger:       zaptest.NewLogger(t),
		},
		agent:    wp,
		uid:      uid,
		targetID: targetID,
	}
}

func pushItem() *feed.PVPItem {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &feed.PVPItem{
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		Mode:      feed.ModeX,
		Rule:      feed.RuleClams,
		Stages:    []int{14, 18},
	}
}

func TestEmitPostsEncryptedPayload(t *testing.T) {
	var got struct {
		encoding string
		vapid    bool
		bodyLen  int
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.encoding = r.Header.Get("Content-Encoding")
		got.vapid = len(r.Header.Get("Authorization")) > 0
		got.bodyLen = len(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	f := newPushFixture(t, srv.URL)
	err := f.agent.Emit(context.Background(), f.env, f.uid, f.targetID, pushItem())
	require.NoError(t, err)

	assert.Equal(t, "aes128gcm", got.encoding)
	assert.True(t, got.vapid)
	// the cleartext never travels: the body is the encrypted record
	assert.Greater(t, got.bodyLen, 0)
	raw, _ := json.Marshal(map[string]string{"title": "Clam Blitz - X Battle"})
	assert.NotEqual(t, len(raw), got.bodyLen)
}

func TestEmitClassifiesEndpointFailures(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		wantErr   bool
	}{
		{http.StatusCreated, false, false},
		{http.StatusNoContent, false, false},
		{http.StatusGone, false, true},      // revoked subscription: permanent
		{http.StatusBadGateway, true, true}, // push service hiccup: transient
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		f := newPushFixture(t, srv.URL)

		err := f.agent.Emit(context.Background(), f.env, f.uid, f.targetID, pushItem())
		if tc.wantErr {
			require.Error(t, err, "status %d", tc.status)
			assert.Equal(t, tc.transient, errs.Transient(err), "status %d", tc.status)
		} else {
			assert.NoError(t, err, "status %d", tc.status)
		}
		srv.Close()
	}
}

func TestEmitMissingSubscriptionIsUnauthorized(t *testing.T) {
	f := newPushFixture(t, "https://push.example/ep")
	err := f.agent.Emit(context.Background(), f.env, f.uid, f.targetID+100, pushItem())
	require.Error(t, err)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	assert.False(t, errs.Transient(err))
}

func TestTestDeliverySendsMinimalPayload(t *testing.T) {
	var bodyLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodyLen = len(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	f := newPushFixture(t, srv.URL)
	require.NoError(t, f.agent.Test(context.Background(), f.env, f.uid, f.targetID))
	assert.Greater(t, bodyLen, 0)
}
