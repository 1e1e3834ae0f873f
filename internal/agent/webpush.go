package agent

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/feed"
)

// WebPushConfig is the webpush agent's slice of the config file.
type WebPushConfig struct {
	// PrivatePEMPath points at the VAPID EC private key (SEC1 or PKCS#8).
	PrivatePEMPath string `json:"private_pem_path"`
	// Subscriber is the contact claim sent with the VAPID JWT.
	Subscriber string `json:"subscriber"`
}

// WebPush posts VAPID-signed, AES128GCM-encrypted notifications to
// subscriber-supplied endpoints.
type WebPush struct {
	vapidPrivate string
	vapidPublic  string
	subscriber   string
	client       *http.Client
}

// NewWebPush loads the VAPID key pair from the configured PEM file.
func NewWebPush(cfg WebPushConfig) (*WebPush, error) {
	priv, pub, err := loadVAPIDKeys(cfg.PrivatePEMPath)
	if err != nil {
		return nil, err
	}
	subscriber := cfg.Subscriber
	if subscriber == "" {
		subscriber = "https://github.com/inkwatch/inkwatch"
	}
	return &WebPush{
		vapidPrivate: priv,
		vapidPublic:  pub,
		subscriber:   subscriber,
		client:       &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (*WebPush) Name() string { return "webpush" }

// notification is the JSON payload the service worker displays. The tag
// collapses duplicate notifications for the same slot on the receiving end.
type notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Tag       string `json:"tag"`
	Timestamp int64  `json:"timestamp"`
	Image     string `json:"image,omitempty"`
	Icon      string `json:"icon,omitempty"`
}

// Emit builds and sends the notification for one rotation item.
func (w *WebPush) Emit(ctx context.Context, env *Env, uid, targetID int64, item *feed.PVPItem) error {
	target, err := env.Actions.GetWebpushTarget(ctx, uid, targetID)
	if err != nil {
		// A missing extension row means the subscription is gone; there is
		// nothing to retry.
		return err
	}

	lang, err := feed.ParseLanguage(target.Language)
	if err != nil {
		return errs.Internal(err)
	}
	tz, err := feed.ParseTimeZone(target.TimeZone)
	if err != nil {
		return errs.Internal(err)
	}

	names := feed.NamerFor(lang)
	payload := notification{
		Title:     fmt.Sprintf("%s - %s", names.RuleName(item.Rule), names.ModeName(item.Mode)),
		Body:      stageBody(names, item.Stages),
		Tag:       itemTag(item),
		Timestamp: item.StartTime.UnixMilli(),
		Icon:      fmt.Sprintf("%s/icon/%s.png", env.ImageBaseURL, item.Mode),
	}

	if env.Renderer != nil {
		variant := platformVariant(target.OS)
		path, err := env.Renderer.PVPImage(item, variant, tz)
		if err != nil {
			// Image decoration is best-effort; the notification still goes out.
			env.Logger.Warn("render failed, sending without image", zap.Error(err))
		} else {
			payload.Image = fmt.Sprintf("%s/_/image/%s", env.ImageBaseURL, path)
		}
	}

	return w.send(ctx, target.Endpoint, target.P256dh, target.Auth, &payload)
}

// Test sends a minimal payload without an image.
func (w *WebPush) Test(ctx context.Context, env *Env, uid, targetID int64) error {
	target, err := env.Actions.GetWebpushTarget(ctx, uid, targetID)
	if err != nil {
		return err
	}
	payload := notification{
		Title:     "inkwatch",
		Body:      "Notifications are working.",
		Tag:       base64.StdEncoding.EncodeToString([]byte("test")),
		Timestamp: time.Now().UnixMilli(),
	}
	return w.send(ctx, target.Endpoint, target.P256dh, target.Auth, &payload)
}

// ExtInfo returns the stored browser/device/os strings for listings.
func (w *WebPush) ExtInfo(ctx context.Context, env *Env, targetID int64) (any, error) {
	return env.Actions.WebpushExtInfo(ctx, targetID)
}

// send encrypts the payload, signs the VAPID header and posts to the
// endpoint. 201/204 is success, other 4xx is permanent (the subscription
// is likely revoked), 5xx and transport failures are transient.
func (w *WebPush) send(ctx context.Context, endpoint, p256dh, auth string, payload *notification) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Internal(err)
	}

	sub := &webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: p256dh,
			Auth:   auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, body, sub, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.subscriber,
		VAPIDPrivateKey: w.vapidPrivate,
		VAPIDPublicKey:  w.vapidPublic,
		TTL:             3600,
	})
	if err != nil {
		return errs.Network(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errs.Unauthorized()
	default:
		return errs.Network(fmt.Errorf("push endpoint returned %d", resp.StatusCode))
	}
}

// platformVariant picks the card layout from the stored OS string.
func platformVariant(os *string) string {
	if os != nil && strings.HasPrefix(*os, "Windows") {
		return "pc"
	}
	return "mobile"
}

// stageBody formats the two-stage body line; slots always carry two stages
// but a defensive join keeps odd payloads printable.
func stageBody(names feed.Namer, stages []int) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, "["+names.StageName(s)+"]")
	}
	return strings.Join(parts, " & ")
}

// itemTag derives the dedup tag for a slot.
func itemTag(item *feed.PVPItem) string {
	raw := fmt.Sprintf("pvp-%s-%d", item.Mode, item.StartTime.Unix())
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// loadVAPIDKeys reads an EC P-256 private key PEM and derives the base64url
// raw key strings the web-push library signs with.
func loadVAPIDKeys(path string) (private, public string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", errs.InvalidParameter("webpush.private_pem_path", path)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return "", "", errs.InvalidParameter("webpush.private_pem_path", path)
	}

	var key *ecdsa.PrivateKey
	if k, e := x509.ParseECPrivateKey(block.Bytes); e == nil {
		key = k
	} else if k, e := x509.ParsePKCS8PrivateKey(block.Bytes); e == nil {
		ec, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return "", "", errs.InvalidParameter("webpush.private_pem_path", path)
		}
		key = ec
	} else {
		return "", "", errs.InvalidParameter("webpush.private_pem_path", path)
	}
	if key.Curve != elliptic.P256() {
		return "", "", errs.InvalidParameter("webpush.private_pem_path", path)
	}

	d := key.D.Bytes()
	padded := make([]byte, 32)
	copy(padded[32-len(d):], d)
	private = base64.RawURLEncoding.EncodeToString(padded)
	public = base64.RawURLEncoding.EncodeToString(
		elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y),
	)
	return private, public, nil
}
