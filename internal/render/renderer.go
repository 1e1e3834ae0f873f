// Package render produces the notification card images the webpush agent
// links to. A rendered image is a pure function of its key — platform
// variant, time zone, mode, day and hour — so results are memoized with a
// 48 hour TTL and written once under the output directory as
// base64url(key) + ".jpg", served statically by the HTTP surface.
package render

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/feed"
)

// CacheTTL bounds how long a rendered path is reused before the card is
// painted again.
const CacheTTL = 48 * time.Hour

// Key identifies one rendered card. Two items with the same key render the
// same image.
type Key struct {
	Variant  string // "pc" or "mobile"
	TimeZone feed.TimeZone
	Mode     feed.Mode
	Day      int // day of month of the slot start, in the key time zone
	Hour     int // hour of the slot start, in the key time zone
}

// String flattens the key into the cache/file identifier.
func (k Key) String() string {
	return strings.Join([]string{
		"pvp", k.Variant, string(k.TimeZone), k.Mode.String(),
		fmt.Sprintf("%d", k.Day), fmt.Sprintf("%d", k.Hour),
	}, ".")
}

// Painter rasterizes a card for a key. The built-in painter draws a plain
// card; deployments with real artwork plug their own.
type Painter interface {
	Paint(key Key, item *feed.PVPItem) (image.Image, error)
}

// Renderer memoizes painted cards. A bounded TTL map behind one
// reader-writer lock: reads take the read lock, a miss takes the write
// lock, double-checks, paints while holding it (renders are few and
// cached), inserts.
type Renderer struct {
	outDir  string
	painter Painter
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	path    string
	expires time.Time
}

// New builds a renderer writing under outDir, creating it if needed.
func New(outDir string, painter Painter, logger *zap.Logger) (*Renderer, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("render: create out dir: %w", err)
	}
	if painter == nil {
		painter = cardPainter{}
	}
	return &Renderer{
		outDir:  outDir,
		painter: painter,
		logger:  logger.Named("render"),
		cache:   make(map[string]cacheEntry),
	}, nil
}

// OutDir returns the directory rendered files are written to.
func (r *Renderer) OutDir() string { return r.outDir }

// PVPImage returns the relative file name of the card for the item, painting
// and writing it on first use.
func (r *Renderer) PVPImage(item *feed.PVPItem, variant string, tz feed.TimeZone) (string, error) {
	local := item.StartTime.In(tz.Location())
	key := Key{
		Variant:  variant,
		TimeZone: tz,
		Mode:     item.Mode,
		Day:      local.Day(),
		Hour:     local.Hour(),
	}

	id := key.String()
	now := time.Now()

	r.mu.RLock()
	if e, ok := r.cache[id]; ok && now.Before(e.expires) {
		r.mu.RUnlock()
		return e.path, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.cache[id]; ok && now.Before(e.expires) {
		return e.path, nil
	}

	img, err := r.painter.Paint(key, item)
	if err != nil {
		return "", fmt.Errorf("render: paint %s: %w", id, err)
	}

	path := base64.RawURLEncoding.EncodeToString([]byte(id)) + ".jpg"
	f, err := os.Create(filepath.Join(r.outDir, path))
	if err != nil {
		return "", fmt.Errorf("render: create %s: %w", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("render: encode %s: %w", path, err)
	}

	r.cache[id] = cacheEntry{path: path, expires: now.Add(CacheTTL)}
	r.logger.Debug("rendered", zap.String("key", id), zap.String("path", path))
	return path, nil
}

// Sweep drops expired cache entries and deletes rendered files older than
// the TTL. The janitor calls it periodically so the out dir stays bounded
// across restarts.
func (r *Renderer) Sweep() {
	now := time.Now()

	r.mu.Lock()
	for id, e := range r.cache {
		if !now.Before(e.expires) {
			delete(r.cache, id)
		}
	}
	r.mu.Unlock()

	entries, err := os.ReadDir(r.outDir)
	if err != nil {
		r.logger.Warn("sweep: read out dir", zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > CacheTTL {
			if err := os.Remove(filepath.Join(r.outDir, e.Name())); err != nil {
				r.logger.Warn("sweep: remove", zap.String("file", e.Name()), zap.Error(err))
			}
		}
	}
}

// cardPainter is the built-in flat-card painter. It colors the card by mode
// and bands it by rule so distinct keys are visually distinct even without
// artwork assets.
type cardPainter struct{}

var modeColors = map[feed.Mode]color.RGBA{
	feed.ModeRegular:   {0x99, 0xd6, 0x00, 0xff},
	feed.ModeChallenge: {0xf5, 0x4a, 0x10, 0xff},
	feed.ModeOpen:      {0xf0, 0x6c, 0x16, 0xff},
	feed.ModeX:         {0x0f, 0xd8, 0xb2, 0xff},
	feed.ModeFest:      {0x8b, 0x45, 0xe6, 0xff},
	feed.ModeEvent:     {0xe3, 0x33, 0xa0, 0xff},
}

func (cardPainter) Paint(key Key, item *feed.PVPItem) (image.Image, error) {
	const w, h = 720, 360
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	bg, ok := modeColors[key.Mode]
	if !ok {
		bg = color.RGBA{0x44, 0x44, 0x44, 0xff}
	}
	band := color.RGBA{bg.R / 2, bg.G / 2, bg.B / 2, 0xff}

	bandTop := h - 72 - 24*int(ruleIndex(item.Rule))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if y >= bandTop {
				img.SetRGBA(x, y, band)
			} else {
				img.SetRGBA(x, y, bg)
			}
		}
	}
	return img, nil
}

func ruleIndex(r feed.Rule) uint {
	switch r {
	case feed.RuleArea:
		return 1
	case feed.RuleTower:
		return 2
	case feed.RuleRainmaker:
		return 3
	case feed.RuleClams:
		return 4
	default:
		return 0
	}
}
