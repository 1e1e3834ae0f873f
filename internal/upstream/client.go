// Package upstream fetches and decodes the public schedule and gear feeds.
// The two endpoints are plain HTTP GETs returning large JSON documents; the
// decoded trees keep only the fields the diff stage needs and tolerate
// everything else.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/errs"
)

const (
	schedulesURL = "https://splatoon3.ink/data/schedules.json"
	gearURL      = "https://splatoon3.ink/data/gear.json"
)

// Client fetches the two upstream documents.
type Client struct {
	http   *http.Client
	logger *zap.Logger

	// overridable in tests
	schedulesURL string
	gearURL      string
}

// NewClient builds a client with a bounded request timeout.
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger.Named("upstream"),
		schedulesURL: schedulesURL,
		gearURL:      gearURL,
	}
}

// Schedules fetches and decodes the schedules document.
func (c *Client) Schedules(ctx context.Context) (*SchedulesResponse, error) {
	var out SchedulesResponse
	if err := c.getJSON(ctx, c.schedulesURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Gear fetches and decodes the gear document.
func (c *Client) Gear(ctx context.Context) (*GearResponse, error) {
	var out GearResponse
	if err := c.getJSON(ctx, c.gearURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Internal(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Network(err)
	}
	defer resp.Body.Close()

	c.logger.Debug("GET", zap.String("url", url), zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return errs.Network(fmt.Errorf("GET %s: status %d", url, resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Network(fmt.Errorf("GET %s: decode: %w", url, err))
	}
	return nil
}
