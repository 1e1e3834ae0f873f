// Package agent defines the delivery capability interface and the registry
// the dispatcher resolves agent names through. Each agent variant carries
// its own state (a VAPID key and HTTPS client for webpush, nothing for
// infolog) behind the single Agent interface; optional capabilities are
// discovered by interface assertion.
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/feed"
	"github.com/inkwatch/inkwatch/internal/render"
	"github.com/inkwatch/inkwatch/internal/repository"
)

// Env is the shared value handed to every agent call: the store
// repositories and, when image rendering is configured, the
// renderer and its public base URL.
type Env struct {
	Users   *repository.Users
	Actions *repository.Actions

	// Renderer may be nil; agents that decorate notifications with images
	// must degrade to image-less payloads.
	Renderer     *render.Renderer
	ImageBaseURL string

	Logger *zap.Logger
}

// Agent is one named delivery capability. Emit must be internally
// idempotent when the same (target, item) pair is re-offered, and must
// surface transient failures through the errs taxonomy so the dispatcher
// retries them.
type Agent interface {
	Name() string
	Emit(ctx context.Context, env *Env, uid, targetID int64, item *feed.PVPItem) error
}

// Tester is the optional self-test capability.
type Tester interface {
	Test(ctx context.Context, env *Env, uid, targetID int64) error
}

// ExtInfoProvider is the optional extractor of agent-specific display
// metadata for target listings.
type ExtInfoProvider interface {
	ExtInfo(ctx context.Context, env *Env, targetID int64) (any, error)
}

// Registry maps agent names to agents.
type Registry map[string]Agent

// Register adds an agent under its own name.
func (r Registry) Register(a Agent) { r[a.Name()] = a }

// Lookup resolves a name; ok is false for unknown agents.
func (r Registry) Lookup(name string) (Agent, bool) {
	a, ok := r[name]
	return a, ok
}
