// Package app assembles the editor from configuration: the persistence
// backend, lesson catalog, notifier fan-out, websocket hub, progress tracker,
// editor session and the optional workspace mirror.
package app

import (
	"context"
	"errors"

	"github.com/conneroisu/codecraft/internal/catalog"
	"github.com/conneroisu/codecraft/internal/config"
	"github.com/conneroisu/codecraft/internal/editor"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/health"
	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/conneroisu/codecraft/internal/middleware"
	"github.com/conneroisu/codecraft/internal/notify"
	"github.com/conneroisu/codecraft/internal/progress"
	"github.com/conneroisu/codecraft/internal/projects"
	"github.com/conneroisu/codecraft/internal/watcher"
	"github.com/conneroisu/codecraft/internal/websocket"
)

// Store is what every backend provides.
type Store interface {
	projects.Adapter
	progress.Store
	health.Pinger
}

// OpenStore connects the configured backend. The returned close function is
// never nil.
func OpenStore(ctx context.Context, cfg config.BackendConfig) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case config.BackendMemory, "":
		return projects.NewMemoryStore(), noop, nil
	case config.BackendSQLite:
		s, err := projects.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.BackendPostgres:
		s, err := projects.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.BackendREST:
		s, err := projects.NewRestStore(projects.RestConfig{
			BaseURL:     cfg.URL,
			AnonKey:     cfg.AnonKey,
			AccessToken: cfg.AccessToken,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	default:
		return nil, noop, apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid, "unknown backend kind "+cfg.Kind)
	}
}

// App owns every long-lived component.
type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Store    Store
	Catalog  *catalog.Catalog
	Origins  *middleware.OriginValidator
	Hub      *websocket.Hub
	Notifier notify.Notifier
	Tracker  *progress.Tracker
	Session  *editor.Session
	// Mirror is nil unless a workspace directory is configured.
	Mirror *watcher.Mirror
	Health *health.Monitor

	closeStore func() error
	detach     func()
}

// New builds the application. Nothing runs in the background until Start.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid, "configuration is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	store, closeStore, err := OpenStore(ctx, cfg.Backend)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Store: store, closeStore: closeStore}
	if err := a.build(); err != nil {
		_ = closeStore()
		return nil, err
	}
	logger.Info(ctx, "Application ready",
		"backend", cfg.Backend.Kind,
		"signed_in", cfg.Identity.OwnerID != "",
		"workspace", cfg.Workspace.Dir)
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config

	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	a.Catalog = cat

	a.Origins = middleware.NewOriginValidator(cfg.Server.Host, cfg.Server.Port, cfg.Server.AllowedOrigins)
	a.Hub = websocket.NewHub(a.Origins, a.Logger, websocket.Options{})
	a.Notifier = notify.Multi{notify.NewLogNotifier(a.Logger), a.Hub}
	a.Tracker = progress.NewTracker(a.Store, a.Notifier, a.Logger)

	a.Session, err = editor.New(a.Store, a.Notifier, editor.Options{
		OwnerID: cfg.Identity.OwnerID,
		Policy:  cfg.Policy(),
		Logger:  a.Logger,
	})
	if err != nil {
		return err
	}
	a.detach = a.Hub.Attach(a.Session.Sandbox())
	if frame, ok := a.Session.Frame(); ok {
		a.Hub.PublishFrame(frame)
	}

	a.Health = health.NewMonitor(a.Logger)
	a.Health.Register(health.BackendChecker(cfg.Backend.Kind, a.Store))
	a.Health.Register(health.SessionChecker(a.Session))
	a.Health.Register(health.PreviewChecker(a.Session.Sandbox()))
	a.Health.Register(health.HubChecker(a.Hub))

	if cfg.Workspace.Dir != "" {
		a.Mirror, err = watcher.NewMirror(cfg.Workspace.Dir, a.Session, cfg.Workspace.Debounce, a.Logger)
		if err != nil {
			a.detach()
			a.Session.Close()
			return err
		}
		a.Health.Register(health.WorkspaceChecker(a.Mirror.Dir()))
	}
	return nil
}

// Start loads the workspace and follows it, and fetches the owner's lesson
// progress. A progress failure is already reported to the user and does not
// stop the application.
func (a *App) Start(ctx context.Context) error {
	if a.Mirror != nil {
		if err := a.Mirror.Start(ctx); err != nil {
			return err
		}
	}
	if owner := a.Session.Owner(); owner != "" {
		if err := a.Tracker.Fetch(ctx, owner); err != nil {
			a.Logger.Warn(ctx, err, "Progress unavailable", "owner", owner)
		}
	}
	return nil
}

// Close releases everything in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Mirror != nil {
		errs = append(errs, a.Mirror.Stop())
	}
	if a.Hub != nil {
		errs = append(errs, a.Hub.Shutdown(ctx))
	}
	if a.detach != nil {
		a.detach()
	}
	if a.Session != nil {
		a.Session.Close()
		a.Session.Wait()
	}
	if a.closeStore != nil {
		errs = append(errs, a.closeStore())
	}
	return errors.Join(errs...)
}
