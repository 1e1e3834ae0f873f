package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inkwatch/inkwatch/internal/agent"
	"github.com/inkwatch/inkwatch/internal/api"
	"github.com/inkwatch/inkwatch/internal/auth"
	"github.com/inkwatch/inkwatch/internal/config"
	"github.com/inkwatch/inkwatch/internal/db"
	"github.com/inkwatch/inkwatch/internal/dispatch"
	"github.com/inkwatch/inkwatch/internal/matcher"
	"github.com/inkwatch/inkwatch/internal/metrics"
	"github.com/inkwatch/inkwatch/internal/poll"
	"github.com/inkwatch/inkwatch/internal/render"
	"github.com/inkwatch/inkwatch/internal/repository"
	"github.com/inkwatch/inkwatch/internal/spider"
	"github.com/inkwatch/inkwatch/internal/upstream"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "inkwatch <config.json>",
		Short: "inkwatch — subscription notifications for the public schedule feed",
		Long: `inkwatch polls the public schedule and gear feeds, matches newly
appeared rotation items against per-user subscription queries, and fans the
matches out to each user's delivery targets (web push, log).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("inkwatch %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})
	return root
}

func run(ctx context.Context, configPath string) error {
	logger, err := buildLogger(os.Getenv("INKWATCH_LOG_LEVEL"))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Info("starting inkwatch",
		zap.String("version", version),
		zap.Int("port", cfg.Port),
		zap.Bool("tls", cfg.TLS.Enabled()),
		zap.String("db_path", cfg.Database.Path),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Store ---
	database, err := db.New(db.Config{
		Path:         cfg.Database.Path,
		Logger:       logger,
		LogLevel:     gormlogger.Warn,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	users := repository.NewUsers(database)
	queries := repository.NewQueries(database)
	actions := repository.NewActions(database)

	// --- Renderer ---
	var renderer *render.Renderer
	if cfg.Image.Enabled() {
		renderer, err = render.New(cfg.Image.OutDir, nil, logger)
		if err != nil {
			return err
		}
	}

	// --- Delivery agents ---
	agents := agent.Registry{}
	if cfg.Agents.InfoLog != nil {
		agents.Register(agent.NewInfoLog())
	}
	if cfg.Agents.WebPush != nil {
		wp, err := agent.NewWebPush(*cfg.Agents.WebPush)
		if err != nil {
			return fmt.Errorf("webpush agent: %w", err)
		}
		agents.Register(wp)
	}
	if len(agents) == 0 {
		logger.Warn("no delivery agents configured")
	}
	env := &agent.Env{
		Users:        users,
		Actions:      actions,
		Renderer:     renderer,
		ImageBaseURL: cfg.Image.PublicBaseURL,
		Logger:       logger.Named("agent"),
	}

	// --- Auth agents ---
	authAgents := auth.Registry{}
	if g := cfg.Auth.Agents.Google; g != nil {
		google, err := auth.NewGoogle(ctx, g.ClientID, g.ClientSecret)
		if err != nil {
			return fmt.Errorf("google auth agent: %w", err)
		}
		authAgents.Register(google)
	}
	jwtAgent := auth.NewJWTAgent(
		cfg.Auth.Token.Secret,
		cfg.Auth.Token.Algorithm,
		time.Duration(cfg.Auth.Token.ExpireDays)*24*time.Hour,
	)

	// --- Core pipeline ---
	met := metrics.New(prometheus.DefaultRegisterer)
	dispatcher := dispatch.New(
		matcher.New(database),
		actions,
		agents,
		env,
		dispatch.DefaultRetryPolicy,
		logger,
		met,
	)
	client := upstream.NewClient(logger)
	state := spider.New(logger)

	schedulesLoop := poll.New("schedules", 2*time.Hour,
		time.Duration(cfg.Upstream.SchedulesIntervalMins)*time.Minute,
		func(ctx context.Context) (int, error) {
			resp, err := client.Schedules(ctx)
			if err != nil {
				return 0, err
			}
			pvp, coop := state.UpdateSchedules(resp)
			dispatcher.DispatchPVP(ctx, pvp)
			dispatcher.DispatchCoop(ctx, coop)
			return len(pvp) + len(coop), nil
		}, logger, met)

	gearsLoop := poll.New("gears", 4*time.Hour,
		time.Duration(cfg.Upstream.GearsIntervalMins)*time.Minute,
		func(ctx context.Context) (int, error) {
			resp, err := client.Gear(ctx)
			if err != nil {
				return 0, err
			}
			gears := state.UpdateGear(resp)
			dispatcher.DispatchGear(ctx, gears)
			return len(gears), nil
		}, logger, met)

	go schedulesLoop.Run(ctx)
	go gearsLoop.Run(ctx)

	// --- Janitor ---
	if renderer != nil {
		janitor, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("create janitor scheduler: %w", err)
		}
		_, err = janitor.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(renderer.Sweep),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("schedule janitor job: %w", err)
		}
		janitor.Start()
		defer func() {
			if err := janitor.Shutdown(); err != nil {
				logger.Warn("janitor shutdown error", zap.Error(err))
			}
		}()
	}

	// --- HTTP server ---
	imageDir := ""
	if renderer != nil {
		imageDir = renderer.OutDir()
	}
	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		JWT:         jwtAgent,
		AuthAgents:  authAgents,
		Users:       users,
		Queries:     queries,
		Actions:     actions,
		Agents:      agents,
		AgentEnv:    env,
		ImageDir:    imageDir,
		CORSOrigins: cfg.CORS.Origins,
	})

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		var err error
		if cfg.TLS.Enabled() {
			err = httpSrv.ListenAndServeTLS(cfg.TLS.CertPEM, cfg.TLS.CertKey)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		cancel()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("inkwatch stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
