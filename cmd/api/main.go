package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"promptdesk.dev/internal/apiconfig"
	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/config"
	"promptdesk.dev/internal/events"
	"promptdesk.dev/internal/history"
	"promptdesk.dev/internal/httpapi"
	"promptdesk.dev/internal/llm"
	"promptdesk.dev/internal/migrate"
	"promptdesk.dev/internal/obs"
	"promptdesk.dev/internal/prompts"
	"promptdesk.dev/internal/seed"
	"promptdesk.dev/internal/store/memory"
	"promptdesk.dev/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what both storage implementations provide.
type backend interface {
	auth.AccountStore
	auth.SessionStore
	prompts.Store
	history.Store
	apiconfig.Store
	Ping(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Error("load config", "error", err)
		os.Exit(1)
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		obs.Logger().Warn("ignoring LOG_LEVEL", "error", err)
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obs.Logger().Error("promptdesk stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := obs.Logger()

	store, ready, closeStore, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher := events.Publisher(events.Nop{})
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, events.DefaultQueue)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		publisher = amqpPub
		logger.Info("account events enabled", "queue", events.DefaultQueue)
	}

	var modelCache llm.ModelCache
	if cfg.RedisURL != "" {
		rdb, err := llm.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("model cache disabled", "error", err)
		} else {
			defer rdb.Close()
			modelCache = llm.NewRedisModelCache(rdb, cfg.ModelCacheTTL)
			ready.Optional = map[string]httpapi.Pinger{"model_cache": redisPinger(rdb)}
		}
	}

	hasher := auth.NewHasher(cfg.BcryptCost, 0)
	authSvc, err := auth.NewService(store, store, hasher,
		auth.WithSessionTTL(cfg.SessionTTL()),
		auth.WithEvents(publisher),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	accounts, err := auth.NewAccountService(store, hasher, publisher, logger)
	if err != nil {
		return err
	}
	promptSvc, err := prompts.NewService(store)
	if err != nil {
		return err
	}
	historySvc, err := history.NewService(store, store)
	if err != nil {
		return err
	}
	configSvc, err := apiconfig.NewService(store, store, apiconfig.Defaults{
		Model:     cfg.DefaultModel,
		MaxTokens: cfg.DefaultMaxTokens,
	})
	if err != nil {
		return err
	}
	llmSvc, err := llm.NewService(llm.NewClient(cfg.LLMBaseURL, cfg.LLMTimeout), configSvc, promptSvc, modelCache, logger)
	if err != nil {
		return err
	}

	rep := seed.New(accounts, store, store, logger).Run(ctx, seed.Options{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		AdminName:     cfg.AdminName,
	})
	if rep.Err != nil {
		logger.Warn("startup seeding incomplete", "error", rep.Err)
	}

	api, err := httpapi.New(httpapi.Deps{
		Auth:      authSvc,
		Accounts:  accounts,
		Prompts:   promptSvc,
		History:   historySvc,
		APIConfig: configSvc,
		LLM:       llmSvc,
		Ready:     ready,
		Cookies: httpapi.CookieConfig{
			SessionName: cfg.SessionCookie,
			MaxAge:      cfg.SessionMaxAge,
			Secure:      cfg.Production(),
		},
		Gate: httpapi.GateConfig{
			APIPrefix:   cfg.APIPrefix,
			PublicPaths: cfg.PublicPaths,
		},
		CORSOrigins:  cfg.CORSOrigins,
		LocalOrigins: !cfg.Production(),
		Version:      version,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// processing waits on the upstream model
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(ready, version).Register(grpcSrv)
		go func() {
			logger.Info("grpc health listening", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	if janitor, ok := store.(sessionJanitor); ok {
		go sweepSessions(ctx, janitor, time.Hour, logger)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// openBackend selects Postgres when DATABASE_URL is set and the in-memory
// store otherwise.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, httpapi.ReadyProbe, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		mem := memory.New()
		return mem, httpapi.ReadyProbe{Extra: []httpapi.Pinger{mem}}, func() {}, nil
	}

	db, err := pg.Open(cfg.DatabaseURL, cfg.MaxOpenConns)
	if err != nil {
		return nil, httpapi.ReadyProbe{}, nil, err
	}
	if cfg.MigrateOnStart {
		migCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		applied, err := migrate.NewManager(db.DB(), nil).Up(migCtx)
		if err != nil {
			_ = db.Close()
			return nil, httpapi.ReadyProbe{}, nil, err
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "names", applied)
		}
	}
	return db, httpapi.ReadyProbe{DB: db.DB()}, func() { _ = db.Close() }, nil
}

type sessionJanitor interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

func sweepSessions(ctx context.Context, j sessionJanitor, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Warn("expired session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}

func redisPinger(rdb *redis.Client) httpapi.Pinger {
	return httpapi.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}
