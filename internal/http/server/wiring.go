// Package server arma las dependencias del servicio a partir de la
// configuración y corre el servidor HTTP junto al loop de purga.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/auth"
	"github.com/dropDatabas3/accesscore/internal/cache"
	"github.com/dropDatabas3/accesscore/internal/config"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	"github.com/dropDatabas3/accesscore/internal/http/handlers"
	"github.com/dropDatabas3/accesscore/internal/http/router"
	jwtx "github.com/dropDatabas3/accesscore/internal/jwt"
	"github.com/dropDatabas3/accesscore/internal/lockout"
	"github.com/dropDatabas3/accesscore/internal/notify"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/observability/metrics"
	"github.com/dropDatabas3/accesscore/internal/rate"
	"github.com/dropDatabas3/accesscore/internal/rbac"
	"github.com/dropDatabas3/accesscore/internal/refresh"
	"github.com/dropDatabas3/accesscore/internal/revocation"
	"github.com/dropDatabas3/accesscore/internal/security/password"
	"github.com/dropDatabas3/accesscore/internal/store/memory"
	"github.com/dropDatabas3/accesscore/internal/store/pg"
	migrations "github.com/dropDatabas3/accesscore/migrations/postgres"
)

// App es el resultado del wiring. Close libera store, redis y cache.
type App struct {
	Handler     http.Handler
	Store       repository.Store
	Revocations *revocation.Registry
	Auth        auth.Service
	RBAC        rbac.Service

	closers []func() error
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore abre el driver configurado. Con postgres y storage.migrate
// aplica las migraciones pendientes.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, *sql.DB, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		st, err := pg.Open(pg.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime(),
		})
		if err != nil {
			return nil, nil, err
		}
		if cfg.Storage.Migrate {
			applied, err := pg.Migrate(ctx, st.DB(), migrations.FS)
			if err != nil {
				_ = st.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			logger.L().Info("migrations applied", logger.Layer("bootstrap"), logger.Count(len(applied)))
		}
		return st, st.DB(), nil
	default:
		return nil, nil, fmt.Errorf("storage: unknown driver %q", cfg.Storage.Driver)
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Kind == "redis" || cfg.Lockout.Backend == "redis" ||
		(*cfg.Rate.Enabled && cfg.Rate.Backend == "redis")
}

// Build arma el App completo. reg nil usa el registry global de prometheus.
func Build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	log := logger.L().With(logger.Layer("bootstrap"))
	app := &App{}
	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}

	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	st, db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = st
	app.closers = append(app.closers, st.Close)
	if err := metrics.RegisterDB(reg, db, "accesscore"); err != nil {
		return fail(fmt.Errorf("metrics: %w", err))
	}

	var rdb *redis.Client
	if needsRedis(cfg) {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		app.closers = append(app.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis not reachable at startup", logger.Err(err))
		}
	}

	cc, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Prefix:     cfg.Cache.Prefix,
		DefaultTTL: cfg.CacheTTL(),
		Redis:      rdb,
	})
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, cc.Close)

	codec, err := jwtx.NewCodec(cfg.JWT.Secret, cfg.AccessTTL(), jwtx.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		return fail(err)
	}
	refreshStore, err := refresh.NewStore(st.RefreshTokens(), cfg.RefreshTTL())
	if err != nil {
		return fail(err)
	}
	app.Revocations = revocation.New(st.RevokedTokens(), revocation.WithCache(cc, cfg.RevocationCacheTTL()))

	var lockStore lockout.Store = lockout.NewMemoryStore()
	if cfg.Lockout.Backend == "redis" {
		lockStore = lockout.NewRedisStore(rdb, cfg.Cache.Prefix+"lockout")
	}
	guard := lockout.New(lockStore, lockout.Config{
		MaxAttempts: cfg.Lockout.MaxAttempts,
		Duration:    cfg.LockoutDuration(),
		AttemptTTL:  cfg.AttemptTTL(),
	})

	policy, err := passwordPolicy(cfg)
	if err != nil {
		return fail(err)
	}

	recorder := audit.Multi{audit.NewLogRecorder(logger.L()), audit.NewRepositoryRecorder(st.Audit())}

	rbacSvc := rbac.NewService(rbac.Deps{
		Roles:       st.Roles(),
		Permissions: st.Permissions(),
		Assignments: st.Assignments(),
		Users:       st.Users(),
		Audit:       recorder,
	})
	names := append([]string{}, rbac.PredefinedRoles...)
	if !contains(names, cfg.Auth.DefaultRole) {
		names = append(names, cfg.Auth.DefaultRole)
	}
	if _, err := rbacSvc.EnsureRoles(ctx, names...); err != nil {
		return fail(fmt.Errorf("ensure roles: %w", err))
	}

	var notifier notify.LockoutNotifier
	if cfg.Notify.LockoutEmail && cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			User:               cfg.SMTP.Username,
			Pass:               cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	}

	authSvc := auth.NewService(auth.Deps{
		Users:         st.Users(),
		RBAC:          rbacSvc,
		Codec:         codec,
		Refresh:       refreshStore,
		Revocations:   app.Revocations,
		Lockout:       guard,
		Audit:         recorder,
		Notifier:      notifier,
		Policy:        policy,
		DefaultRole:   cfg.Auth.DefaultRole,
		RotateRefresh: *cfg.JWT.RotateRefresh,
	})
	app.Auth, app.RBAC = authSvc, rbacSvc

	ratePolicy := rate.Policy{
		AuthLimit:      cfg.Rate.AuthLimit,
		DefaultLimit:   cfg.Rate.DefaultLimit,
		AuthPrefixes:   cfg.Rate.AuthPrefixes,
		BypassPrefixes: cfg.Rate.BypassPrefixes,
		TrustForwarded: *cfg.Rate.TrustForwarded,
	}
	var limiter rate.Limiter
	if *cfg.Rate.Enabled {
		if cfg.Rate.Backend == "redis" {
			limiter = rate.NewRedisLimiter(rdb, cfg.Cache.Prefix+"rl:", cfg.RateWindow())
		} else {
			limiter = rate.NewMemoryLimiter(cfg.RateWindow())
		}
	}

	checks := map[string]handlers.Check{"store": st.Ping}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	app.Handler = router.New(router.Deps{
		Auth:       authSvc,
		RBAC:       rbacSvc,
		RatePolicy: ratePolicy,
		Limiter:    limiter,
		Health:     handlers.NewHealthController(cfg.App.Version, checks),
		Metrics:    metrics.Handler(),
	})

	log.Info("service wired",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("lockout_backend", cfg.Lockout.Backend),
		logger.String("rate_backend", cfg.Rate.Backend),
		logger.Bool("rate_enabled", *cfg.Rate.Enabled),
	)
	return app, nil
}

func passwordPolicy(cfg *config.Config) (password.Policy, error) {
	pp := cfg.Security.PasswordPolicy
	bl, err := password.LoadBlacklist(cfg.Security.PasswordBlacklistPath)
	if err != nil {
		return password.Policy{}, fmt.Errorf("password blacklist: %w", err)
	}
	return password.Policy{
		MinLength:     pp.MinLength,
		MaxLength:     pp.MaxLength,
		RequireUpper:  *pp.RequireUpper,
		RequireLower:  *pp.RequireLower,
		RequireDigit:  *pp.RequireDigit,
		RequireSymbol: *pp.RequireSymbol,
		Blacklist:     bl,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PurgeLoop corre PurgeExpired cada every hasta que ctx se cancele.
func PurgeLoop(ctx context.Context, reg *revocation.Registry, every time.Duration) error {
	if every <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			PurgeOnce(ctx, reg)
		}
	}
}

// PurgeOnce borra las entradas vencidas del registro de revocación.
func PurgeOnce(ctx context.Context, reg *revocation.Registry) (int, error) {
	n, err := reg.PurgeExpired(ctx, reg.Now())
	log := logger.From(ctx).With(logger.Component("revocation.purge"))
	if err != nil {
		log.Error("purge failed", logger.Err(err))
		return 0, err
	}
	metrics.RecordPurged(n)
	if n > 0 {
		log.Info("revoked tokens purged", logger.Count(n))
	}
	return n, nil
}
