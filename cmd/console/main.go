// Package main runs the client console API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/launchbase/console/internal/app"
	"github.com/launchbase/console/internal/app/httpapi"
	"github.com/launchbase/console/internal/app/services/payments"
	"github.com/launchbase/console/internal/app/storage/postgres"
	"github.com/launchbase/console/internal/cache"
	"github.com/launchbase/console/internal/config"
	"github.com/launchbase/console/internal/middleware"
	"github.com/launchbase/console/internal/odoo"
	"github.com/launchbase/console/internal/platform/migrations"
	"github.com/launchbase/console/internal/render"
	"github.com/launchbase/console/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithField("component", "console")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			log.WithError(err).Fatal("database unavailable")
		}
		defer db.Close()

		if err := migrations.Apply(ctx, db); err != nil {
			log.WithError(err).Fatal("apply migrations")
		}

		pg := postgres.New(db)
		stores = app.Stores{
			Forms:          pg,
			Submissions:    pg,
			Incorporations: pg,
			Billing:        pg,
			Documents:      pg,
			Payments:       pg,
			Users:          pg,
		}
		log.Info("postgres storage initialised")
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory storage")
	}

	deps := app.Dependencies{Cache: cache.NewMemory()}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unavailable; using in-memory cache")
		} else {
			deps.Cache = cache.NewRedis(client)
			defer client.Close()
			log.Info("redis cache initialised")
		}
	}

	if cfg.Odoo.URL != "" {
		gateway, err := odoo.New(odoo.Config{
			URL:      cfg.Odoo.URL,
			Database: cfg.Odoo.Database,
			Username: cfg.Odoo.Username,
			Password: cfg.Odoo.Password,
			Timeout:  time.Duration(cfg.Odoo.TimeoutMS) * time.Millisecond,
		}, log.WithField("component", "odoo"))
		if err != nil {
			log.WithError(err).Fatal("configure odoo gateway")
		}
		deps.Gateway = gateway
		deps.Prober = gateway
	} else {
		log.Warn("ODOO_URL not set; erp-backed features disabled")
	}

	if cfg.Stripe.SecretKey != "" {
		deps.PaymentProvider = payments.NewStripeProvider(cfg.Stripe.SecretKey)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; payment intents disabled")
	}

	application := app.New(stores, deps, log)
	if err := application.Start(cfg.Maintenance.ProbeSchedule); err != nil {
		log.WithError(err).Fatal("start background jobs")
	}
	defer application.Stop()

	opts := httpapi.Options{
		Auth:          middleware.NewAuth(cfg.Auth.JWTSecret, log.WithField("component", "auth")),
		RateLimiter:   middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log.WithField("component", "ratelimit")),
		AllowedOrigin: cfg.Server.AllowedOrigin,
		TemplateDir:   cfg.Render.TemplateDir,
	}
	if cfg.Render.URL != "" {
		opts.Render = render.New(render.Config{BaseURL: cfg.Render.URL})
	} else {
		log.Warn("RENDER_SERVER_URL not set; pdf rendering disabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpapi.NewHandler(application, opts),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("console listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
