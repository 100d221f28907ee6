// Command gootp serves the goOTP HTTP API.
//
// Configuration comes from the environment (see appConfig). Without
// MONGODB_URL identities live in memory; without POSTMARK_SERVER_TOKEN codes
// are written to DEV_MAIL_DIR instead of being emailed.
//
// Create an admin out of band:
//
//	ADMIN_PASSWORD=... gootp -create-admin root
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/credstore"
	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/httpapi"
	"github.com/MrEthical07/goOTP/metrics/export/prometheus"
)

func main() {
	createAdmin := flag.String("create-admin", "", "create an ADMIN identity with this username (password from ADMIN_PASSWORD) and exit")
	flag.Parse()

	if err := run(*createAdmin); err != nil {
		fmt.Fprintf(os.Stderr, "gootp: %v\n", err)
		os.Exit(1)
	}
}

func run(adminUsername string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	creds, mongoClient, err := openCredentialStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if mongoClient != nil {
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	}

	deliverer, err := newDeliverer(cfg, engineCfg.OTP.CodeTTL, logger)
	if err != nil {
		return err
	}

	builder := goOTP.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithCredentialStore(creds).
		WithDeliverer(deliverer).
		WithLogger(logger)
	if engineCfg.Audit.Enabled {
		builder = builder.WithAuditSink(newAuditSink(cfg.AuditSink, logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if adminUsername != "" {
		return createAdminIdentity(ctx, engine, adminUsername, logger)
	}

	api := httpapi.New(engine, httpapi.Options{
		Logger:            logger,
		LoginRetryAfter:   engineCfg.Login.Window,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	r := chi.NewRouter()
	r.Handle(cfg.MetricsPath, prometheus.NewExporter(engine).Handler())
	r.Get("/healthz", healthHandler(rdb, mongoClient))
	r.Mount("/", api.Routes())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return serve(ctx, srv, cfg.ShutdownTimeout, logger)
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func newAuditSink(kind string, logger *slog.Logger) goOTP.AuditSink {
	if strings.EqualFold(kind, "stdout") {
		return goOTP.NewJSONWriterSink(os.Stdout)
	}
	return goOTP.NewSlogSink(logger)
}

func openCredentialStore(ctx context.Context, cfg appConfig, logger *slog.Logger) (goOTP.CredentialStore, *mongo.Client, error) {
	if cfg.MongoURL == "" {
		logger.Warn("MONGODB_URL not set; identities are kept in memory and lost on restart")
		return credstore.NewMemory(), nil, nil
	}

	client, err := credstore.Connect(ctx, cfg.mongoConfig())
	if err != nil {
		return nil, nil, err
	}
	store := credstore.NewMongo(client.Database(cfg.MongoDatabase), cfg.MongoCollection)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return store, client, nil
}

func newDeliverer(cfg appConfig, codeTTL time.Duration, logger *slog.Logger) (goOTP.Deliverer, error) {
	renderer := delivery.Renderer{Product: cfg.ProductName, CodeTTL: codeTTL}
	if cfg.PostmarkServerToken == "" {
		logger.Warn("POSTMARK_SERVER_TOKEN not set; codes are written to disk", slog.String("dir", cfg.DevMailDir))
		return delivery.NewDevSender(cfg.DevMailDir, renderer), nil
	}
	return delivery.NewPostmark(cfg.postmarkConfig(), renderer)
}

func createAdminIdentity(ctx context.Context, engine *goOTP.Engine, username string, logger *slog.Logger) error {
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		return errors.New("ADMIN_PASSWORD must be set with -create-admin")
	}
	identity, err := engine.CreateAdmin(ctx, username, password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("admin created", slog.String("id", identity.ID), slog.String("username", identity.EmailOrUsername))
	return nil
}

func healthHandler(rdb *redis.Client, mongoClient *mongo.Client) http.HandlerFunc {
	var mongoCheck func(context.Context) error
	if mongoClient != nil {
		mongoCheck = credstore.Healthcheck(mongoClient)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		if mongoCheck != nil {
			if err := mongoCheck(ctx); err != nil {
				http.Error(w, "mongo unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// serve runs srv until ctx is cancelled, then drains connections.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("listening", slog.String("addr", srv.Addr))

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return runErr
	}
	logger.Info("stopped")
	return nil
}
