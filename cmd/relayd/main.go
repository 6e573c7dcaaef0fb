package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nbd-wtf/go-nostr/nip11"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"nhooyr.io/websocket"

	"relaycore/adminhttp"
	"relaycore/config"
	"relaycore/observability/logging"
	"relaycore/observability/metrics"
	telemetry "relaycore/observability/otel"
	"relaycore/pipeline"
	"relaycore/ratelimit"
	"relaycore/strategy"
	"relaycore/transport"
	"relaycore/users"
	"relaycore/webhooks"
)

func main() {
	var cfgPath string
	var listenAddr string
	var adminAddr string
	flag.StringVar(&cfgPath, "config", "settings.yaml", "path to relay settings")
	flag.StringVar(&listenAddr, "listen", ":8080", "event submission listener address")
	flag.StringVar(&adminAddr, "admin-listen", ":8081", "admin HTTP surface listen address")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("RELAY_ENV"))
	logger := logging.Setup("relayd", env)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "relayd",
		Environment: env,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:    true,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	settingsManager, err := config.NewManager(cfgPath)
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}
	if err := settingsManager.Snapshot().Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go settingsManager.Watch(ctx, 5*time.Second, func(err error) {
		logger.Warn("settings reload failed", "error", err)
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr: envOr("RELAY_REDIS_ADDR", "127.0.0.1:6379"),
	})
	defer redisClient.Close()

	db, err := gorm.Open(postgres.Open(envOr("RELAY_DATABASE_DSN", "")), &gorm.Config{})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}

	apiKey := os.Getenv("RELAY_API_KEY")
	vidaKey := os.Getenv("VIDA_API_KEY")

	hooks := webhooks.New(settingsManager.Snapshot().Webhooks, vidaKey, logger)
	defer hooks.Close()

	cache := users.NewCache(redisClient)
	userRepo := users.NewRepository(db, cache, hooks)
	limiter := ratelimit.New(redisClient)
	recorder := metricsRecorder()

	pl := pipeline.New(settingsManager, limiter, userRepo, hooks, strategy.AcceptAll{}, logger, recorder)

	adminHandler := adminhttp.New(adminhttp.Config{
		APIKey: apiKey,
		Users:  userRepo,
		RelayInfo: nip11.RelayInformationDocument{
			Name:          "relayd",
			Description:   "Event admission relay",
			SupportedNIPs: []any{1, 11},
			Software:      "https://github.com/example/relayd",
			Version:       "dev",
		},
	})
	adminServer := &http.Server{Addr: adminAddr, Handler: adminHandler}
	go func() {
		logger.Info("admin http listening", "addr", adminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http server failed", "error", err)
		}
	}()

	eventServer := &http.Server{
		Addr: listenAddr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
			if err != nil {
				logger.Warn("websocket accept failed", "error", err)
				return
			}
			go serveConnection(ctx, pl, conn, r.RemoteAddr, logger)
		}),
	}
	go func() {
		logger.Info("event listener listening", "addr", listenAddr)
		if err := eventServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("event listener failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = eventServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
}

func serveConnection(ctx context.Context, pl *pipeline.Pipeline, raw *websocket.Conn, remoteAddr string, logger *slog.Logger) {
	conn := transport.NewWSConn(raw, remoteAddr)
	defer conn.Close()

	dedupe := pipeline.NewDedupeCache(256)
	remoteIP, _, _ := net.SplitHostPort(conn.RemoteAddr())
	for {
		msg, err := conn.ReadMessage(ctx)
		if err != nil {
			return
		}
		event, err := transport.DecodeEventFrame(msg)
		if err != nil {
			if err != transport.ErrNotAnEventFrame {
				logger.Warn("malformed frame", "error", err)
			}
			continue
		}
		if err := pl.Handle(ctx, event, conn, remoteIP, dedupe); err != nil {
			logger.Warn("pipeline error, closing connection", "error", err)
			return
		}
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func metricsRecorder() pipeline.Recorder {
	if v := strings.TrimSpace(os.Getenv("RELAY_METRICS_DISABLED")); v != "" {
		if disabled, _ := strconv.ParseBool(v); disabled {
			return nil
		}
	}
	return metrics.Registry()
}
