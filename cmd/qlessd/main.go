// Command qlessd wires the execution core to a real Redis instance and exposes a
// liveness/readiness surface. It deliberately stops there: the request transport that
// would route a (command, now, args...) tuple to Engine.Command is an external
// collaborator, so this binary is a wiring demonstration, not a server.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lordnynex/qless-core/internal/config"
	"github.com/lordnynex/qless-core/internal/core"
	"github.com/lordnynex/qless-core/internal/events"
	"github.com/lordnynex/qless-core/internal/health"
	"github.com/lordnynex/qless-core/internal/logging"
	"github.com/lordnynex/qless-core/internal/store"
)

func main() {
	cfg := config.Load("")

	logLevel := logging.LevelInfo
	if v, ok := cfg.Get("LOG_LEVEL"); ok {
		logLevel = logging.Level(v)
	}
	logging.Init(&logging.Config{Level: logLevel, Format: "json", Output: os.Stdout, AddSource: true})
	logger := logging.Default()

	logger.Info("starting qlessd", "version", "0.1.0")

	redisAddr := getEnv(cfg, "REDIS_ADDR", "127.0.0.1:6379")
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error("redis connection failed", "error", err, "addr", redisAddr)
		log.Fatalf("connect to redis at %s: %v", redisAddr, err)
	}
	logger.Info("redis connected", "addr", redisAddr)

	s := store.New(rdb)
	bus := events.New(s)
	keyPrefix := getEnv(cfg, "QLESS_KEY_PREFIX", "ql")
	engine := core.New(s, bus, cfg, logger, keyPrefix)
	_ = engine // wired for command-facade use by an external transport; unused here.

	checker := health.New(rdb, "qless-core", "0.1.0")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, checker.Liveness())
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		resp := checker.Readiness(r.Context())
		status := http.StatusOK
		if resp.Status != health.StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	})

	addr := ":" + getEnv(cfg, "QLESSD_PORT", "8080")
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("qlessd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Warn("shutting down qlessd")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("qlessd exited cleanly")
}

func getEnv(cfg *config.Config, key, def string) string {
	if v, ok := cfg.Get(key); ok && v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
