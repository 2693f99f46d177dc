// Command gateway starts the LLM API gateway: it loads configuration, opens
// the SQLite store, wires the balancer/circuit-breaker/proxy pipeline, and
// serves the HTTP API. Grounded on original_source/src-tauri/src/server/mod.rs's
// start() (open pool, build router, bind, serve, log the listen address),
// translated from axum/tokio into net/http + gin.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/llm-gateway/gateway/internal/balancer"
	"github.com/llm-gateway/gateway/internal/cache"
	"github.com/llm-gateway/gateway/internal/circuitbreaker"
	"github.com/llm-gateway/gateway/internal/config"
	"github.com/llm-gateway/gateway/internal/gatewayhttp"
	"github.com/llm-gateway/gateway/internal/proxy"
	"github.com/llm-gateway/gateway/internal/store"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("gateway: fatal startup error")
	}
}

func run() error {
	cfgPath := os.Getenv("GATEWAY_CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	vals := cfg.Snapshot()

	setupLogging(vals.LogFilePath)

	db, err := store.Open(vals.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	circuit := circuitbreaker.New(vals.CircuitFailureThreshold, time.Duration(vals.CircuitCooldownSeconds)*time.Second)
	bal := balancer.New(db, circuit)
	client := proxy.NewHTTPClient()
	pipeline := proxy.New(db, bal, circuit, client)

	router := gatewayhttp.NewRouter(&gatewayhttp.Server{
		Pipeline:   pipeline,
		DB:         db,
		ModelCache: &cache.ModelListCache{},
	})

	addr := fmt.Sprintf("127.0.0.1:%d", vals.ServerPort)
	logrus.WithField("addr", addr).Info("gateway: listening")
	return http.ListenAndServe(addr, router)
}

func setupLogging(logFilePath string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	if logFilePath == "" {
		return
	}
	logrus.SetOutput(&lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
}
