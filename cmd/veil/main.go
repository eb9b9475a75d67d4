package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmilder/veil/internal/auth"
	"github.com/jmilder/veil/internal/config"
	"github.com/jmilder/veil/internal/cors"
	"github.com/jmilder/veil/internal/gateway"
	"github.com/jmilder/veil/internal/obs"
	"github.com/jmilder/veil/internal/proxy"
	"github.com/jmilder/veil/internal/ratelimit"
	"github.com/jmilder/veil/internal/ratelimit/memory"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "./config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	target, err := cfg.Backend.URL()
	if err != nil {
		log.Fatalf("backend url: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := obs.NewMetrics(reg)

	policy := cors.ParsePolicy(cfg.CORS.AllowedOrigins)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()

	limiter := memory.New()
	limiter.StartJanitor(janitorCtx)
	limitPolicy := ratelimit.Policy{
		Limit:  cfg.Limits.RequestsPerMinute,
		Window: time.Minute,
	}

	forwarder := proxy.New(proxy.Config{
		Target:      target,
		StripPrefix: "/proxy",
		Timeout:     cfg.Backend.Timeout(),
		Injector:    auth.NewInjector(cfg.Backend.AnonKey),
		Logger:      logger,
		OnError:     metrics.ProxyErrors.Inc,
	}, proxy.NewHTTPTransport())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gateway.Health())
	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", forwarder)

	// ops endpoints bypass throttling and metrics
	skip := map[string]struct{}{
		"/health":                        {},
		cfg.Observability.PrometheusPath: {},
	}

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		metrics.Middleware(skip),
		gateway.CORS(policy),
		gateway.BodyLimit(int(cfg.Server.MaxBody())),
		gateway.RateLimit(limiter, limitPolicy, skip, metrics.RateLimited.Inc, metrics.LimiterErrors.Inc),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout(),
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("backend", target.Host).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopJanitor()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	_ = limiter.Close()
	logger.Info().Msg("bye")
}
