package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/m-maciver/split-the-g/go/internal/match/coordinator"
	"github.com/m-maciver/split-the-g/go/internal/match/gateway"
	"github.com/m-maciver/split-the-g/go/internal/match/metrics"
	"github.com/m-maciver/split-the-g/go/internal/match/outbox"
	"github.com/m-maciver/split-the-g/go/internal/matchconfig"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := matchconfig.NewConfigFromEnv()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := cfg.LoadICEServersFile(); err != nil {
		log.Fatal().Err(err).Msg("failed to load ICE servers")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Lifecycle events go to JetStream when configured, otherwise to the log
	var publisher outbox.Publisher = outbox.LogPublisher{}
	var jsPublisher *outbox.JetStreamPublisher
	if cfg.NATSURL != "" {
		jsPublisher, err = outbox.NewJetStreamPublisher(ctx, cfg.JetStream())
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NATSURL).Msg("failed to create JetStream publisher")
		}
		publisher = jsPublisher
	}
	relay := outbox.NewRelay(publisher, outbox.DefaultRelayConfig())

	relayCtx, relayCancel := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		relay.Run(relayCtx)
		close(relayDone)
	}()

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.MaxMessageSize = cfg.MaxMessageBytes
	gatewayConfig.Coordinator = cfg.Coordinator()

	gatewayService := gateway.NewService(gatewayConfig, coordinator.WithEventSink(relay))

	log.Info().
		Str("port", cfg.Port).
		Bool("jetstream", jsPublisher != nil).
		Int("ice_servers", len(cfg.ICEServers)).
		Msg("starting match server")

	health := outbox.NewHealthChecker(relay, publisher, 30*time.Second)
	server := setupServer(cfg.Addr(), gatewayService, health)

	serviceDone := make(chan struct{})
	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
		close(serviceDone)
	}()

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Coordinator closes remaining sessions, then the relay flushes their events
	cancel()
	<-serviceDone
	relayCancel()
	<-relayDone

	if jsPublisher != nil {
		if err := jsPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close JetStream publisher")
		}
	}

	log.Info().Msg("match server shutdown complete")
}

func setupServer(addr string, service *gateway.Service, outboxHealth http.Handler) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	service.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health/outbox", outboxHealth)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
