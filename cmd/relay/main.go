package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"framecast/internal/core/relay"
	httphandlers "framecast/internal/handlers/http"
	"framecast/internal/infrastructure/middleware"
	"framecast/internal/infrastructure/monitoring"
	signalsrv "framecast/internal/infrastructure/signal"
	webrtcinfra "framecast/internal/infrastructure/webrtc"
	"framecast/pkg/config"
	"framecast/pkg/logger"
	"framecast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "framecast",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer tracerProvider.Shutdown(context.Background())

	// Metrics
	collector := monitoring.NewPrometheusCollector()

	// WebRTC configuration (including STUN/TURN from config)
	var iceServers []webrtc.ICEServer
	if len(cfg.WebRTC.ICEServers) > 0 {
		for _, s := range cfg.WebRTC.ICEServers {
			iceServers = append(iceServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	} else {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	transportConfig := webrtcinfra.Config{ICEServers: iceServers}
	transportConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	transportConfig.PortRange.Max = cfg.WebRTC.PortRange.Max
	transport := webrtcinfra.NewTransport(transportConfig, collector, log)

	// Relay core
	relayService := relay.NewService(relay.ServiceConfig{
		DefaultMaxFrames: cfg.Relay.DefaultMaxFrames,
		VideoPayloadType: uint8(cfg.Relay.VideoPayloadType),
		AudioPayloadType: uint8(cfg.Relay.AudioPayloadType),
		EventBuffer:      cfg.Relay.EventBuffer,
	}, transport, collector, log)
	relayService.Start()
	defer relayService.Close()

	// Signaling
	wsServer := signalsrv.NewWebSocketServer(relayService, signalsrv.Options{
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		MessagesPerSecond: cfg.RateLimiting.WebSocket.MessagesPerSecond,
		Burst:             cfg.RateLimiting.WebSocket.Burst,
	}, log)

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	go wsServer.Run(dispatchCtx)

	// HTTP API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	relayHandler := httphandlers.NewRelayHandler(relayService)
	relayHandler.SetupRoutes(router)
	router.GET("/health", relayHandler.Health)
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infow("starting framecast relay", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("server shutdown failed", "error", err)
	}
}
