package main

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/time/rate"

	"github.com/k9trail/bridge/internal"
	"github.com/k9trail/bridge/internal/app"
	"github.com/k9trail/bridge/internal/config"
	bridge_middleware "github.com/k9trail/bridge/internal/middleware"
	"github.com/k9trail/bridge/internal/presence"
	"github.com/k9trail/bridge/internal/snapshot"
	"github.com/k9trail/bridge/internal/stream"
	"github.com/k9trail/bridge/internal/track"
	"github.com/k9trail/bridge/internal/utils"
)

func main() {
	log.Info(fmt.Sprintf("K9 bridge %s is running", internal.BridgeVersionRevision))
	config.LoadConfig()
	app.InitMetrics()

	storageType := config.Config.Storage
	dbConn, err := track.NewStorage(storageType, config.Config.PostgresURI)
	if err != nil {
		log.Fatalf("failed to create storage: %v", err)
	}
	log.Infof("Using %v track storage", storageType)
	app.SetBridgeInfo("k9bridge", storageType)

	registry, err := presence.NewRegistry(config.Config.RedisURI)
	if err != nil {
		log.Fatalf("failed to create presence registry: %v", err)
	}
	if config.Config.RedisURI != "" {
		log.Info("Using Redis presence registry")
	} else {
		log.Info("Using in-memory presence registry")
	}

	snapshots, err := snapshot.NewDiskStore(config.Config.SnapshotDir, config.Config.SnapshotBaseURL)
	if err != nil {
		log.Fatalf("failed to create snapshot store: %v", err)
	}

	healthManager := app.NewHealthManager(dbConn, registry)
	healthManager.UpdateHealthStatus()
	go healthManager.StartHealthMonitoring()

	extractor, err := utils.NewRealIPExtractor(config.Config.TrustedProxyRanges)
	if err != nil {
		log.Warnf("failed to create realIPExtractor: %v, using defaults", err)
		extractor, _ = utils.NewRealIPExtractor([]string{})
	}

	mux := http.NewServeMux()
	mux.Handle("/health", http.HandlerFunc(healthManager.HealthHandler))
	mux.Handle("/ready", http.HandlerFunc(healthManager.HealthHandler))
	mux.Handle("/version", http.HandlerFunc(app.VersionHandler))
	mux.Handle("/metrics", promhttp.Handler())
	if config.Config.PprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
	}
	go func() {
		log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", config.Config.MetricsPort), mux))
	}()

	e := echo.New()
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		Skipper:           nil,
		DisableStackAll:   true,
		DisablePrintStack: false,
	}))
	e.Use(middleware.Logger())
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			if app.SkipRateLimitsByToken(c.Request()) || c.Path() == "/bridge/stream" {
				return true
			}
			return false
		},
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(config.Config.RPSLimit)),
	}))
	e.Use(app.ConnectionsLimitMiddleware(bridge_middleware.NewConnectionLimiter(config.Config.ConnectionsLimit, extractor), func(c echo.Context) bool {
		if app.SkipRateLimitsByToken(c.Request()) || c.Path() != "/bridge/stream" {
			return true
		}
		return false
	}))

	if config.Config.CorsEnable {
		corsConfig := middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{echo.GET, echo.POST, echo.OPTIONS},
			AllowHeaders:     []string{"DNT", "X-CustomHeader", "Keep-Alive", "User-Agent", "X-Requested-With", "If-Modified-Since", "Cache-Control", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           86400,
		})
		e.Use(corsConfig)
	}

	streamHandler := stream.NewHandler(
		registry,
		extractor,
		config.Config.DefaultBrokerHost,
		time.Duration(config.Config.SseKeepaliveInterval)*time.Second,
		time.Duration(config.Config.MqttConnectTimeout)*time.Second,
		time.Duration(config.Config.PresenceTTL)*time.Second,
	)
	trackHandler := track.NewHandler(dbConn, snapshots, config.Config.MaxBodySize)

	e.GET("/bridge/stream", streamHandler.StreamHandler)
	e.GET("/api/streams", streamHandler.ListStreamsHandler)

	e.POST("/api/tracks", trackHandler.CreateTrackHandler, app.RequireAuthToken)
	e.POST("/api/tracks/:id/finish", trackHandler.FinishTrackHandler, app.RequireAuthToken)
	e.GET("/api/tracks/:id", trackHandler.GetTrackHandler)
	e.GET("/api/shared/:code", trackHandler.SharedTrackHandler)
	e.POST("/api/reports", trackHandler.CreateReportHandler, app.RequireAuthToken)
	e.GET("/api/reports/:id", trackHandler.GetReportHandler)

	e.Static(config.Config.SnapshotBaseURL, config.Config.SnapshotDir)

	var existedPaths []string
	for _, r := range e.Routes() {
		existedPaths = append(existedPaths, r.Path)
	}
	p := prometheus.NewPrometheus("http", func(c echo.Context) bool {
		return !slices.Contains(existedPaths, c.Path())
	})
	e.Use(p.HandlerFunc)
	if config.Config.SelfSignedTLS {
		cert, key, err := utils.GenerateSelfSignedCertificate()
		if err != nil {
			log.Fatalf("failed to generate self signed certificate: %v", err)
		}
		log.Fatal(e.StartTLS(fmt.Sprintf(":%v", config.Config.Port), cert, key))
	} else {
		log.Fatal(e.Start(fmt.Sprintf(":%v", config.Config.Port)))
	}
}
