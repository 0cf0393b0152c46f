package main

import (
	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"

	"github.com/fuchsia74/grok2api/common/config"
	"github.com/fuchsia74/grok2api/common/logger"
	"github.com/fuchsia74/grok2api/controller"
	"github.com/fuchsia74/grok2api/middleware"
	"github.com/fuchsia74/grok2api/model"
	"github.com/fuchsia74/grok2api/monitor"
	"github.com/fuchsia74/grok2api/relay/pool"
	"github.com/fuchsia74/grok2api/router"
)

func main() {
	logger.SetupLogger()
	logger.Logger.Info("grok2api started")

	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	} else if !config.DebugEnabled {
		gin.SetMode(gin.ReleaseMode)
	}

	model.InitDB()
	defer func() {
		if err := model.CloseDB(); err != nil {
			logger.Logger.Error("failed to close database", zap.Error(err))
		}
	}()

	store := model.NewCredentialStore()
	credentialPool := pool.New(store, config.CredentialImportBatchSize)
	controller.Setup(credentialPool)

	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	server := gin.New()
	server.RedirectTrailingSlash = false
	server.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
	)
	// gzip would break SSE streaming, do not add it here.
	server.Use(middleware.RequestId())

	if config.EnablePrometheusMetrics {
		server.GET("/metrics", middleware.AdminAuth(), monitor.Handler())
		logger.Logger.Info("metrics endpoint available at /metrics")
	}

	router.SetRouter(server)

	logger.Logger.Info("server listening", zap.String("port", config.ServerPort))
	if err := server.Run(":" + config.ServerPort); err != nil {
		logger.Logger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
