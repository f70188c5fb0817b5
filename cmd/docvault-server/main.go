package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/docvault/pkg/docvault/blobstore"
	"github.com/mikepea/docvault/pkg/docvault/config"
	"github.com/mikepea/docvault/pkg/docvault/database"
	"github.com/mikepea/docvault/pkg/docvault/models"
	"github.com/mikepea/docvault/pkg/docvault/obs"
	"github.com/mikepea/docvault/pkg/docvault/server"
	"github.com/rs/zerolog"
)

// @title docvault API
// @version 1.0
// @description Multi-tenant document store with per-user sharing and capability share links.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	log := obs.NewLogger(cfg.LogLevel, cfg.Env == config.EnvDevelopment)
	if cfg.UsingDevSecret {
		log.Warn().Msg("DOCVAULT_JWT_SECRET not set, using the development secret")
	}
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Str("path", cfg.DBPath).Msg("database migrations completed")

	blobs, err := blobstore.NewLocal(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open upload directory")
	}

	r := server.New(server.Deps{
		Config:  cfg,
		DB:      db,
		Blobs:   blobs,
		Log:     log,
		Metrics: obs.NewMetrics(),
	})

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting docvault server")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
