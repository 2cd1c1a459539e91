package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.elastic.co/apm/module/apmgin"

	infodocController "github.com/lloydmeta/infodocs/internal/api/controllers/infodoc"
	"github.com/lloydmeta/infodocs/internal/config"
	"github.com/lloydmeta/infodocs/internal/domain/infodoc"
	"github.com/lloydmeta/infodocs/internal/infra/apm/tracing"
	"github.com/lloydmeta/infodocs/internal/infra/elasticsearch/common"
	"github.com/lloydmeta/infodocs/internal/infra/elasticsearch/index"
	esInfodoc "github.com/lloydmeta/infodocs/internal/infra/elasticsearch/infodoc"
	"github.com/lloydmeta/infodocs/internal/infra/postgres"
	pgInfodoc "github.com/lloydmeta/infodocs/internal/infra/postgres/infodoc"
	"github.com/lloydmeta/infodocs/internal/infra/server/binding/validation"
	"github.com/lloydmeta/infodocs/internal/infra/server/routing"
	"github.com/lloydmeta/infodocs/internal/infra/server/routing/infodocs"
)

const defaultShutdownTimeout = 10 * time.Second

// Components holds everything needed to run the server
type Components struct {
	config    config.App
	db        *sql.DB
	setup     Setup
	ginEngine *gin.Engine
}

// NewComponents builds the stores, the service and the routes from the given config
func NewComponents(appConfig *config.App) (*Components, error) {
	ctx := context.Background()

	esClient, err := common.NewClient(appConfig.Elasticsearch)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	var legacyStore infodoc.Store
	switch appConfig.Stores.Legacy.Kind {
	case config.PostgresLegacyStore:
		if appConfig.Stores.Legacy.Postgres == nil {
			return nil, fmt.Errorf("Legacy store kind is [%s] but no postgres settings were given", appConfig.Stores.Legacy.Kind)
		}
		db, err = postgres.NewDB(ctx, *appConfig.Stores.Legacy.Postgres)
		if err != nil {
			return nil, err
		}
		legacyStore = pgInfodoc.NewStore(db, *appConfig.Stores.Legacy.Postgres)
	case config.ElasticsearchLegacyStore, "":
		legacyStore = esInfodoc.NewStore(esClient, index.LegacyIndexName(appConfig.Stores))
	default:
		return nil, fmt.Errorf("Unknown legacy store kind [%s]", appConfig.Stores.Legacy.Kind)
	}
	canonicalStore := esInfodoc.NewStore(esClient, index.CanonicalIndexName(appConfig.Stores))

	service := infodoc.NewEngine(canonicalStore, legacyStore, appConfig.InfoDocs, tracing.NewTracer())
	controller := infodocController.New(service)

	validation.SetUpValidators()

	ginEngine := gin.New()
	ginEngine.Use(
		apmgin.Middleware(ginEngine),
		logger.SetLogger(logger.Config{
			Logger: &log.Logger,
			UTC:    true,
		}),
		gin.Recovery(),
		gzip.Gzip(gzip.DefaultCompression),
	)
	ginEngine.NoRoute(routing.NoRoute)
	ginEngine.NoMethod(routing.NoMethod)

	topLevelGroup := routing.NewTopLevelRoutesGroup(appConfig.Auth, ginEngine)
	routesHandler := infodocs.RoutesHandler{Controller: controller}
	routesHandler.RegisterRoutes(topLevelGroup)

	return &Components{
		config:    *appConfig,
		db:        db,
		setup:     NewSetup(esClient, db, appConfig),
		ginEngine: ginEngine,
	}, nil
}

// Run runs setup if needed, then serves until SIGINT or SIGTERM, shutting down gracefully
// within the configured timeout
func (c *Components) Run() {
	if err := c.setup.RunIfNeeded(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up")
	}

	srv := &http.Server{
		Addr:    c.config.BindAddress,
		Handler: c.ginEngine,
	}

	go func() {
		log.Info().Str("bind_address", c.config.BindAddress).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to listen")
		}
	}()

	// Wait for interrupt signals to gracefully shut the server down with a configurable timeout
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Server shutdown initialised ...")

	shutdownTimeout := c.config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server did not shut down in time, forcefully killing.")
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Postgres connections")
		}
	}
	log.Info().Msg("Server exiting")
}
