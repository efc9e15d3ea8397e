package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/cache"
	"github.com/GTDGit/gtd_catalog/internal/config"
	"github.com/GTDGit/gtd_catalog/internal/database"
	"github.com/GTDGit/gtd_catalog/internal/events"
	"github.com/GTDGit/gtd_catalog/internal/handler"
	"github.com/GTDGit/gtd_catalog/internal/metrics"
	"github.com/GTDGit/gtd_catalog/internal/middleware"
	"github.com/GTDGit/gtd_catalog/internal/repository"
	"github.com/GTDGit/gtd_catalog/internal/service"
	"github.com/GTDGit/gtd_catalog/internal/sse"
	"github.com/GTDGit/gtd_catalog/internal/worker"
	dfg "github.com/GTDGit/gtd_catalog/pkg/digiflazz"
	"github.com/GTDGit/gtd_catalog/pkg/vcgamers"
)

// main is the entrypoint of the catalog reconciliation service.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting gtd catalog")

	// 3. Connect database
	if cfg.DB.Embedded {
		embedded, err := database.StartEmbedded(&cfg.DB)
		if err != nil {
			log.Error().Err(err).Msg("embedded database failed to start")
			fmt.Fprintf(os.Stderr, "embedded database failed to start: %v\n", err)
			os.Exit(1)
		}
		defer embedded.Stop()
	}
	startupCtx, startupCancel := context.WithTimeout(context.Background(), time.Minute)
	db, err := database.Connect(startupCtx, &cfg.DB)
	startupCancel()
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := database.RunMigrations(db.DB, cfg.DB.MigrationsPath); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("redis connection failed")
		fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected successfully")

	// 4. Initialize repositories
	brandRepo := repository.NewBrandRepository(db)
	productRepo := repository.NewProductRepository(db)

	// 5. Initialize catalog providers
	registry := service.NewProviderRegistry()
	if cfg.VCGamers.APIKey != "" {
		vcgClient := vcgamers.NewClient(vcgamers.Config{
			BaseURL:       cfg.VCGamers.BaseURL,
			APIKey:        cfg.VCGamers.APIKey,
			SecretKey:     cfg.VCGamers.SecretKey,
			RatePerSecond: cfg.VCGamers.RateLimit,
			Timeout:       cfg.VCGamers.Timeout,
		})
		registry.Register(service.NewVCGamersProvider(vcgClient))
		log.Info().Msg("VCGamers provider registered")
	} else {
		log.Warn().Msg("VCGAMERS_API_KEY not set - VCGamers provider disabled")
	}
	if cfg.Digiflazz.Username != "" {
		digiClient := dfg.NewClient(cfg.Digiflazz.Username, cfg.Digiflazz.KeyProduction)
		registry.Register(service.NewDigiflazzProvider(digiClient))
		log.Info().Msg("Digiflazz provider registered")
	}

	// 5a. Image internalisation
	var images service.ImageStore = service.NopImageStore{}
	if cfg.S3.Enabled() {
		s3Store, err := service.NewS3ImageStore(context.Background(), &cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("S3 image store initialization failed - remote images will not be copied")
		} else {
			images = s3Store
		}
	}

	// 5b. Metrics, audit events and live progress
	catalogMetrics := metrics.NewCatalogMetrics(prometheus.DefaultRegisterer)

	var audit service.AuditPublisher = service.NopAuditPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.CatalogTopic)
		defer publisher.Close()
		audit = publisher
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.CatalogTopic).Msg("Kafka audit publisher enabled")
	}

	sseHub := sse.NewHub()
	runLock := cache.NewRunLock(redisClient)

	// 6. Initialize services
	syncSvc := service.NewCatalogSyncService(brandRepo, productRepo, registry, images, service.DefaultPurchaseRules(), cfg.Catalog)
	syncSvc.SetLocker(runLock)
	syncSvc.SetSummaryCache(cache.NewSyncSummaryCache(redisClient))
	syncSvc.SetAuditPublisher(audit)
	syncSvc.SetMetrics(catalogMetrics)
	syncSvc.SetObserver(sse.NewSyncNotifier(sseHub))

	mergeSvc := service.NewBrandMergeService(brandRepo, productRepo, cfg.Catalog)
	mergeSvc.SetLocker(runLock)
	mergeSvc.SetAuditPublisher(audit)
	mergeSvc.SetMetrics(catalogMetrics)

	brandSvc := service.NewBrandService(brandRepo, productRepo, cfg.Catalog)
	brandSvc.SetMetrics(catalogMetrics)

	// 7. Initialize handlers
	handlers := &Handlers{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"database": db.PingContext,
			"redis":    redisClient.Ping,
		}),
		CatalogSync: handler.NewCatalogSyncHandler(syncSvc),
		Brand:       handler.NewBrandHandler(brandSvc),
		BrandMerge:  handler.NewBrandMergeHandler(mergeSvc, brandSvc),
		SSE:         handler.NewSSEHandler(sseHub, cfg.JWTSecret),
	}

	// 8. Initialize middleware
	jwtMw := middleware.NewJWTMiddleware(cfg.JWTSecret, middleware.NewInvalidAuthRateLimiter())

	// 9. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSAllowedHosts))
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers, jwtMw)

	// 10. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 11. Start workers
	go worker.NewCatalogSyncWorker(syncSvc, registry.Codes(), cfg.Worker.CatalogSyncInterval).Start(ctx)

	// 12. Start HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 13. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 14. Cancel context to stop workers and in-flight runs
	cancel()

	// 15. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health      *handler.HealthHandler
	CatalogSync *handler.CatalogSyncHandler
	Brand       *handler.BrandHandler
	BrandMerge  *handler.BrandMergeHandler
	SSE         *handler.SSEHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers, jwtMiddleware *middleware.JWTMiddleware) {
	router.GET("/v1/health", handlers.Health.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// SSE authenticates with ?token= since EventSource cannot send headers
	router.GET("/v1/admin/catalog/events", handlers.SSE.Stream)

	catalog := router.Group("/v1/admin/catalog")
	catalog.Use(jwtMiddleware.Handle())
	{
		// Sync
		catalog.POST("/sync", handlers.CatalogSync.Sync)
		catalog.GET("/sync/last", handlers.CatalogSync.LastSummary)

		// Brands
		catalog.GET("/brands", handlers.Brand.ListBrands)
		catalog.POST("/brands", handlers.Brand.CreateBrand)
		catalog.POST("/brands/merge", handlers.BrandMerge.Merge)
		catalog.POST("/brands/purge", handlers.BrandMerge.Purge)
		catalog.GET("/brands/:code", handlers.Brand.GetBrand)
		catalog.PUT("/brands/:code", handlers.Brand.UpdateBrand)
	}
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
