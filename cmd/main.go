package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/franciscosanchezn/authzilla/docs" // Import generated docs
	"github.com/franciscosanchezn/authzilla/internal/auth"
	"github.com/franciscosanchezn/authzilla/internal/authcode"
	"github.com/franciscosanchezn/authzilla/internal/config"
	"github.com/franciscosanchezn/authzilla/internal/controllers"
	"github.com/franciscosanchezn/authzilla/internal/database"
	"github.com/franciscosanchezn/authzilla/internal/instrumentation"
	"github.com/franciscosanchezn/authzilla/internal/middleware"
	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/franciscosanchezn/authzilla/internal/store"
	"github.com/franciscosanchezn/authzilla/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const (
	serviceName    = "authzilla"
	serviceVersion = "1.0.0"
	purgeInterval  = time.Hour
)

var (
	db            *gorm.DB
	rdb           *redis.Client
	configuration *config.Config
)

// @title AuthZilla API
// @version 1.0
// @description OAuth 2.1 authorization server
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and an access token issued for the <issuer>/management resource by a client the user owns.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load environment variables
	loadDotenvFile()

	// Initialize logger
	setUpLogger()

	// Load configuration
	configuration = loadConfig()
	setLogLevels(configuration.LogLevel)

	// Initialize database connection
	setupDatabase(ctx, configuration)

	inst := setupInstrumentation()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to flush telemetry")
		}
	}()

	// Initialize services
	tokenStore := setupStore(ctx, configuration)
	codec, err := authcode.NewCodec(configuration.OAuth)
	checkPanicErr(err)
	issuer, err := tokens.NewIssuer(configuration.OAuth)
	checkPanicErr(err)

	userService := services.NewUserService(db)
	clientService := services.NewClientService(db)
	oauthService := auth.NewOAuthService(configuration.OAuth, codec, issuer, clientService, tokenStore,
		auth.WithInstrumentation(inst))

	// Initialize Gin router
	router := setupRouter(controllers.Dependencies{
		OAuth:   oauthService,
		Users:   userService,
		Clients: clientService,
		Cookie: controllers.CookieSettings{
			Name:   configuration.OAuth.SessionCookieName,
			MaxAge: int(configuration.OAuth.SessionTTL.Seconds()),
			Secure: configuration.Environment == "production",
		},
	})

	if gs, ok := tokenStore.(*store.GormStore); ok {
		go purgeExpired(ctx, gs)
	}

	// Start the server
	srv := &http.Server{
		Addr:              fmt.Sprintf("%v:%d", configuration.Host, configuration.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

// checkPanicErr checks if an error occurred and panics if it did
func checkPanicErr(err error) {
	if err != nil {
		panic(err)
	}
}

// loadDotenvFile loads environment variables from a .env file
// If the file is not found, it will log a warning and use system environment variables
func loadDotenvFile() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables")
	}
}

// setUpLogger initializes the logger with a JSON formatter and sets the log level based on the environment
func setUpLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	environment := config.GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(log.DebugLevel)
	case "production":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// setLogLevels applies LOG_LEVEL to the package loggers when it is set explicitly
func setLogLevels(value string) {
	if _, ok := os.LookupEnv("LOG_LEVEL"); !ok {
		return
	}
	level, err := log.ParseLevel(value)
	if err != nil {
		log.WithError(err).Warnf("Ignoring invalid LOG_LEVEL %q", value)
		return
	}
	log.SetLevel(level)
	auth.SetLogLevel(level)
	controllers.SetLogLevel(level)
	middleware.SetLogLevel(level)
}

// loadConfig loads the application configuration from environment variables
// It returns a Config struct or panics if there is an error
func loadConfig() *config.Config {
	conf, err := config.LoadConfig()
	checkPanicErr(err)
	return conf
}

// setupDatabase opens the database connection and migrates the schema
func setupDatabase(ctx context.Context, conf *config.Config) {
	dbConfig := database.FromConfig(conf)
	log.Infof("Connecting to database: %s", dbConfig.String())

	var err error
	db, err = database.InitDatabase(ctx, dbConfig)
	checkPanicErr(err)
	checkPanicErr(database.Migrate(db))
}

// setupStore selects the backend for token records and code redemptions
func setupStore(ctx context.Context, conf *config.Config) store.Store {
	if conf.StoreBackend != config.StoreRedis {
		return store.NewGormStore(db)
	}

	rdb = store.NewRedisClient(conf)
	redisStore := store.NewRedisStore(rdb)
	checkPanicErr(redisStore.Ping(ctx))
	log.WithField("addr", conf.RedisAddr).Info("Using Redis token store")
	return redisStore
}

// setupInstrumentation installs the tracer provider. Tracing stays no-op unless OTEL_ENABLED is set.
func setupInstrumentation() *instrumentation.Instrumentation {
	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Enabled:        config.GetEnvAsType("OTEL_ENABLED", false),
	})
	checkPanicErr(err)
	otel.SetTracerProvider(inst.TracerProvider())
	return inst
}

// purgeExpired removes expired token records and code redemptions periodically
func purgeExpired(ctx context.Context, gs *store.GormStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := gs.Purge(ctx)
			if err != nil {
				log.WithError(err).Error("Failed to purge expired tokens")
				continue
			}
			log.WithField("rows", purged).Debug("Purged expired tokens")
		}
	}
}

// setupRouter initializes the Gin router and sets up the routes
// It returns the configured router
func setupRouter(deps controllers.Dependencies) *gin.Engine {
	if configuration.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.GET("/health", healthCheckHandler)
	controllers.SetupRoutes(router, deps)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return router
}

// healthCheckHandler handles the health check endpoint
// @Summary Health check
// @Description Check if the service and its stores are reachable
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func healthCheckHandler(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   serviceName,
	}

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "unreachable"
	}
	if rdb != nil {
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["redis"] = "unreachable"
		}
	}
	c.JSON(status, body)
}
