package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	app "eventgallery/src/app"
	cfg "eventgallery/src/configuration"
	db "eventgallery/src/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

// NewRouter registers the gallery API on a gin engine. Every API path also
// answers OPTIONS with 200 and no body.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	handler := NewHandler(deps)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:           true,
		AllowMethods:              []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:              strings.Split(strings.ReplaceAll(corsAllowHeaders, " ", ""), ","),
		ExposeHeaders:             []string{headerRequestID},
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: http.StatusOK,
	}))
	router.Use(corsHeaders())

	if deps.Pprof {
		pprof.Register(router)
	}

	router.GET("/health", handler.GetHealth)

	upload := []gin.HandlerFunc{handler.PostEventImages}
	if deps.RateLimit > 0 {
		limiter := newIPRateLimiter(deps.RateLimit, deps.RateLimitWindow)
		upload = append([]gin.HandlerFunc{limiter.middleware()}, upload...)
	}

	api := router.Group("/api")
	routes := []route{
		{http.MethodGet, "/auth-callback", handler.AuthCallback},
		{http.MethodPost, "/auth-callback", handler.AuthCallback},
		{http.MethodGet, "/events", handler.GetEvents},
		{http.MethodGet, "/events/:eventId/images", handler.GetEventImages},
		{http.MethodGet, "/blob-events", handler.GetBlobEvents},
		{http.MethodGet, "/blob-images", handler.GetBlobImages},
		{http.MethodGet, "/sharepoint-images", handler.GetSharePointImages},
		{http.MethodGet, "/get-dataverse-token", handler.DataverseToken},
	}
	preflight := make(map[string]bool)
	for _, r := range routes {
		api.Handle(r.method, r.path, r.handler)
		if !preflight[r.path] {
			api.OPTIONS(r.path, handler.Preflight)
			preflight[r.path] = true
		}
	}
	api.POST("/upload-event-images", upload...)
	api.OPTIONS("/upload-event-images", handler.Preflight)

	router.NoRoute(notFound(deps.StaticDir))
	return router
}

// notFound serves the gallery client from staticDir for non API paths.
func notFound(staticDir string) gin.HandlerFunc {
	var files http.Handler
	if staticDir != "" {
		files = http.FileServer(gin.Dir(staticDir, false))
	}
	return func(c *gin.Context) {
		if files != nil && c.Request.Method == http.MethodGet && !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			files.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found", Message: c.Request.URL.Path + " does not exist"})
	}
}

func newLogger(config *cfg.Properties) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", config.LogLevel).Warn("unknown log level, using info")
	}
	if config.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// newObjectStore opens the configured backend. A missing configuration is
// not fatal: the gallery then reports it on every storage request.
func newObjectStore(config *cfg.Properties, logger *logrus.Logger) (app.ObjectStore, error) {
	storage := config.Storage
	var (
		store app.ObjectStore
		err   error
	)
	switch storage.Backend {
	case cfg.StorageBackendMinio:
		var client *app.MinioS3Client
		client, err = app.NewMinioS3Client(storage.S3.Host, storage.S3.AccessKey, storage.S3.SecretKey, storage.Container, storage.S3.UseSSL)
		if err == nil {
			store = client
		}
	default:
		var client *app.AzureBlobStore
		client, err = app.NewAzureBlobStore(storage.ConnectionString, storage.Container)
		if err == nil {
			store = client
		}
	}
	if errors.Is(err, app.ErrNotConfigured) {
		logger.WithField("backend", storage.Backend).Warn("object storage not configured, blob routes will fail")
		return nil, nil
	}
	return store, err
}

func buildDependencies(ctx context.Context, config *cfg.Properties, logger *logrus.Logger) (Dependencies, error) {
	store, err := newObjectStore(config, logger)
	if err != nil {
		return Dependencies{}, err
	}
	tokenStore, err := db.NewTokenStore(config, logger)
	if err != nil {
		return Dependencies{}, err
	}

	deps := Dependencies{
		Logger: logger,
		Gallery: app.NewGallery(store, app.GalleryOptions{
			IndexName:        config.Storage.IndexBlob,
			SignedURLExpiry:  config.Storage.SASExpiry,
			CountConcurrency: config.Storage.CountConcurrency,
		}, logger),
		UserTokens: app.NewTokenBroker(config.Azure.TenantID, config.Azure.ClientID, config.Azure.ClientSecret, config.Azure.AuthorityHost),
		AppTokens:  app.NewTokenBroker(config.Azure.TenantID, config.Dataverse.ClientID, config.Dataverse.ClientSecret, config.Azure.AuthorityHost),
		Events:     app.NewDataverseClient(config.Dataverse.URL, config.Dataverse.APIVersion, config.Dataverse.Table, nil),
		Folders:    app.NewGraphClient(config.Graph.BaseURL),
		Tokens:     db.NewTokenVault(tokenStore, logger),
		Scopes: Scopes{
			Dataverse: []string{config.Dataverse.DataverseScope()},
			GraphUser: config.Graph.UserScopes,
			GraphApp:  config.Graph.AppScopes,
		},
		StaticDir:       config.Server.StaticDir,
		Pprof:           config.Server.Pprof,
		RateLimit:       config.Server.RateLimit,
		RateLimitWindow: config.Server.RateLimitWindow,
	}

	if config.Auth.VerifyAssertion {
		verifier, err := app.NewOIDCAssertionVerifier(ctx, config.Azure.TenantID, config.Audience())
		if err != nil {
			return Dependencies{}, err
		}
		deps.Verifier = verifier
	}
	return deps, nil
}

func RunServer(config *cfg.Properties) {
	logger := newLogger(config)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, config, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise dependencies")
	}

	srv := &http.Server{
		Addr:              ":" + config.Server.Port,
		Handler:           NewRouter(deps),
		ReadTimeout:       config.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("port", config.Server.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
