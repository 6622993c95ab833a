package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"tubeautomator/internal/adapter/repo"
	"tubeautomator/internal/auth"
	"tubeautomator/internal/http/handlers"
	httpapi "tubeautomator/internal/http/httpapi"
	"tubeautomator/internal/infra"
	"tubeautomator/internal/infra/credentials"
	"tubeautomator/internal/pipeline"
	"tubeautomator/internal/providers/genai"
	"tubeautomator/internal/providers/metadata"
	"tubeautomator/internal/providers/thumbnail"
	"tubeautomator/internal/sqlinline"
	"tubeautomator/internal/storage"
	"tubeautomator/internal/youtube"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The database is optional. Without it the Gemini key must come from the
	// environment and completed uploads are not logged.
	var (
		pool         *pgxpool.Pool
		keyLookup    func(context.Context) (string, error)
		publications *repo.PublicationRepositoryPG
	)
	if cfg.DatabaseURL != "" {
		pool, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: db connection failed")
		}
		defer pool.Close()

		runner := infra.NewSQLRunner(pool, logger)
		if _, err := runner.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
			logger.Fatal().Err(err).Msg("api: schema setup failed")
		}
		keyLookup = credentials.NewStore(runner).GeminiAPIKey
		publications = repo.NewPublicationRepository(runner)
	} else {
		logger.Warn().Msg("api: DATABASE_URL not set; publication log disabled")
	}

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	genaiClient := genai.NewClient(genai.Options{
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
	metaGen, err := metadata.NewGenerator(metadata.Options{
		Client: genaiClient,
		Model:  cfg.GeminiTextModel,
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure metadata generator")
	}
	thumbGen := thumbnail.NewGenerator(thumbnail.Options{
		Client: genaiClient,
		Model:  cfg.GeminiImageModel,
		Logger: &logger,
	})
	uploader := youtube.NewClient(youtube.Options{
		BaseURL:       cfg.YouTubeUploadBaseURL,
		Logger:        &logger,
		CategoryID:    cfg.YouTubeCategoryID,
		PrivacyStatus: cfg.YouTubePrivacyStatus,
	})

	var (
		provider auth.Provider
		consent  handlers.ConsentFlow
	)
	if cfg.OAuthConfigured() {
		oauthProvider, err := auth.NewOAuthProvider(auth.OAuthOptions{
			ClientID:     cfg.YouTubeClientID,
			ClientSecret: cfg.YouTubeClientSecret,
			RedirectURL:  cfg.YouTubeRedirectURL,
			OnConsent: func(consentURL string) {
				logger.Info().Str("consent_url", consentURL).Msg("api: youtube consent required")
			},
			Logger: &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to configure oauth")
		}
		provider, consent = oauthProvider, oauthProvider
	} else {
		logger.Warn().Msg("api: YOUTUBE_CLIENT_ID not set; uploads will report credential_required")
		provider = auth.NewStaticProvider("")
	}

	pipelineOpts := pipeline.Options{
		Metadata:    metaGen,
		Thumbnail:   thumbGen,
		Uploader:    uploader,
		Sources:     fileStore,
		Auth:        provider,
		APIKey:      cfg.GeminiAPIKey,
		KeyLookup:   keyLookup,
		// Started steps run to completion; shutdownCtx bounds the wait instead.
		BaseContext: context.WithoutCancel(ctx),
		Logger:      &logger,
	}
	app := &handlers.App{
		Sources:        fileStore,
		Consent:        consent,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		NewKey:         uuid.NewString,
	}
	// Typed nils must not leak into interface fields.
	if publications != nil {
		pipelineOpts.Publications = publications
		app.Publications = publications
	}

	orchestrator, err := pipeline.New(pipelineOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure pipeline")
	}
	app.Jobs = orchestrator

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: pipeline did not drain")
	}
	logger.Info().Msg("api: stopped")
}
