package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/schoolvax/internal/config"
	"github.com/ehr/schoolvax/internal/domain/cohortimport"
	"github.com/ehr/schoolvax/internal/domain/consent"
	"github.com/ehr/schoolvax/internal/domain/organisation"
	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/programme"
	"github.com/ehr/schoolvax/internal/domain/session"
	"github.com/ehr/schoolvax/internal/domain/status"
	"github.com/ehr/schoolvax/internal/domain/triage"
	"github.com/ehr/schoolvax/internal/domain/vaccination"
	"github.com/ehr/schoolvax/internal/platform/auth"
	"github.com/ehr/schoolvax/internal/platform/blobstore"
	"github.com/ehr/schoolvax/internal/platform/db"
	"github.com/ehr/schoolvax/internal/platform/identity"
	"github.com/ehr/schoolvax/internal/platform/middleware"
	"github.com/ehr/schoolvax/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "schoolvax-server",
		Short: "School vaccination API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

// app holds the wired services shared by the server and the one-shot
// commands.
type app struct {
	sessions     *session.Service
	status       *status.Service
	consents     *consent.Service
	triages      *triage.Service
	vaccinations *vaccination.Service
	patients     *patient.Service
	importer     *cohortimport.Importer
	orgRepo      organisation.Repository
	blobs        blobstore.BlobStore
	closers      []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	a := &app{}
	tx := db.NewTxManager(pool)

	orgRepo := organisation.NewRepoPG(pool)
	progRepo := programme.NewRepoPG(pool)
	patientRepo := patient.NewRepoPG(pool)
	parentRepo := patient.NewParentRepoPG(pool)
	consentRepo := consent.NewRepoPG(pool)
	triageRepo := triage.NewRepoPG(pool)
	vaccinationRepo := vaccination.NewRepoPG(pool)
	sessionRepo := session.NewRepoPG(pool)
	locationRepo := session.NewLocationRepoPG(pool)
	membershipRepo := session.NewMembershipRepoPG(pool)
	proposalRepo := session.NewProposalRepoPG(pool)
	a.orgRepo = orgRepo

	dispatchers := notification.Fanout{notification.NewLogDispatcher(logger, notification.NewTemplateEngine())}
	if len(cfg.KafkaBrokers) > 0 {
		kd := notification.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.NotifyTopic)
		dispatchers = append(dispatchers, kd)
		a.closers = append(a.closers, kd.Close)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.NotifyTopic).Msg("kafka notifications enabled")
	}

	a.triages = triage.NewService(triageRepo, tx, logger)
	a.consents = consent.NewService(consentRepo, progRepo, triageRepo, tx, logger)
	a.vaccinations = vaccination.NewService(vaccinationRepo, logger)
	a.patients = patient.NewService(patientRepo, parentRepo, tx)

	a.sessions = session.NewService(session.Deps{
		Sessions:      sessionRepo,
		Locations:     locationRepo,
		Memberships:   membershipRepo,
		Proposals:     proposalRepo,
		Patients:      patientRepo,
		Programmes:    progRepo,
		Organisations: orgRepo,
		Vaccinations:  vaccinationRepo,
		Consents:      consentRepo,
		Triages:       triageRepo,
		Tx:            tx,
	}, session.Options{StrictProgrammeOverlap: cfg.Features.StrictProgrammeOverlap}, logger)

	a.status = status.NewService(status.Deps{
		Patients:     patientRepo,
		Consents:     consentRepo,
		Triages:      triageRepo,
		Vaccinations: vaccinationRepo,
		Sessions:     sessionRepo,
		Memberships:  membershipRepo,
		Programmes:   progRepo,
		Dispatcher:   dispatchers,
	}, logger)
	a.consents.SetNotifier(a.status)
	a.triages.SetNotifier(a.status)
	a.vaccinations.SetNotifier(a.status)

	var lookup identity.Lookup
	if cfg.PDSBaseURL != "" {
		lookup = identity.NewLimited(identity.NewClient(cfg.PDSBaseURL, cfg.PDSTimeout), cfg.PDSRateLimitRPS, cfg.PDSMaxConcurrency)
	}

	if cfg.S3ImportBucket != "" {
		s3Store, err := blobstore.NewS3Store(ctx, cfg.S3ImportBucket, cfg.S3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		a.blobs = s3Store
	} else {
		a.blobs = blobstore.NewInMemoryBlobStore()
	}

	a.importer = cohortimport.NewImporter(cohortimport.Deps{
		Patients:   patientRepo,
		Parents:    parentRepo,
		Schools:    locationRepo,
		Programmes: progRepo,
		Identity:   lookup,
		Blobs:      a.blobs,
		Enroller:   a.sessions,
		Tx:         tx,
	}, logger)
	return a, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	logger := newLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := buildApp(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}
	defer a.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Organisation-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	organisation.NewHandler(a.orgRepo).RegisterRoutes(apiV1)

	scoped := apiV1.Group("", db.OrganisationMiddleware())
	patient.NewHandler(a.patients).RegisterRoutes(scoped)
	consent.NewHandler(a.consents).RegisterRoutes(scoped)
	triage.NewHandler(a.triages).RegisterRoutes(scoped)
	vaccination.NewHandler(a.vaccinations).RegisterRoutes(scoped)
	session.NewHandler(a.sessions).RegisterRoutes(scoped)
	status.NewHandler(a.status).RegisterRoutes(scoped)
	cohortimport.NewHandler(a.importer).RegisterRoutes(scoped)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
