// Package main provides the entry point for the attendance bot: it wires
// configuration, storage, the Telegram poller, and the admin HTTP API, and
// shuts everything down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/avikram/attendance-bot/internal/auth"
	"github.com/avikram/attendance-bot/internal/bot"
	"github.com/avikram/attendance-bot/internal/config"
	"github.com/avikram/attendance-bot/internal/face"
	"github.com/avikram/attendance-bot/internal/geofence"
	httpapi "github.com/avikram/attendance-bot/internal/http"
	"github.com/avikram/attendance-bot/internal/observability"
	"github.com/avikram/attendance-bot/internal/ratelimit"
	"github.com/avikram/attendance-bot/internal/repo"
	"github.com/avikram/attendance-bot/internal/services"
	"github.com/avikram/attendance-bot/internal/sysutil"
	"github.com/avikram/attendance-bot/internal/telegram"
)

const version = "1.0.0"

// Run is the testable entrypoint for the application.
func Run(ctx context.Context) error {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Msg("starting attendance bot")

	// Tracing (no-op unless OTEL_ENABLED)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	// Storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	// Startup cleanup: stale temp photos and old replay-ledger rows.
	bot.CleanTempFiles(cfg.TempDir)
	if n, err := repo.PurgeUsedPhotos(ctx, db, time.Now().Add(-cfg.PhotoRetention)); err != nil {
		log.Warn().Err(err).Msg("used photo purge failed")
	} else if n > 0 {
		log.Info().Int64("rows", n).Msg("purged old used photos")
	}

	// Domain collaborators
	faceStore, err := face.NewStore(cfg.FaceDir)
	if err != nil {
		return err
	}
	matcher := face.NewHTTPMatcher(cfg.MatcherURL)
	fence := geofence.New(cfg.Office.Lat, cfg.Office.Lon, cfg.Office.RadiusMeters)
	authority := auth.NewSessionAuthority(cfg.Auth.SecretKey, cfg.Auth.TokenTTL, cfg.Auth.SingleSession)

	checkInSvc := &services.CheckInService{
		DB:             db,
		Conversations:  services.NewConversationStore(),
		Fence:          fence,
		Guard:          &services.LivenessReplayGuard{DB: db, MaxAge: cfg.MaxPhotoAge},
		Matcher:        matcher,
		Faces:          faceStore,
		CheckInLimiter: ratelimit.New(cfg.CheckInLimit.MaxAttempts, cfg.CheckInLimit.Window),
		VerifyLimiter:  ratelimit.New(cfg.FaceVerifyLimit.MaxAttempts, cfg.FaceVerifyLimit.Window),
		PhotoBindDelay: cfg.PhotoBindDelay,
	}
	userSvc := &services.UserService{DB: db, Faces: faceStore}
	attendanceSvc := &services.AttendanceService{DB: db}
	faceSvc := &services.FaceService{DB: db, Store: faceStore, Matcher: matcher}

	// Telegram transport and dispatcher
	var pollerDone chan struct{}
	if cfg.Bot.Token != "" {
		client := telegram.NewClient(cfg.Bot.Token, cfg.Bot.PollTimeout)
		dispatcher := bot.New(
			client,
			checkInSvc,
			faceSvc,
			bot.NewStaticAdminPolicy(cfg.Bot.AdminIDs),
			cfg.TempDir,
			log.With().Str("component", "bot").Logger(),
		)
		poller := &telegram.Poller{
			Source:  client,
			Timeout: cfg.Bot.PollTimeout,
			Backoff: cfg.Bot.Backoff,
			Handler: dispatcher.HandleUpdate,
			Log:     log.With().Str("component", "poller").Logger(),
		}
		pollerDone = make(chan struct{})
		go func() {
			defer close(pollerDone)
			poller.Run(ctx)
		}()
	} else {
		log.Warn().Msg("BOT_TOKEN not set, telegram polling disabled")
	}

	// Admin HTTP API
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		Users:        userSvc,
		Attendance:   attendanceSvc,
		Faces:        faceSvc,
		Authority:    authority,
		LoginLimiter: ratelimit.New(cfg.LoginLimit.MaxAttempts, cfg.LoginLimit.Window),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	if pollerDone != nil {
		select {
		case <-pollerDone:
		case <-sctx.Done():
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := Run(ctx); err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
}
