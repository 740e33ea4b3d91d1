package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xowhq/boothcore/internal/api"
	"github.com/xowhq/boothcore/internal/capture"
	"github.com/xowhq/boothcore/internal/clock"
	"github.com/xowhq/boothcore/internal/cloud"
	"github.com/xowhq/boothcore/internal/config"
	"github.com/xowhq/boothcore/internal/health"
	"github.com/xowhq/boothcore/internal/models"
	"github.com/xowhq/boothcore/internal/overlay"
	"github.com/xowhq/boothcore/internal/session"
	"github.com/xowhq/boothcore/internal/storage"
	"github.com/xowhq/boothcore/internal/store"
	boothsync "github.com/xowhq/boothcore/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg.AppEnv)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.MediaDir, 0755); err != nil {
		logger.Fatal("failed to create media directory", zap.Error(err))
	}
	media, err := storage.NewLocalStorage(cfg.MediaDir)
	if err != nil {
		logger.Fatal("failed to initialize media storage", zap.Error(err))
	}

	db, err := store.NewDB(store.Config{
		Type:       cfg.DB.Type,
		Host:       cfg.DB.Host,
		Port:       cfg.DB.Port,
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Name:       cfg.DB.Name,
		SQLitePath: cfg.DB.SQLitePath,
	})
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}
	defer db.Close()

	if cfg.DB.Type == "postgres" {
		migrationsPath := os.Getenv("MIGRATIONS_PATH")
		if migrationsPath == "" {
			migrationsPath = "./migrations"
		}
		if err := db.RunMigrations(migrationsPath, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	repo := store.NewSessionRepository(db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var archive boothsync.Archiver
	if cfg.MediaBackend == "s3" {
		s3, err := storage.NewS3Archive(ctx, storage.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize s3 archive", zap.Error(err))
		}
		archive = s3
	}

	remote := cloud.NewClient(cfg.CloudBaseURL, cfg.UploadTimeout)
	engine := boothsync.NewEngine(remote, repo, media, archive, logger)

	monitor := health.NewMonitor(remote, cfg.HealthInterval, logger)
	go monitor.Run(ctx)

	transcoder, err := overlay.NewTranscoder(cfg.FFmpegPath, cfg.ExpoName, logger)
	if err != nil {
		logger.Warn("overlay transcoder unavailable, videos will keep raw output", zap.Error(err))
	}
	var processor session.VideoProcessor
	if transcoder != nil {
		processor = transcoder
	}

	clk := clock.New(cfg.FrameRate, nil)
	controller := session.NewController(
		clk,
		capture.NewFFmpegVideo(cfg.FFmpegPath),
		capture.NewFFmpegAudio(cfg.FFmpegPath),
		media,
		repo,
		processor,
		&logSink{clk: clk, logger: logger},
		logger,
		session.Config{
			MediaDir:         cfg.MediaDir,
			Video:            capture.VideoConfig{InputDevice: cfg.VideoInput, FrameRate: cfg.FrameRate},
			Audio:            capture.AudioConfig{InputDevice: cfg.AudioInput},
			StopPollInterval: cfg.StopPollInterval,
			StopPollAttempts: cfg.StopPollAttempts,
		},
	)

	var recorder api.Recorder = controller
	if cfg.AutoPromote {
		recorder = &autoPromoteRecorder{
			Controller: controller,
			engine:     engine,
			monitor:    monitor,
			logger:     logger,
		}
	}

	app := &api.App{
		Recorder:  recorder,
		Repo:      repo,
		Cloud:     remote,
		Promoter:  engine,
		Media:     media,
		Health:    monitor,
		Clock:     clk,
		Logger:    logger,
		DeviceID:  cfg.DeviceID,
		ExpoName:  cfg.ExpoName,
		BoothName: cfg.BoothName,
	}

	server := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.NewRouter(app)}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		server.Shutdown(context.Background())
	}()

	logger.Info("boothd starting",
		zap.String("port", cfg.HTTPPort),
		zap.String("device_id", cfg.DeviceID),
		zap.String("booth", cfg.BoothName),
		zap.String("db_type", cfg.DB.Type),
		zap.String("media_dir", cfg.MediaDir),
		zap.Bool("auto_promote", cfg.AutoPromote))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// logSink surfaces controller events in the daemon log. The UI shell gets
// the same events over its own bridge; headless runs still see them here.
// Each recording run follows the clock's tick channel until it closes.
type logSink struct {
	clk    *clock.Clock
	logger *zap.Logger
}

func (s *logSink) StateChanged(state session.State) {
	s.logger.Info("session state changed", zap.String("state", string(state)))
	if state != session.StateRecording {
		return
	}
	ticks := s.clk.Ticks()
	go func() {
		for sec := range ticks {
			s.logger.Debug("recording", zap.Int("elapsed_seconds", sec))
		}
	}()
}

func (s *logSink) Notice(kind session.NoticeKind, message string) {
	s.logger.Info(message, zap.String("notice", string(kind)))
}

// autoPromoteRecorder uploads each finalized session right away when the
// device is online. Upload failure is not a finalize failure; the session
// stays pending and the operator promotes it later.
type autoPromoteRecorder struct {
	*session.Controller
	engine  *boothsync.Engine
	monitor *health.Monitor
	logger  *zap.Logger
}

func (r *autoPromoteRecorder) End(ctx context.Context) (*models.LocalSession, error) {
	sess, err := r.Controller.End(ctx)
	if err != nil {
		return nil, err
	}
	if r.monitor.Online() {
		if err := r.engine.Promote(ctx, sess); err != nil {
			r.logger.Warn("auto-promotion failed, session stays pending",
				zap.String("local_id", sess.LocalID), zap.Error(err))
		}
	}
	return sess, nil
}

func newLogger(appEnv string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if appEnv == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	return logger
}
