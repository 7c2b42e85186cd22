package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"attendance/internal/camera"
	"attendance/internal/config"
	"attendance/internal/daemon"
	"attendance/internal/face"
	"attendance/internal/fingerprint"
	"attendance/internal/ipc"
	"attendance/internal/logging"
	"attendance/internal/notifications"
	"attendance/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// ConfigPath is re-read for fingerprint settings before every terminal
	// connection. Empty means the settings loaded at startup are used as is.
	ConfigPath string
}

// Run starts the attendance daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	now := time.Now()
	logPath := cfg.LogFilePath()
	archived, rotateErr := logging.RotateAtStartup(logPath, now)
	if rotateErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to rotate log file: %v\n", rotateErr)
	}

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.NewString()
	logger = logger.With(logging.String("run_id", runID))
	if archived != "" {
		logger.Debug("previous log archived", logging.String("path", archived))
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, logging.ArchivePattern(logPath), now)
	logComponentSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(signalCtx, cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open attendance store", "store_open_failed",
			logging.Error(err),
			logging.String("driver", cfg.Database.Driver),
			logging.String(logging.FieldErrorHint, "check the [database] section of the config file"),
		)
		return err
	}

	components := buildComponents(cfg, opts.ConfigPath, st, logger)

	d, err := daemon.New(cfg, components, logger, logPath)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run attendance daemon start once the problem is fixed"),
			logging.String(logging.FieldImpact, "check-in and check-out are unavailable"),
		)
	}

	<-signalCtx.Done()
	logger.Info("attendance daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// buildComponents wires the production camera, encoder and fingerprint
// terminal clients. A camera that cannot be configured leaves Source unset so
// attendance runs fail with a configuration error instead of blocking startup.
func buildComponents(cfg *config.Config, configPath string, st store.Store, logger *slog.Logger) daemon.Components {
	components := daemon.Components{
		Store:    st,
		Notifier: notifications.NewService(cfg),
		Dialer: fingerprint.TCPDialer{
			Timeout: cfg.Fingerprint.ConnectTimeoutDuration(),
			CommKey: uint32(cfg.Fingerprint.CommKey),
		},
	}
	if strings.TrimSpace(configPath) != "" {
		components.Settings = config.NewFingerprintLoader(configPath, cfg.Fingerprint)
	} else {
		components.Settings = fingerprint.StaticSettings(cfg.Fingerprint)
	}
	if url := strings.TrimSpace(cfg.Face.EncoderURL); url != "" {
		components.Encoder = face.NewHTTPEncoder(url, time.Duration(cfg.Face.RequestTimeout)*time.Second)
	}
	source, err := camera.NewSourceFromConfig(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "camera not configured", "camera_unconfigured",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set camera.snapshot_url or face.encoder_url"),
			logging.String(logging.FieldImpact, "faces cannot be captured"),
		)
		return components
	}
	components.Source = source
	return components
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logComponentSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("component snapshot",
		logging.String(logging.FieldEventType, "component_snapshot"),
		logging.String("database_driver", cfg.Database.Driver),
		logging.String("fingerprint_address", cfg.Fingerprint.Address()),
		logging.String("encoder_url", cfg.Face.EncoderURL),
		logging.String("camera_snapshot_url", cfg.Camera.SnapshotURL),
		logging.String("camera_device", cfg.Camera.Device),
		logging.Float64("face_threshold", cfg.Face.Threshold),
		logging.Int("min_checkout_gap_minutes", cfg.Attendance.MinCheckoutGapMinutes),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
