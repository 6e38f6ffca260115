// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/exitcall/internal/api/connect"
	"github.com/osa030/exitcall/internal/app/callsession"
	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/app/ringtone"
	"github.com/osa030/exitcall/internal/app/upload"
	"github.com/osa030/exitcall/internal/infra/config"
	"github.com/osa030/exitcall/internal/infra/logger"
	"github.com/osa030/exitcall/internal/infra/metrics"
	"github.com/osa030/exitcall/internal/infra/redisnav"
	"github.com/osa030/exitcall/internal/infra/store"
)

var (
	app        = kingpin.New("exitcall-server", "ExitCall simulated incoming call server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	migrateCmd = app.Command("migrate", "Apply database migrations and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == migrateCmd.FullCommand() {
		if err := migrate(cfg); err != nil {
			zlog.Error().Msgf("Migration failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(store.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.Database.Debug,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(cfg *config.Config) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("Database is up to date: driver=%s", cfg.Database.Driver)
	return db.Close()
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := openStore(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer db.Close()

	m, err := metrics.New()
	if err != nil {
		return err
	}

	settings := store.NewSettingsRepository(db)
	sessions := store.NewSessionRepository(db)

	// Navigation fans out to connected screens and, optionally, Redis
	broadcaster := navigation.NewBroadcaster()
	navigators := navigation.Multi{broadcaster}
	if cfg.Redis.Enabled {
		relay, err := redisnav.Dial(ctx, redisnav.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return err
		}
		defer relay.Close()
		navigators = append(navigators, relay)
		zlog.Info().Msgf("Relaying navigation to redis: addr=%s channel=%s", cfg.Redis.Addr, cfg.Redis.Channel)
	}

	player := ringtone.NewPlayer(newBackend(cfg), ringtone.Config{
		Volume: cfg.Ringtones.Volume,
		Catalog: ringtone.Catalog{
			Builtin:           cfg.Ringtones.Builtin,
			Fallback:          cfg.Ringtones.Fallback,
			UploadsPublicPath: cfg.Uploads.PublicPath,
			UploadsDir:        cfg.Uploads.Dir,
		},
	}, m)

	machine := callsession.NewMachine(callsession.Deps{
		Sessions:  sessions,
		Settings:  settings,
		Ringtones: callsession.PlayerOpener(player),
		Navigator: navigators,
		Metrics:   m,
	})
	defer machine.Close()

	if cfg.StaleAfter() > 0 {
		go machine.RunExpirer(ctx, cfg.StaleAfter(), cfg.ExpireInterval())
	}

	callService := apiconnect.NewCallService(machine, settings, broadcaster, cfg.StaleAfter())
	uploads := upload.NewHandler(upload.NewService(upload.Config{
		Dir:        cfg.Uploads.Dir,
		PublicPath: cfg.Uploads.PublicPath,
		MaxBytes:   cfg.Uploads.MaxBytes,
	}, settings, m))

	mux := http.NewServeMux()
	callPath, callHandler := apiconnect.NewCallServiceHandler(
		callService,
		connect.WithInterceptors(apiconnect.NewLoggingInterceptor()),
	)
	mux.Handle(callPath, callHandler)

	uploadRouter := uploads.Router()
	mux.Handle(cfg.Uploads.PublicPath, uploadRouter)
	mux.Handle(strings.TrimSuffix(cfg.Uploads.PublicPath, "/"), uploadRouter)

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// End navigation streams first so Shutdown does not wait on them
	callService.Close()
	broadcaster.Close()
	stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// newBackend returns the configured player, or a silent backend when none is set.
func newBackend(cfg *config.Config) ringtone.Backend {
	if cfg.Ringtones.PlayerCommand == "" {
		zlog.Info().Msg("No player command configured, ringtones are silent")
		return ringtone.Discard{}
	}
	backend := ringtone.NewCommandBackend(cfg.Ringtones.PlayerCommand)
	backend.RestartDelay = cfg.RestartDelay()
	return backend
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
