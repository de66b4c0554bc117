package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jymapp/jym/internal/api"
	"github.com/jymapp/jym/internal/flow"
	"github.com/jymapp/jym/internal/genai"
	"github.com/jymapp/jym/internal/lockfile"
	"github.com/jymapp/jym/internal/messaging"
	"github.com/jymapp/jym/internal/scheduler"
	"github.com/jymapp/jym/internal/store"
	"github.com/jymapp/jym/internal/trigger"
	"github.com/jymapp/jym/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Jym state data
	DefaultStateDir = "/var/lib/jym"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "jym.db"
	// DefaultSweepCron runs the idle-user sweep at the top of every hour
	DefaultSweepCron = "0 * * * *"
)

// Config holds environment configuration.
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	APIAddr     string
	SweepCron   string
}

// Flags holds command line flag values.
type Flags struct {
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
	sweepCron *string
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "stateDir", *flags.stateDir)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("Jym failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Jym exited successfully")
}

// initializeLogger sets up structured logging with debug level.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and
// an optional .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("JYM_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		APIAddr:     os.Getenv("API_ADDR"),
		SweepCron:   os.Getenv("JYM_SWEEP_CRON"),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.SweepCron == "" {
		config.SweepCron = DefaultSweepCron
	}
	return config
}

// parseCommandLineFlags parses flags with environment values as defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "Directory for Jym state data"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "Database DSN (postgres:// URL or SQLite file path)"),
		openaiKey: flag.String("openai-key", config.OpenAIKey, "OpenAI API key"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API listen address"),
		sweepCron: flag.String("sweep-cron", config.SweepCron, "Cron expression for the idle-user re-engagement sweep"),
	}
	flag.Parse()
	return flags
}

// buildStore opens the store implied by the DSN: a postgres:// URL selects
// Postgres, anything else is a SQLite file path.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildHub registers every channel whose credentials are configured.
func buildHub() (*messaging.Hub, *messaging.TelegramClient, *messaging.TwilioWhatsAppClient, *messaging.LoopMessageClient) {
	hub := messaging.NewHub()

	var telegram *messaging.TelegramClient
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		client, err := messaging.NewTelegramClient(messaging.WithTelegramToken(token))
		if err != nil {
			slog.Error("Failed to build Telegram client", "error", err)
		} else {
			telegram = client
			hub.Register(telegram)
		}
	}

	var whatsApp *messaging.TwilioWhatsAppClient
	if os.Getenv("TWILIO_ACCOUNT_SID") != "" {
		client, err := messaging.NewTwilioWhatsAppClient()
		if err != nil {
			slog.Error("Failed to build Twilio WhatsApp client", "error", err)
		} else {
			whatsApp = client
			hub.Register(whatsApp)
		}
	}

	var iMessage *messaging.LoopMessageClient
	if os.Getenv("LOOPMESSAGE_AUTH_KEY") != "" {
		client, err := messaging.NewLoopMessageClient(
			messaging.WithLoopAuthKey(os.Getenv("LOOPMESSAGE_AUTH_KEY")),
			messaging.WithLoopSecretKey(os.Getenv("LOOPMESSAGE_SECRET_KEY")),
			messaging.WithLoopSenderName(os.Getenv("LOOPMESSAGE_SENDER_NAME")),
		)
		if err != nil {
			slog.Error("Failed to build LoopMessage client", "error", err)
		} else {
			iMessage = client
			hub.Register(iMessage)
		}
	}

	return hub, telegram, whatsApp, iMessage
}

func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	genaiClient, err := genai.NewClient(
		genai.WithAPIKey(*flags.openaiKey),
		genai.WithModel(os.Getenv("OPENAI_MODEL")),
	)
	if err != nil {
		return err
	}

	hub, telegram, whatsApp, iMessage := buildHub()
	if len(hub.Services()) == 0 {
		slog.Warn("No messaging channels configured; only the trigger API will be reachable")
	}

	timer := trigger.NewSimpleTimer()
	defer timer.Stop()
	triggers := trigger.NewScheduler(st, timer, genaiClient, hub)

	stateManager := flow.NewStoreBasedStateManager(st)
	onboarding := flow.NewOnboardingEngine(stateManager, genaiClient, st)
	chat := flow.NewChatFlow(st, genaiClient, triggers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := messaging.NewRouter(hub, onboarding, chat, st)
	router.Start(ctx)
	defer router.Stop()

	if err := triggers.RecoverPending(ctx); err != nil {
		slog.Error("Failed to recover pending triggers", "error", err)
	}

	cron := scheduler.NewScheduler()
	defer cron.Stop()
	sweeper := trigger.NewSweeper(st, triggers, util.ParseDurationEnv("JYM_IDLE_THRESHOLD", trigger.DefaultIdleThreshold))
	if err := cron.AddJob(*flags.sweepCron, func() { sweeper.Sweep(context.Background()) }); err != nil {
		slog.Error("Failed to schedule re-engagement sweep", "error", err, "cron", *flags.sweepCron)
	}

	serverOpts := []api.Option{
		api.WithAddr(*flags.apiAddr),
		api.WithStore(st),
		api.WithTriggerScheduler(triggers),
	}
	if telegram != nil {
		serverOpts = append(serverOpts, api.WithTelegramClient(telegram))
	}
	if whatsApp != nil {
		serverOpts = append(serverOpts, api.WithWhatsAppClient(whatsApp))
	}
	if iMessage != nil {
		serverOpts = append(serverOpts, api.WithIMessageClient(iMessage))
	}
	server, err := api.NewServer(serverOpts...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
