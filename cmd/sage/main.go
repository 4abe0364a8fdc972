package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ecsf-gov/sage/internal/actions"
	"github.com/ecsf-gov/sage/internal/api"
	"github.com/ecsf-gov/sage/internal/flow"
	"github.com/ecsf-gov/sage/internal/genai"
	"github.com/ecsf-gov/sage/internal/lockfile"
	"github.com/ecsf-gov/sage/internal/store"
	"github.com/ecsf-gov/sage/internal/sweeper"
	"github.com/ecsf-gov/sage/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SAGE state data
	DefaultStateDir = "/var/lib/sage"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "sage.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	slog.Info("Bootstrapping SAGE with configured modules")
	if err := run(flags); err != nil {
		slog.Error("SAGE failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SAGE exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	OpenAIModel   string
	APIAddr       string
	UseAI         bool
	HistoryWindow int
	ContextTTLMin int
	SweepSchedule string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	openaiModel   *string
	apiAddr       *string
	useAI         *bool
	historyWindow *int
	contextTTLMin *int
	sweepSchedule *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("SAGE_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		APIAddr:       os.Getenv("SAGE_API_ADDR"),
		UseAI:         util.ParseBoolEnv("SAGE_USE_AI", true),
		HistoryWindow: util.ParseIntEnv("SAGE_HISTORY_WINDOW", flow.DefaultHistoryWindow),
		ContextTTLMin: util.ParseIntEnv("SAGE_CONTEXT_TTL_MINUTES", int(store.DefaultContextTTL/time.Minute)),
		SweepSchedule: os.Getenv("SAGE_SWEEP_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SAGE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = sweeper.DefaultSchedule
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SAGE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"SAGE_API_ADDR", config.APIAddr,
		"SAGE_USE_AI", config.UseAI,
		"SAGE_HISTORY_WINDOW", config.HistoryWindow,
		"SAGE_CONTEXT_TTL_MINUTES", config.ContextTTLMin,
		"SAGE_SWEEP_SCHEDULE", config.SweepSchedule)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for SAGE data (overrides $SAGE_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $SAGE_API_ADDR)"),
		useAI:         flag.Bool("use-ai", config.UseAI, "enable AI classification and reply generation (overrides $SAGE_USE_AI)"),
		historyWindow: flag.Int("history-window", config.HistoryWindow, "transcript turns sent to the model (overrides $SAGE_HISTORY_WINDOW)"),
		contextTTLMin: flag.Int("context-ttl-minutes", config.ContextTTLMin, "idle conversation lifetime in minutes (overrides $SAGE_CONTEXT_TTL_MINUTES)"),
		sweepSchedule: flag.String("sweep-schedule", config.SweepSchedule, "cron schedule for the context expiry sweep (overrides $SAGE_SWEEP_SCHEDULE)"),
	}

	flag.Parse()

	// A state-dir override moves the default SQLite path with it.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"useAI", *flags.useAI,
		"historyWindow", *flags.historyWindow,
		"contextTTLMinutes", *flags.contextTTLMin,
		"sweepSchedule", *flags.sweepSchedule)

	return flags
}

// buildStore selects a backend from the DSN: PostgreSQL for connection
// URLs, SQLite for file paths, in-memory when no DSN is configured.
func buildStore(flags Flags) (store.Store, error) {
	ttl := time.Duration(*flags.contextTTLMin) * time.Minute
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(store.WithContextTTL(ttl)), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN), store.WithContextTTL(ttl))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN), store.WithContextTTL(ttl))
}

// buildGateway constructs the LLM gateway, or returns nil when AI is
// disabled or no API key is available.
func buildGateway(flags Flags) genai.ClientInterface {
	if !*flags.useAI {
		slog.Info("AI disabled, running fully scripted")
		return nil
	}
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	gateway, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("LLM gateway unavailable, falling back to scripted flows", "error", err)
		return nil
	}
	return gateway
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A file-backed database means exclusive ownership of the state dir.
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	gateway := buildGateway(flags)

	engine := flow.NewEngine(st, gateway, actions.NewExecutor(nil), flow.Config{
		UseAI:         gateway != nil,
		HistoryWindow: *flags.historyWindow,
	})

	sw := sweeper.New(st, time.Duration(*flags.contextTTLMin)*time.Minute, *flags.sweepSchedule)
	if err := sw.Start(); err != nil {
		return err
	}
	defer sw.Stop()

	var apiOpts []api.Option
	apiOpts = append(apiOpts, api.WithEngine(engine), api.WithStore(st), api.WithGateway(gateway))
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	srv, err := api.NewServer(apiOpts...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
