// Command GPTPipe runs the conversational assistant bot on the configured transport.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/GPTPipe/internal/api"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/genai"
	"github.com/BTreeMap/GPTPipe/internal/handlers"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/lockfile"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/middleware"
	"github.com/BTreeMap/GPTPipe/internal/router"
	"github.com/BTreeMap/GPTPipe/internal/scheduler"
	"github.com/BTreeMap/GPTPipe/internal/store"
	"github.com/BTreeMap/GPTPipe/internal/telegram"
	"github.com/BTreeMap/GPTPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/GPTPipe/internal/util"
	"github.com/BTreeMap/GPTPipe/internal/whatsapp"
)

// Default configuration constants.
const (
	DefaultStateDir           = "/var/lib/gptpipe"
	DefaultAppDBFileName      = "gptpipe.db"
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	DefaultSweepSchedule      = "@every 5m"
)

// Transports.
const (
	TransportTelegram = "telegram"
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

func main() {
	config := loadEnvironmentConfig()
	config, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(newLogger(os.Stdout, config.LogLevel, config.LogFormat))
	config.logSummary()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping GPTPipe", "transport", config.Transport)
	if err := run(ctx, config); err != nil {
		slog.Error("GPTPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("GPTPipe exited successfully")
}

// Config is the resolved process configuration. Environment variables provide the
// defaults and command line flags override them.
type Config struct {
	Transport string
	StateDir  string

	TelegramToken string

	OpenAIKey         string
	OpenAIModel       string
	OpenAIMaxTokens   int
	OpenAITemperature float64
	OpenAITimeout     time.Duration
	GenAIDebug        bool

	DatabaseURL string

	WhatsAppDSN      string
	QROutput         string
	NumericCode      bool
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	TwilioWebhookURL string

	APIAddr    string
	AdminToken string

	SessionTTL    time.Duration
	SweepSchedule string
	Workers       int

	LogLevel  string
	LogFormat string
}

// loadEnvironmentConfig reads .env (when present) and the environment.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		Transport:         strings.ToLower(os.Getenv("BOT_TRANSPORT")),
		StateDir:          os.Getenv("GPTPIPE_STATE_DIR"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		OpenAIMaxTokens:   util.ParseIntEnv("OPENAI_MAX_TOKENS", genai.DefaultMaxTokens),
		OpenAITemperature: util.ParseFloatEnv("OPENAI_TEMPERATURE", genai.DefaultTemperature),
		OpenAITimeout:     util.ParseDurationEnv("OPENAI_TIMEOUT", genai.DefaultRequestTimeout),
		GenAIDebug:        util.ParseBoolEnv("GENAI_DEBUG", false),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
		TwilioSID:         os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:        os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL:  os.Getenv("TWILIO_WEBHOOK_URL"),
		APIAddr:           os.Getenv("API_ADDR"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		SessionTTL:        util.ParseDurationEnv("SESSION_TTL", flow.DefaultSessionTTL),
		SweepSchedule:     os.Getenv("SESSION_SWEEP_SCHEDULE"),
		Workers:           util.ParseIntEnv("DISPATCH_WORKERS", router.DefaultWorkers),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		LogFormat:         os.Getenv("LOG_FORMAT"),
	}
	if config.Transport == "" {
		config.Transport = TransportTelegram
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = DefaultSweepSchedule
	}
	if config.OpenAIModel == "" {
		config.OpenAIModel = genai.DefaultModel
	}
	return config
}

// parseCommandLineFlags overrides config with the flags in args.
func parseCommandLineFlags(config Config, args []string) (Config, error) {
	fs := flag.NewFlagSet("GPTPipe", flag.ContinueOnError)
	fs.StringVar(&config.Transport, "transport", config.Transport, "bot transport: telegram, whatsapp or twilio (overrides $BOT_TRANSPORT)")
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory (overrides $GPTPIPE_STATE_DIR)")
	fs.StringVar(&config.DatabaseURL, "db-dsn", config.DatabaseURL, "application database DSN, postgres or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&config.WhatsAppDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&config.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&config.OpenAIModel, "openai-model", config.OpenAIModel, "chat model (overrides $OPENAI_MODEL)")
	fs.BoolVar(&config.GenAIDebug, "genai-debug", config.GenAIDebug, "write model requests under <state-dir>/debug (overrides $GENAI_DEBUG)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "admin HTTP address, empty disables (overrides $API_ADDR)")
	fs.StringVar(&config.SweepSchedule, "sweep-schedule", config.SweepSchedule, "cron schedule of the idle session sweep (overrides $SESSION_SWEEP_SCHEDULE)")
	fs.DurationVar(&config.SessionTTL, "session-ttl", config.SessionTTL, "idle time after which a conversation session expires (overrides $SESSION_TTL)")
	fs.IntVar(&config.Workers, "workers", config.Workers, "events handled concurrently (overrides $DISPATCH_WORKERS)")
	fs.StringVar(&config.QROutput, "qr-output", config.QROutput, "path to write the WhatsApp login QR code")
	fs.BoolVar(&config.NumericCode, "numeric-code", config.NumericCode, "use a numeric WhatsApp login code instead of a QR code")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "debug, info, warn or error (overrides $LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return config, err
	}
	config.Transport = strings.ToLower(config.Transport)
	return config, config.validate()
}

func (c Config) validate() error {
	switch c.Transport {
	case TransportTelegram, TransportWhatsApp, TransportTwilio:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Transport == TransportTwilio && c.TwilioWebhookURL == "" {
		return fmt.Errorf("TWILIO_WEBHOOK_URL is required for the %s transport to validate webhook signatures", TransportTwilio)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive, got %s", c.SessionTTL)
	}
	return scheduler.Validate(c.SweepSchedule)
}

// appDSN returns DATABASE_URL or the SQLite file in the state directory.
func (c Config) appDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultAppDBFileName)
}

func (c Config) whatsAppDSN() string {
	if c.WhatsAppDSN != "" {
		return c.WhatsAppDSN
	}
	return "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// logSummary logs the configuration without secrets.
func (c Config) logSummary() {
	slog.Debug("Configuration loaded",
		"transport", c.Transport,
		"state_dir", c.StateDir,
		"database_url_set", c.DatabaseURL != "",
		"telegram_token_set", c.TelegramToken != "",
		"openai_api_key_set", c.OpenAIKey != "",
		"openai_model", c.OpenAIModel,
		"api_addr", c.APIAddr,
		"admin_token_set", c.AdminToken != "",
		"twilio_auth_token_set", c.TwilioToken != "",
		"session_ttl", c.SessionTTL,
		"sweep_schedule", c.SweepSchedule,
		"workers", c.Workers)
}

// newLogger builds the process logger. format "json" selects the JSON handler.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildStoreOptions(c Config) []store.Option {
	dsn := c.appDSN()
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Configuring SQLite store", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

func buildGenAIOptions(c Config) []genai.Option {
	return []genai.Option{
		genai.WithAPIKey(c.OpenAIKey),
		genai.WithModel(c.OpenAIModel),
		genai.WithMaxTokens(c.OpenAIMaxTokens),
		genai.WithTemperature(c.OpenAITemperature),
		genai.WithTimeout(c.OpenAITimeout),
		genai.WithDebugMode(c.GenAIDebug, c.StateDir),
	}
}

func buildWhatsAppOptions(c Config) []whatsapp.Option {
	opts := []whatsapp.Option{whatsapp.WithDBDSN(c.whatsAppDSN())}
	if c.QROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(c.QROutput))
	}
	if c.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}

func buildTwilioOptions(c Config) []twiliowhatsapp.Option {
	return []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID(c.TwilioSID),
		twiliowhatsapp.WithAuthToken(c.TwilioToken),
		twiliowhatsapp.WithFromWhats(c.TwilioFrom),
	}
}

// buildAPIOptions returns nil when the admin server is disabled. The Twilio transport
// always needs it for inbound messages.
func buildAPIOptions(c Config, webhook http.Handler) []api.Option {
	addr := c.APIAddr
	if addr == "" && webhook == nil {
		return nil
	}
	if addr == "" {
		slog.Warn("API_ADDR not set, serving the Twilio webhook on the default address", "addr", api.DefaultAddr)
		addr = api.DefaultAddr
	}
	opts := []api.Option{api.WithAddr(addr), api.WithAdminToken(c.AdminToken)}
	if webhook != nil {
		opts = append(opts, api.WithTwilioWebhook(webhook))
	}
	return opts
}

func botCommands() []telegram.Command {
	cmds := make([]telegram.Command, 0, len(lexicon.Commands))
	for _, c := range lexicon.Commands {
		cmds = append(cmds, telegram.Command{Name: c.Name, Description: c.Description})
	}
	return cmds
}

// buildTransport connects the configured transport. webhook is set for Twilio only.
func buildTransport(ctx context.Context, c Config) (svc messaging.Service, webhook http.Handler, err error) {
	switch c.Transport {
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(c)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(c)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		tw := messaging.NewTwilioService(client, c.TwilioWebhookURL)
		return tw, http.HandlerFunc(tw.WebhookHandler), nil
	default:
		client, err := telegram.NewClient(telegram.WithToken(c.TelegramToken))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Telegram client: %w", err)
		}
		if err := client.SetCommands(ctx, botCommands()); err != nil {
			slog.Warn("Failed to register bot commands", "error", err)
		}
		return messaging.NewTelegramService(client), nil, nil
	}
}

// buildPipeline registers the middleware chain and handler groups.
func buildPipeline(st store.Store, fsm flow.StateManager, gw genai.Gateway, svc messaging.Service) (*router.Pipeline, error) {
	reg := router.NewRegistry()
	middleware.Register(reg, st, fsm)
	handlers.Register(reg, handlers.Deps{Gateway: gw})
	if failures := reg.Failures(); len(failures) > 0 {
		return nil, fmt.Errorf("handler registration failed: %w", errors.Join(failures...))
	}
	slog.Debug("Registry built", "routers", len(reg.Routers()), "middlewares", len(reg.Middlewares()))
	return reg.Build(svc, handlers.PipelineOptions()...), nil
}

// sweepSessions drops idle FSM sessions from memory.
func sweepSessions(fsm *flow.InMemoryStateManager) scheduler.Job {
	return func(context.Context) {
		if n := fsm.Sweep(); n > 0 {
			slog.Info("Swept expired sessions", "count", n)
		}
	}
}

// run wires the modules and blocks until ctx is cancelled.
func run(ctx context.Context, c Config) error {
	lock, err := lockfile.Acquire(c.StateDir, lockfile.WithTransport(c.Transport))
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.New(buildStoreOptions(c)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	gw, err := genai.NewClient(buildGenAIOptions(c)...)
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}

	svc, webhook, err := buildTransport(ctx, c)
	if err != nil {
		return err
	}
	defer svc.Stop()

	fsm := flow.NewInMemoryStateManager(c.SessionTTL)
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob("session_sweep", c.SweepSchedule, sweepSessions(fsm)); err != nil {
		return err
	}

	pipeline, err := buildPipeline(st, fsm, gw, svc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	if apiOpts := buildAPIOptions(c, webhook); apiOpts != nil {
		srv := api.NewServer(st, apiOpts...)
		go func() {
			if err := srv.Run(ctx); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s transport: %w", c.Transport, err)
	}
	slog.Info("GPTPipe ready", "transport", c.Transport, "workers", c.Workers)
	router.NewDispatcher(pipeline, svc, router.WithWorkers(c.Workers)).Run(ctx)

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
