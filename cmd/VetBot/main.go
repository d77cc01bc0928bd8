package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Alex3496/VetBot/internal/api"
	"github.com/Alex3496/VetBot/internal/genai"
	"github.com/Alex3496/VetBot/internal/lockfile"
	"github.com/Alex3496/VetBot/internal/messaging"
	"github.com/Alex3496/VetBot/internal/sheets"
	"github.com/Alex3496/VetBot/internal/store"
	"github.com/Alex3496/VetBot/internal/twiliowhatsapp"
	"github.com/Alex3496/VetBot/internal/util"
	"github.com/Alex3496/VetBot/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for VetBot state data
	DefaultStateDir = "/var/lib/vetbot"
	// DefaultWhatsAppDBFileName is the whatsmeow device store filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	lock, err := lockfile.AcquireLock(flags.StateDir, lockfile.Owner{Transport: flags.Transport, StartedAt: time.Now()})
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}

	mods := api.Modules{
		API:      buildAPIOptions(flags),
		Cloud:    buildCloudOptions(flags),
		Twilio:   buildTwilioOptions(flags),
		WhatsApp: buildWhatsAppOptions(flags),
		Store:    buildStoreOptions(flags),
		GenAI:    buildGenAIOptions(flags),
		Sheets:   buildSheetsOptions(flags),
	}

	slog.Info("Bootstrapping VetBot", "transport", flags.Transport)
	slog.Debug("Module options counts", "api", len(mods.API), "cloud", len(mods.Cloud), "twilio", len(mods.Twilio), "whatsapp", len(mods.WhatsApp), "store", len(mods.Store), "genai", len(mods.GenAI), "sheets", len(mods.Sheets))
	runErr := api.Run(mods)
	if err := lock.Release(); err != nil {
		slog.Warn("Failed to release state directory lock", "error", err)
	}
	if runErr != nil {
		slog.Error("VetBot failed to run", "error", runErr)
		os.Exit(1)
	}
	slog.Info("VetBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir  string
	APIAddr   string
	Transport string

	CloudToken      string
	PhoneNumberID   string
	BusinessID      string
	CloudBaseURL    string
	CloudAPIVersion string
	VerifyToken     string
	AppSecret       string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioWebhookURL string

	WhatsAppDBDSN string
	DatabaseURL   string

	OpenAIKey   string
	OpenAIModel string
	GenAIDebug  bool

	SheetID          string
	SheetRange       string
	SheetCredentials string

	IdleTimeout   time.Duration
	SweepSchedule string
	DedupEnabled  bool
}

// Flags holds the resolved configuration after command line overrides.
type Flags struct {
	Config
	QROutput    string
	NumericCode bool
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
		StateDir:         os.Getenv("VETBOT_STATE_DIR"),
		APIAddr:          os.Getenv("API_ADDR"),
		Transport:        os.Getenv("WHATSAPP_TRANSPORT"),
		CloudToken:       os.Getenv("APP_WHATSAPP_TOKEN"),
		PhoneNumberID:    os.Getenv("PHONE_NUMBER_ID"),
		BusinessID:       os.Getenv("APP_WHATSAPP_BUSINESS_ID"),
		CloudBaseURL:     os.Getenv("APP_WHATSAPP_API_URL"),
		CloudAPIVersion:  os.Getenv("API_VERSION"),
		VerifyToken:      os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		AppSecret:        os.Getenv("APP_SECRET"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		GenAIDebug:       util.ParseBoolEnv("GENAI_DEBUG", false),
		SheetID:          os.Getenv("GOOGLE_SHEET_ID"),
		SheetRange:       os.Getenv("GOOGLE_SHEET_RANGE"),
		SheetCredentials: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		IdleTimeout:      util.ParseDurationEnv("SESSION_IDLE_TIMEOUT", api.DefaultIdleTimeout),
		SweepSchedule:    os.Getenv("SWEEP_SCHEDULE"),
		DedupEnabled:     util.ParseBoolEnv("DEDUP_ENABLED", true),
	}

	// PORT is what most hosting platforms inject.
	if config.APIAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			config.APIAddr = ":" + port
		}
	}

	if config.Transport == "" {
		config.Transport = api.TransportCloud
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No VETBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"VETBOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"WHATSAPP_TRANSPORT", config.Transport,
		"APP_WHATSAPP_TOKEN_SET", config.CloudToken != "",
		"PHONE_NUMBER_ID", config.PhoneNumberID,
		"APP_SECRET_SET", config.AppSecret != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GOOGLE_SHEET_ID_SET", config.SheetID != "",
		"SESSION_IDLE_TIMEOUT", config.IdleTimeout,
		"DEDUP_ENABLED", config.DedupEnabled)

	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	flags := Flags{Config: config}
	fs := flag.NewFlagSet("vetbot", flag.ContinueOnError)
	fs.StringVar(&flags.StateDir, "state-dir", config.StateDir, "state directory for VetBot data (overrides $VETBOT_STATE_DIR)")
	fs.StringVar(&flags.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR and $PORT)")
	fs.StringVar(&flags.Transport, "transport", config.Transport, "WhatsApp transport: cloud, twilio or whatsmeow (overrides $WHATSAPP_TRANSPORT)")
	fs.StringVar(&flags.DatabaseURL, "db-dsn", config.DatabaseURL, "application database DSN, empty for in-memory (overrides $DATABASE_URL)")
	fs.StringVar(&flags.WhatsAppDBDSN, "whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&flags.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.QROutput, "qr-output", "", "path to write the whatsmeow login QR code")
	fs.BoolVar(&flags.NumericCode, "numeric-code", false, "print a numeric whatsmeow login code instead of a QR code")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Follow a relocated state directory unless the device DSN was set explicitly.
	if flags.WhatsAppDBDSN == config.WhatsAppDBDSN && config.WhatsAppDBDSN == defaultWhatsAppDSN(config.StateDir) && flags.StateDir != config.StateDir {
		flags.WhatsAppDBDSN = defaultWhatsAppDSN(flags.StateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", flags.StateDir,
		"apiAddr", flags.APIAddr,
		"transport", flags.Transport,
		"dbDSN_set", flags.DatabaseURL != "",
		"qrOutput", flags.QROutput,
		"numeric", flags.NumericCode)
	return flags, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithTransport(flags.Transport),
		api.WithIdleTimeout(flags.IdleTimeout),
		api.WithDedup(flags.DedupEnabled),
	}
	if flags.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.APIAddr))
	}
	if flags.SweepSchedule != "" {
		apiOpts = append(apiOpts, api.WithSweepSchedule(flags.SweepSchedule))
	}
	if flags.TwilioWebhookURL != "" && flags.TwilioAuthToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioSignature(flags.TwilioAuthToken, flags.TwilioWebhookURL))
	}
	return apiOpts
}

// buildCloudOptions constructs WhatsApp Cloud API options
func buildCloudOptions(flags Flags) []messaging.CloudOption {
	opts := []messaging.CloudOption{
		messaging.WithAccessToken(flags.CloudToken),
		messaging.WithPhoneNumberID(flags.PhoneNumberID),
		messaging.WithVerifyToken(flags.VerifyToken),
	}
	if flags.BusinessID != "" {
		opts = append(opts, messaging.WithBusinessID(flags.BusinessID))
	}
	if flags.CloudBaseURL != "" {
		opts = append(opts, messaging.WithBaseURL(flags.CloudBaseURL))
	}
	if flags.CloudAPIVersion != "" {
		opts = append(opts, messaging.WithAPIVersion(flags.CloudAPIVersion))
	}
	if flags.AppSecret != "" {
		opts = append(opts, messaging.WithAppSecret(flags.AppSecret))
	}
	return opts
}

// buildTwilioOptions constructs Twilio client options; unset values fall back to TWILIO_* inside the client
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if flags.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(flags.TwilioAccountSID))
	}
	if flags.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(flags.TwilioAuthToken))
	}
	if flags.TwilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(flags.TwilioFrom))
	}
	return opts
}

// buildWhatsAppOptions constructs whatsmeow configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if flags.QROutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.QROutput))
	}
	if flags.NumericCode {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if flags.WhatsAppDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(flags.WhatsAppDBDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if flags.DatabaseURL == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(flags.DatabaseURL) == store.DSNTypePostgres {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return []store.Option{store.WithPostgresDSN(flags.DatabaseURL)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", flags.DatabaseURL)
	return []store.Option{store.WithSQLiteDSN(flags.DatabaseURL)}
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	genaiOpts := []genai.Option{genai.WithStateDir(flags.StateDir)}
	if flags.OpenAIKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.OpenAIKey))
	}
	if flags.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.OpenAIModel))
	}
	if flags.GenAIDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true))
	}
	return genaiOpts
}

// buildSheetsOptions constructs spreadsheet sink options. No sheet id disables the sink.
func buildSheetsOptions(flags Flags) []sheets.Option {
	if flags.SheetID == "" {
		return nil
	}
	opts := []sheets.Option{sheets.WithSpreadsheetID(flags.SheetID)}
	if flags.SheetRange != "" {
		opts = append(opts, sheets.WithRange(flags.SheetRange))
	}
	if flags.SheetCredentials != "" {
		opts = append(opts, sheets.WithCredentialsFile(flags.SheetCredentials))
	}
	return opts
}
