package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/labflowhq/labflow/internal/api"
	"github.com/labflowhq/labflow/internal/genai"
	"github.com/labflowhq/labflow/internal/lockfile"
	"github.com/labflowhq/labflow/internal/store"
	"github.com/labflowhq/labflow/internal/twilioclient"
	"github.com/labflowhq/labflow/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LabFlow state data
	DefaultStateDir = "/var/lib/labflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "labflow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Guard the state directory against a second instance
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	storeOpts := buildStoreOptions(flags)
	twilioOpts := buildTwilioOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping LabFlow with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "twilio", len(twilioOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	if err := api.Run(storeOpts, twilioOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("LabFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LabFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	APIAddr      string
	LabID        string
	RedisAddr    string
	S3Bucket     string
	UploadDir    string
	InsightURL   string
	ReminderCron string
	TwilioSID    string
	TwilioToken  string
	TwilioFrom   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	labID        *string
	redisAddr    *string
	s3Bucket     *string
	uploadDir    *string
	insightURL   *string
	reminderCron *string
	twilioSID    *string
	twilioToken  *string
	twilioFrom   *string
}

// initializeLogger sets up structured logging. LABFLOW_VERBOSE=false raises
// the level to info for quieter production logs.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("LABFLOW_VERBOSE", true) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("LABFLOW_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		LabID:        os.Getenv("DEFAULT_LAB_ID"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		UploadDir:    os.Getenv("UPLOAD_DIR"),
		InsightURL:   os.Getenv("INSIGHT_URL"),
		ReminderCron: os.Getenv("REMINDER_CRON"),
		TwilioSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:   os.Getenv("TWILIO_FROM_NUMBER"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LABFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LABFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"DEFAULT_LAB_ID", config.LabID,
		"REDIS_ADDR", config.RedisAddr,
		"S3_BUCKET", config.S3Bucket,
		"INSIGHT_URL_SET", config.InsightURL != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for LabFlow data (overrides $LABFLOW_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN, PostgreSQL URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for intent classification (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		labID:        flag.String("lab-id", config.LabID, "lab that booked appointments are attributed to (overrides $DEFAULT_LAB_ID)"),
		redisAddr:    flag.String("redis-addr", config.RedisAddr, "Redis address for the scratch cache (overrides $REDIS_ADDR)"),
		s3Bucket:     flag.String("s3-bucket", config.S3Bucket, "S3 bucket for uploaded report media (overrides $S3_BUCKET)"),
		uploadDir:    flag.String("upload-dir", config.UploadDir, "local directory for uploaded report media when S3 is not used (overrides $UPLOAD_DIR)"),
		insightURL:   flag.String("insight-url", config.InsightURL, "base URL of the report-analysis service (overrides $INSIGHT_URL)"),
		reminderCron: flag.String("reminder-cron", config.ReminderCron, "cron expression for the appointment reminder sweep (overrides $REMINDER_CRON)"),
		twilioSID:    flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:  flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:   flag.String("twilio-from", config.TwilioFrom, "WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"labID", *flags.labID,
		"redisAddr", *flags.redisAddr,
		"s3Bucket", *flags.s3Bucket,
		"insightURLSet", *flags.insightURL != "")

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" && !strings.Contains(*flags.dbDSN, "://") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildTwilioOptions constructs Twilio gateway configuration options
func buildTwilioOptions(flags Flags) []twilioclient.Option {
	var twilioOpts []twilioclient.Option
	if *flags.twilioSID != "" {
		twilioOpts = append(twilioOpts, twilioclient.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		twilioOpts = append(twilioOpts, twilioclient.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		twilioOpts = append(twilioOpts, twilioclient.WithFromWhats(*flags.twilioFrom))
	}
	return twilioOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.labID != "" {
		apiOpts = append(apiOpts, api.WithLabID(*flags.labID))
	}
	if *flags.redisAddr != "" {
		apiOpts = append(apiOpts, api.WithRedisAddr(*flags.redisAddr))
	}
	if *flags.s3Bucket != "" {
		apiOpts = append(apiOpts, api.WithS3Bucket(*flags.s3Bucket))
	}
	if *flags.uploadDir != "" {
		apiOpts = append(apiOpts, api.WithUploadDir(*flags.uploadDir, ""))
	}
	if *flags.insightURL != "" {
		apiOpts = append(apiOpts, api.WithInsightBaseURL(*flags.insightURL))
	}
	if *flags.reminderCron != "" {
		apiOpts = append(apiOpts, api.WithReminderCron(*flags.reminderCron))
	}
	return apiOpts
}
