// Package config builds the process configuration from flags, environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
)

// EnvPrefix is prepended to every flag name to form its environment variable,
// e.g. --store-driver becomes MENU_SCAN_STORE_DRIVER.
const EnvPrefix = "MENU_SCAN"

// Store drivers
const (
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Scanner kinds
const (
	ScannerGemini = "gemini"
	ScannerOllama = "ollama"
)

// Archive kinds
const (
	ArchiveNone  = ""
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

var (
	// ErrStoreNotConfigured means no store driver was selected
	ErrStoreNotConfigured = errors.New("store driver not configured")
	// ErrUnknownStore means the store driver is not one we know
	ErrUnknownStore = errors.New("unknown store driver")
	// ErrVersionRequested is returned by Load when --version was passed
	ErrVersionRequested = errors.New("version requested")
)

// Config is built once at startup and handed to the constructors that need it
type Config struct {
	HTTP    HTTP
	Store   Store
	Scanner Scanner
	Archive Archive
}

// HTTP configures the web server
type HTTP struct {
	Port           int   `validate:"min=1,max=65535"`
	MaxUploadBytes int64 `validate:"min=1"`
	AuthUser       string
	AuthPass       string
}

// Store selects and configures the record store backend
type Store struct {
	Driver   string `validate:"required,oneof=bolt sqlite postgres mysql"`
	Path     string `validate:"required_if=Driver bolt,required_if=Driver sqlite"`
	DSN      string
	Host     string
	Port     int `validate:"min=0,max=65535"`
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int `validate:"min=1"`
}

// IsServer reports whether the driver talks to a database server
func (s Store) IsServer() bool {
	return s.Driver == DriverPostgres || s.Driver == DriverMySQL
}

// Scanner configures the external model and how it is called
type Scanner struct {
	Kind        string `validate:"oneof=gemini ollama"`
	GeminiKey   string `validate:"required_if=Kind gemini"`
	GeminiModel string
	OllamaURL   string `validate:"omitempty,url"`
	OllamaModel string
	Timeout     time.Duration `validate:"min=1s"`
	Attempts    int           `validate:"min=1,max=10"`
	RetryDelay  time.Duration
	Concurrency int `validate:"min=1,max=32"`
}

// Archive configures where uploaded menu images are kept
type Archive struct {
	Kind      string `validate:"omitempty,oneof=local s3"`
	Dir       string `validate:"required_if=Kind local"`
	Bucket    string `validate:"required_if=Kind s3"`
	Prefix    string
	Endpoint  string `validate:"omitempty,url"`
	Region    string
	AccessKey string
	SecretKey string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateStore, Store{})
	return v
}

// validateStore requires connection parameters for server backends
func validateStore(sl validator.StructLevel) {
	s := sl.Current().Interface().(Store)
	if !s.IsServer() || s.DSN != "" {
		return
	}
	if s.Host == "" {
		sl.ReportError(s.Host, "Host", "Host", "required_without_dsn", "")
	}
	if s.Name == "" {
		sl.ReportError(s.Name, "Name", "Name", "required_without_dsn", "")
	}
}

// Load parses args and the environment into a validated Config. A .env
// file in the working directory is read first when present.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	flags := ff.NewFlagSet("menu-scan")
	var (
		port        = flags.IntLong("port", 8080, "HTTP server port")
		maxUploadMB = flags.IntLong("max-upload-mb", 50, "Maximum size of one upload request in MiB")
		authUser    = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = flags.StringLong("auth-pass", "", "Basic auth password (optional)")

		storeDriver   = flags.StringLong("store-driver", "", "Record store: 'bolt', 'sqlite', 'postgres' or 'mysql'")
		storePath     = flags.StringLong("store-path", "menu.db", "Database file for the bolt and sqlite stores")
		storeDSN      = flags.StringLong("store-dsn", "", "Full connection string for postgres or mysql (overrides host/user/...)")
		storeHost     = flags.StringLong("store-host", "", "Database server host")
		storePort     = flags.IntLong("store-port", 0, "Database server port (driver default when 0)")
		storeUser     = flags.StringLong("store-user", "", "Database user")
		storePassword = flags.StringLong("store-password", "", "Database password")
		storeName     = flags.StringLong("store-name", "", "Database name")
		storeSSLMode  = flags.StringLong("store-sslmode", "disable", "Postgres sslmode")
		storeMaxConns = flags.IntLong("store-max-conns", 10, "Maximum open connections for server stores")

		scannerKind = flags.StringLong("scanner", ScannerGemini, "Scanner type: 'gemini' or 'ollama'")
		geminiKey   = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = flags.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = flags.StringLong("ollama-model", "llava", "Ollama vision model name")
		scanTimeout = flags.DurationLong("scan-timeout", 90*time.Second, "Timeout for one model call")
		scanTries   = flags.IntLong("scan-attempts", 1, "Attempts per image before it is treated as empty")
		scanDelay   = flags.DurationLong("scan-retry-delay", 2*time.Second, "Delay between attempts")
		concurrency = flags.IntLong("scan-concurrency", 4, "Images scanned in parallel per request")

		archiveKind      = flags.StringLong("archive", ArchiveNone, "Keep uploaded images: '', 'local' or 's3'")
		archiveDir       = flags.StringLong("archive-dir", "./uploads", "Directory for the local archive")
		archiveBucket    = flags.StringLong("archive-bucket", "", "Bucket for the s3 archive")
		archivePrefix    = flags.StringLong("archive-prefix", "menus", "Key prefix for the s3 archive")
		archiveEndpoint  = flags.StringLong("archive-endpoint", "", "Custom S3 endpoint (R2, MinIO)")
		archiveRegion    = flags.StringLong("archive-region", "auto", "S3 region")
		archiveAccessKey = flags.StringLong("archive-access-key", "", "S3 access key (default credential chain when empty)")
		archiveSecretKey = flags.StringLong("archive-secret-key", "", "S3 secret key")

		showVersion = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, args, ff.WithEnvVarPrefix(EnvPrefix)); err != nil {
		return nil, &UsageError{Flags: flags, Err: err}
	}
	if *showVersion {
		return nil, ErrVersionRequested
	}

	key := *geminiKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}

	cfg := &Config{
		HTTP: HTTP{
			Port:           *port,
			MaxUploadBytes: int64(*maxUploadMB) << 20,
			AuthUser:       *authUser,
			AuthPass:       *authPass,
		},
		Store: Store{
			Driver:   *storeDriver,
			Path:     *storePath,
			DSN:      *storeDSN,
			Host:     *storeHost,
			Port:     *storePort,
			User:     *storeUser,
			Password: *storePassword,
			Name:     *storeName,
			SSLMode:  *storeSSLMode,
			MaxConns: *storeMaxConns,
		},
		Scanner: Scanner{
			Kind:        *scannerKind,
			GeminiKey:   key,
			GeminiModel: *geminiModel,
			OllamaURL:   *ollamaURL,
			OllamaModel: *ollamaModel,
			Timeout:     *scanTimeout,
			Attempts:    *scanTries,
			RetryDelay:  *scanDelay,
			Concurrency: *concurrency,
		},
		Archive: Archive{
			Kind:      *archiveKind,
			Dir:       *archiveDir,
			Bucket:    *archiveBucket,
			Prefix:    *archivePrefix,
			Endpoint:  *archiveEndpoint,
			Region:    *archiveRegion,
			AccessKey: *archiveAccessKey,
			SecretKey: *archiveSecretKey,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the store selection first so a missing or unknown driver
// gets its own error, then everything else.
func (c *Config) Validate() error {
	if err := CheckDriver(c.Store.Driver); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// CheckDriver returns ErrStoreNotConfigured or ErrUnknownStore for drivers
// the store factory cannot open.
func CheckDriver(driver string) error {
	switch driver {
	case "":
		return fmt.Errorf("%w: set --store-driver or %s_STORE_DRIVER", ErrStoreNotConfigured, EnvPrefix)
	case DriverBolt, DriverSQLite, DriverPostgres, DriverMySQL:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, driver)
	}
}

// UsageError wraps a flag parsing failure together with the flag set so the
// caller can print help.
type UsageError struct {
	Flags *ff.FlagSet
	Err   error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}
