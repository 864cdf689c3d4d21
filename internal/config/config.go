package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file in local development).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Bridge   BridgeConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// ProviderConfig points at the call-control provider's REST API.
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	ConnectionID string
	FromNumber   string
	Timeout      time.Duration
}

// BridgeConfig tunes the bridge flow itself.
type BridgeConfig struct {
	ConnectingAnnouncement   string
	RecordingAnnouncementURL string
	DialTimeoutSeconds       int

	// MaxConcurrentCalls caps in-flight calls per workspace. Zero disables
	// the cap.
	MaxConcurrentCalls int

	DetectMachine   bool
	HangupOnMachine bool

	RecordingFormat      string
	RecordingChannels    string
	TranscribeRecordings bool
}

func Load() (Config, error) {
	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	if c.DB.SSLMode == "" && !c.IsProduction() {
		// Local-friendly default; production must be explicit.
		c.DB.SSLMode = "disable"
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = durationOr("JWT_ACCESS_TTL", 15*time.Minute)

	c.Provider.BaseURL = strings.TrimSpace(os.Getenv("PROVIDER_BASE_URL"))
	c.Provider.APIKey = os.Getenv("PROVIDER_API_KEY")
	c.Provider.ConnectionID = strings.TrimSpace(os.Getenv("PROVIDER_CONNECTION_ID"))
	c.Provider.FromNumber = strings.TrimSpace(os.Getenv("PROVIDER_FROM_NUMBER"))
	c.Provider.Timeout = durationOr("PROVIDER_TIMEOUT", 10*time.Second)

	c.Bridge.ConnectingAnnouncement = strings.TrimSpace(os.Getenv("BRIDGE_CONNECTING_ANNOUNCEMENT"))
	c.Bridge.RecordingAnnouncementURL = strings.TrimSpace(os.Getenv("BRIDGE_RECORDING_ANNOUNCEMENT_URL"))
	c.Bridge.DialTimeoutSeconds = intOr("BRIDGE_DIAL_TIMEOUT_SECONDS", 30)
	c.Bridge.MaxConcurrentCalls = intOr("BRIDGE_MAX_CONCURRENT_CALLS", 0)
	c.Bridge.DetectMachine = boolOr("BRIDGE_DETECT_MACHINE", false)
	c.Bridge.HangupOnMachine = boolOr("BRIDGE_HANGUP_ON_MACHINE", false)
	c.Bridge.RecordingFormat = stringOr("RECORDING_FORMAT", "mp3")
	c.Bridge.RecordingChannels = stringOr("RECORDING_CHANNELS", "dual")
	c.Bridge.TranscribeRecordings = boolOr("RECORDING_TRANSCRIBE", false)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	} else if !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("PROVIDER_BASE_URL is required"))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, errors.New("PROVIDER_API_KEY is required"))
	}
	if c.Provider.ConnectionID == "" {
		errs = append(errs, errors.New("PROVIDER_CONNECTION_ID is required"))
	}
	if c.Provider.FromNumber == "" {
		errs = append(errs, errors.New("PROVIDER_FROM_NUMBER is required"))
	}

	if c.Bridge.DialTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("BRIDGE_DIAL_TIMEOUT_SECONDS must be positive, got %d", c.Bridge.DialTimeoutSeconds))
	}
	if c.Bridge.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("BRIDGE_MAX_CONCURRENT_CALLS must not be negative, got %d", c.Bridge.MaxConcurrentCalls))
	}
	switch c.Bridge.RecordingFormat {
	case "mp3", "wav":
	default:
		errs = append(errs, fmt.Errorf("RECORDING_FORMAT must be mp3 or wav, got %q", c.Bridge.RecordingFormat))
	}
	switch c.Bridge.RecordingChannels {
	case "single", "dual":
	default:
		errs = append(errs, fmt.Errorf("RECORDING_CHANNELS must be single or dual, got %q", c.Bridge.RecordingChannels))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func intOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func stringOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func boolOr(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
