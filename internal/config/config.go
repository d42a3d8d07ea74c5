// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, the office geofence,
// attendance timing windows, rate limiting, auth, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avikram/attendance-bot/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "attendance-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// OfficeConfig defines the geofence admission region for check-ins.
type OfficeConfig struct {
	Lat          float64 // OFFICE_LAT
	Lon          float64 // OFFICE_LON
	RadiusMeters float64 // OFFICE_RADIUS_METERS
}

// BotConfig defines Telegram bot transport settings.
type BotConfig struct {
	Token       string        // BOT_TOKEN
	PollTimeout time.Duration // BOT_POLL_TIMEOUT (long-poll wait)
	Backoff     time.Duration // BOT_RECONNECT_BACKOFF between failed polls
	AdminIDs    []int64       // BOT_ADMIN_IDS (csv of Telegram user ids)
}

// AuthConfig defines the admin session token settings.
type AuthConfig struct {
	AdminUsername string        // ADMIN_USERNAME
	AdminPassword string        // ADMIN_PASSWORD
	SecretKey     string        // SECRET_KEY (HS256 signing key)
	TokenTTL      time.Duration // TOKEN_EXPIRE_HOURS
	SingleSession bool          // ALLOW_MULTIPLE_SESSIONS inverted
}

// LimitConfig is one sliding-window rate limit (attempts per window).
type LimitConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath  string // SQLite path
	FaceDir string // root directory of registered reference images
	TempDir string // working directory for downloaded probe photos

	// Attendance timing windows
	MaxPhotoAge    time.Duration // photo message older than this is rejected
	PhotoBindDelay time.Duration // max gap between live location and photo
	PhotoRetention time.Duration // used-photo ledger retention

	// Sliding-window rate limits
	LoginLimit      LimitConfig // admin login per IP
	CheckInLimit    LimitConfig // /checkin per actor
	FaceVerifyLimit LimitConfig // matcher calls per actor

	// Edge rate limiting (HTTP token bucket)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Domain collaborators
	Office     OfficeConfig
	Bot        BotConfig
	Auth       AuthConfig
	MatcherURL string // MATCHER_URL, base URL of the face matcher sidecar

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:  getenv("DB_PATH", "attendance.db"),
		FaceDir: getenv("FACE_DIR", "registered_faces"),
		TempDir: sysutil.FirstNonEmpty(os.Getenv("TEMP_DIR"), os.TempDir()),

		// Attendance timing windows
		MaxPhotoAge:    getdur("MAX_PHOTO_AGE", 60*time.Second),
		PhotoBindDelay: getdur("PHOTO_BIND_DELAY", 30*time.Second),
		PhotoRetention: getdur("PHOTO_RETENTION", 30*24*time.Hour),

		// Sliding-window rate limits
		LoginLimit: LimitConfig{
			MaxAttempts: getint("LOGIN_MAX_ATTEMPTS", 5),
			Window:      getdur("LOGIN_WINDOW", 5*time.Minute),
		},
		CheckInLimit: LimitConfig{
			MaxAttempts: getint("CHECKIN_MAX_ATTEMPTS", 3),
			Window:      getdur("CHECKIN_WINDOW", 5*time.Minute),
		},
		FaceVerifyLimit: LimitConfig{
			MaxAttempts: getint("FACE_VERIFY_MAX_ATTEMPTS", 5),
			Window:      getdur("FACE_VERIFY_WINDOW", 10*time.Minute),
		},

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Domain collaborators
		Office: OfficeConfig{
			Lat:          getfloat("OFFICE_LAT", 26.879208),
			Lon:          getfloat("OFFICE_LON", 81.016411),
			RadiusMeters: getfloat("OFFICE_RADIUS_METERS", 50),
		},
		Bot: BotConfig{
			Token:       getenv("BOT_TOKEN", ""),
			PollTimeout: getdur("BOT_POLL_TIMEOUT", 60*time.Second),
			Backoff:     getdur("BOT_RECONNECT_BACKOFF", 5*time.Second),
			AdminIDs:    splitInt64CSV(getenv("BOT_ADMIN_IDS", "")),
		},
		Auth: AuthConfig{
			AdminUsername: getenv("ADMIN_USERNAME", ""),
			AdminPassword: getenv("ADMIN_PASSWORD", ""),
			SecretKey:     getenv("SECRET_KEY", ""),
			TokenTTL:      time.Duration(getint("TOKEN_EXPIRE_HOURS", 12)) * time.Hour,
			SingleSession: !getbool("ALLOW_MULTIPLE_SESSIONS", false),
		},
		MatcherURL: getenv("MATCHER_URL", "http://localhost:5005"),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "attendance-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.FaceDir) == "" {
		return cfg, errors.New("FACE_DIR must not be empty")
	}
	if cfg.MaxPhotoAge <= 0 || cfg.PhotoBindDelay <= 0 {
		return cfg, errors.New("MAX_PHOTO_AGE and PHOTO_BIND_DELAY must be positive")
	}
	if cfg.PhotoRetention <= 0 {
		return cfg, errors.New("PHOTO_RETENTION must be positive")
	}
	for _, l := range []LimitConfig{cfg.LoginLimit, cfg.CheckInLimit, cfg.FaceVerifyLimit} {
		if l.MaxAttempts < 1 || l.Window <= 0 {
			return cfg, errors.New("rate limits require MaxAttempts >= 1 and a positive window")
		}
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Office.RadiusMeters <= 0 {
		return cfg, errors.New("OFFICE_RADIUS_METERS must be > 0")
	}
	if cfg.Office.Lat < -90 || cfg.Office.Lat > 90 || cfg.Office.Lon < -180 || cfg.Office.Lon > 180 {
		return cfg, errors.New("OFFICE_LAT/OFFICE_LON out of range")
	}
	if strings.TrimSpace(cfg.Auth.SecretKey) == "" {
		return cfg, errors.New("SECRET_KEY must not be empty")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("TOKEN_EXPIRE_HOURS must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- env helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitInt64CSV parses a comma-separated list of integer ids, skipping blanks
// and malformed entries.
func splitInt64CSV(s string) []int64 {
	var out []int64
	for _, p := range splitCSV(s) {
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
