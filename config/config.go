package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort       string
	JWTSecret     string
	TokenTTLHours int
	// Database
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// OAuth
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectBase  string
	// HTTP
	RateLimitPerMinute    int
	AllowedOrigins        []string
	BackendTimeoutSeconds int
	MaxAudioBytes         int64
	AutoSignInAfterSignup bool
	// Sign-up throttling per client IP; zero disables.
	SignupCooldownSeconds int
	SignupMaxPerIPPerDay  int
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis for caching, token blacklist and sessions. Empty host disables Redis.
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Calendar days for streaks and heat-maps; empty means the server zone.
	Timezone string
	// Object storage
	StorageDriver           string
	LocalStorageDir         string
	StorageSigningKey       string
	PublicBaseURL           string
	S3Bucket                string
	S3Region                string
	S3Endpoint              string
	S3Prefix                string
	S3UsePathStyle          bool
	GCSBucket               string
	GCSPrefix               string
	SignedURLTTLSeconds     int
	ListSignedURLTTLSeconds int
	// Session cache
	SessionStore      string
	SessionSQLitePath string
	SessionTTLHours   int
	SessionIdleMins   int
	ToastSweepSeconds int
	// Prompts and transcoding
	PromptsFile string
	FFmpegPath  string
}

var (
	mu     sync.RWMutex
	cfg    AppConfig
	loaded bool
)

// groups lets config.json keep the grouped layout ("app", "database", ...).
var groups = []string{"app", "database", "redis", "log", "gin", "oauth", "storage", "session"}

// envNames maps keys to the environment variables that override them. The
// VOICEBLOOM_ name wins over the bare legacy name.
var envNames = map[string][]string{
	"AppPort":                 {"VOICEBLOOM_APP_PORT", "APP_PORT"},
	"JWTSecret":               {"VOICEBLOOM_JWT_SECRET", "JWT_SECRET"},
	"TokenTTLHours":           {"VOICEBLOOM_TOKEN_TTL_HOURS"},
	"DatabaseURI":             {"VOICEBLOOM_DATABASE_URI", "DATABASE_URI"},
	"DBHost":                  {"VOICEBLOOM_DB_HOST", "DB_HOST"},
	"DBPort":                  {"VOICEBLOOM_DB_PORT", "DB_PORT"},
	"DBUser":                  {"VOICEBLOOM_DB_USER", "DB_USER"},
	"DBPassword":              {"VOICEBLOOM_DB_PASSWORD", "DB_PASSWORD"},
	"DBName":                  {"VOICEBLOOM_DB_NAME", "DB_NAME"},
	"GitHubClientID":          {"VOICEBLOOM_GITHUB_CLIENT_ID", "GITHUB_CLIENT_ID"},
	"GitHubClientSecret":      {"VOICEBLOOM_GITHUB_CLIENT_SECRET", "GITHUB_CLIENT_SECRET"},
	"GoogleClientID":          {"VOICEBLOOM_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID"},
	"GoogleClientSecret":      {"VOICEBLOOM_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET"},
	"OAuthRedirectBase":       {"VOICEBLOOM_OAUTH_REDIRECT_BASE_URL", "OAUTH_REDIRECT_BASE_URL"},
	"RateLimitPerMinute":      {"VOICEBLOOM_RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_PER_MINUTE"},
	"AllowedOrigins":          {"VOICEBLOOM_CORS_ALLOWED_ORIGINS", "CORS_ALLOWED_ORIGINS"},
	"BackendTimeoutSeconds":   {"VOICEBLOOM_BACKEND_TIMEOUT_SECONDS"},
	"MaxAudioBytes":           {"VOICEBLOOM_MAX_AUDIO_BYTES"},
	"AutoSignInAfterSignup":   {"VOICEBLOOM_AUTO_SIGNIN_AFTER_SIGNUP"},
	"SignupCooldownSeconds":   {"VOICEBLOOM_SIGNUP_COOLDOWN_SECONDS"},
	"SignupMaxPerIPPerDay":    {"VOICEBLOOM_SIGNUP_MAX_PER_IP_PER_DAY"},
	"GinMode":                 {"VOICEBLOOM_GIN_MODE", "GIN_MODE"},
	"GinPath":                 {"VOICEBLOOM_GIN_PATH", "GIN_PATH", "GIN_LOG_PATH"},
	"RedisHost":               {"VOICEBLOOM_REDIS_HOST", "REDIS_HOST"},
	"RedisPort":               {"VOICEBLOOM_REDIS_PORT", "REDIS_PORT"},
	"RedisDB":                 {"VOICEBLOOM_REDIS_DB", "REDIS_DB"},
	"RedisPassword":           {"VOICEBLOOM_REDIS_PASSWORD", "REDIS_PASSWORD"},
	"LogLevel":                {"VOICEBLOOM_LOG_LEVEL", "LOG_LEVEL"},
	"LogPath":                 {"VOICEBLOOM_LOG_PATH", "LOG_PATH"},
	"LogMaxSizeMB":            {"VOICEBLOOM_LOG_MAX_SIZE_MB", "LOG_MAX_SIZE_MB"},
	"LogMaxBackups":           {"VOICEBLOOM_LOG_MAX_BACKUPS", "LOG_MAX_BACKUPS"},
	"LogMaxAgeDays":           {"VOICEBLOOM_LOG_MAX_AGE_DAYS", "LOG_MAX_AGE_DAYS"},
	"LogCompress":             {"VOICEBLOOM_LOG_COMPRESS", "LOG_COMPRESS"},
	"Timezone":                {"VOICEBLOOM_TIMEZONE", "TZ_NAME"},
	"StorageDriver":           {"VOICEBLOOM_STORAGE_DRIVER"},
	"LocalStorageDir":         {"VOICEBLOOM_LOCAL_STORAGE_DIR"},
	"StorageSigningKey":       {"VOICEBLOOM_STORAGE_SIGNING_KEY"},
	"PublicBaseURL":           {"VOICEBLOOM_PUBLIC_BASE_URL"},
	"S3Bucket":                {"VOICEBLOOM_S3_BUCKET"},
	"S3Region":                {"VOICEBLOOM_S3_REGION", "AWS_REGION"},
	"S3Endpoint":              {"VOICEBLOOM_S3_ENDPOINT"},
	"S3Prefix":                {"VOICEBLOOM_S3_PREFIX"},
	"S3UsePathStyle":          {"VOICEBLOOM_S3_USE_PATH_STYLE"},
	"GCSBucket":               {"VOICEBLOOM_GCS_BUCKET"},
	"GCSPrefix":               {"VOICEBLOOM_GCS_PREFIX"},
	"SignedURLTTLSeconds":     {"VOICEBLOOM_SIGNED_URL_TTL_SECONDS"},
	"ListSignedURLTTLSeconds": {"VOICEBLOOM_LIST_SIGNED_URL_TTL_SECONDS"},
	"SessionStore":            {"VOICEBLOOM_SESSION_STORE"},
	"SessionSQLitePath":       {"VOICEBLOOM_SESSION_SQLITE_PATH"},
	"SessionTTLHours":         {"VOICEBLOOM_SESSION_TTL_HOURS"},
	"SessionIdleMins":         {"VOICEBLOOM_SESSION_IDLE_MINUTES"},
	"ToastSweepSeconds":       {"VOICEBLOOM_TOAST_SWEEP_SECONDS"},
	"PromptsFile":             {"VOICEBLOOM_PROMPTS_FILE"},
	"FFmpegPath":              {"VOICEBLOOM_FFMPEG_PATH", "FFMPEG_PATH"},
}

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()

	// Precedence: config/config.json -> defaults -> environment variable overrides
	c, err := LoadFrom(filepath.Join("config", "config.json"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}
	Set(c)
	return c
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()
	return Load()
}

// Set replaces the cached configuration.
func Set(c AppConfig) {
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}

// LoadFrom reads path (a missing file is not an error), applies defaults and
// environment overrides.
func LoadFrom(path string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	for key, names := range envNames {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return AppConfig{}, fmt.Errorf("read %s: %w", path, err)
			}
			for _, g := range groups {
				if sub := v.GetStringMap(g); len(sub) > 0 {
					if err := v.MergeConfigMap(sub); err != nil {
						return AppConfig{}, fmt.Errorf("merge %s section: %w", g, err)
					}
				}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, err
		}
	}

	c := AppConfig{
		AppPort:                 v.GetString("AppPort"),
		JWTSecret:               v.GetString("JWTSecret"),
		TokenTTLHours:           v.GetInt("TokenTTLHours"),
		DatabaseURI:             v.GetString("DatabaseURI"),
		DBHost:                  v.GetString("DBHost"),
		DBPort:                  v.GetString("DBPort"),
		DBUser:                  v.GetString("DBUser"),
		DBPassword:              v.GetString("DBPassword"),
		DBName:                  v.GetString("DBName"),
		GitHubClientID:          v.GetString("GitHubClientID"),
		GitHubClientSecret:      v.GetString("GitHubClientSecret"),
		GoogleClientID:          v.GetString("GoogleClientID"),
		GoogleClientSecret:      v.GetString("GoogleClientSecret"),
		OAuthRedirectBase:       v.GetString("OAuthRedirectBase"),
		RateLimitPerMinute:      v.GetInt("RateLimitPerMinute"),
		AllowedOrigins:          readList(v, "AllowedOrigins"),
		BackendTimeoutSeconds:   v.GetInt("BackendTimeoutSeconds"),
		MaxAudioBytes:           v.GetInt64("MaxAudioBytes"),
		AutoSignInAfterSignup:   v.GetBool("AutoSignInAfterSignup"),
		SignupCooldownSeconds:   v.GetInt("SignupCooldownSeconds"),
		SignupMaxPerIPPerDay:    v.GetInt("SignupMaxPerIPPerDay"),
		GinMode:                 v.GetString("GinMode"),
		GinPath:                 v.GetString("GinPath"),
		RedisHost:               v.GetString("RedisHost"),
		RedisPort:               v.GetInt("RedisPort"),
		RedisDB:                 v.GetInt("RedisDB"),
		RedisPassword:           v.GetString("RedisPassword"),
		LogLevel:                v.GetString("LogLevel"),
		LogPath:                 v.GetString("LogPath"),
		LogMaxSizeMB:            v.GetInt("LogMaxSizeMB"),
		LogMaxBackups:           v.GetInt("LogMaxBackups"),
		LogMaxAgeDays:           v.GetInt("LogMaxAgeDays"),
		LogCompress:             v.GetBool("LogCompress"),
		Timezone:                v.GetString("Timezone"),
		StorageDriver:           strings.ToLower(v.GetString("StorageDriver")),
		LocalStorageDir:         v.GetString("LocalStorageDir"),
		StorageSigningKey:       v.GetString("StorageSigningKey"),
		PublicBaseURL:           strings.TrimRight(v.GetString("PublicBaseURL"), "/"),
		S3Bucket:                v.GetString("S3Bucket"),
		S3Region:                v.GetString("S3Region"),
		S3Endpoint:              v.GetString("S3Endpoint"),
		S3Prefix:                v.GetString("S3Prefix"),
		S3UsePathStyle:          v.GetBool("S3UsePathStyle"),
		GCSBucket:               v.GetString("GCSBucket"),
		GCSPrefix:               v.GetString("GCSPrefix"),
		SignedURLTTLSeconds:     v.GetInt("SignedURLTTLSeconds"),
		ListSignedURLTTLSeconds: v.GetInt("ListSignedURLTTLSeconds"),
		SessionStore:            strings.ToLower(v.GetString("SessionStore")),
		SessionSQLitePath:       v.GetString("SessionSQLitePath"),
		SessionTTLHours:         v.GetInt("SessionTTLHours"),
		SessionIdleMins:         v.GetInt("SessionIdleMins"),
		ToastSweepSeconds:       v.GetInt("ToastSweepSeconds"),
		PromptsFile:             v.GetString("PromptsFile"),
		FFmpegPath:              v.GetString("FFmpegPath"),
	}
	if c.StorageSigningKey == "" {
		c.StorageSigningKey = c.JWTSecret
	}
	return c, nil
}

// setDefaults sets sane defaults for zero-value fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("AppPort", "8080")
	v.SetDefault("TokenTTLHours", 72)
	v.SetDefault("DBHost", "127.0.0.1")
	v.SetDefault("DBPort", "3306")
	v.SetDefault("DBUser", "root")
	v.SetDefault("DBName", "voicebloom")
	v.SetDefault("OAuthRedirectBase", "http://localhost:8080")
	v.SetDefault("RateLimitPerMinute", 60)
	v.SetDefault("AllowedOrigins", []string{"*"})
	v.SetDefault("BackendTimeoutSeconds", 15)
	v.SetDefault("MaxAudioBytes", 25<<20)
	v.SetDefault("AutoSignInAfterSignup", true)
	v.SetDefault("SignupCooldownSeconds", 3)
	v.SetDefault("SignupMaxPerIPPerDay", 20)
	v.SetDefault("GinMode", "release")
	v.SetDefault("GinPath", "logs/go_gin.log")
	v.SetDefault("RedisPort", 6379)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogMaxSizeMB", 100)
	v.SetDefault("LogMaxBackups", 3)
	v.SetDefault("LogMaxAgeDays", 7)
	v.SetDefault("StorageDriver", "local")
	v.SetDefault("LocalStorageDir", "data/recordings")
	v.SetDefault("PublicBaseURL", "http://localhost:8080")
	v.SetDefault("SignedURLTTLSeconds", 3600)
	v.SetDefault("ListSignedURLTTLSeconds", 60)
	v.SetDefault("SessionStore", "memory")
	v.SetDefault("SessionSQLitePath", "data/sessions.db")
	v.SetDefault("SessionTTLHours", 24*7)
	v.SetDefault("SessionIdleMins", 30)
	v.SetDefault("ToastSweepSeconds", 1)
	v.SetDefault("FFmpegPath", "ffmpeg")
}

// readList accepts either a JSON array or a comma separated env value.
func readList(v *viper.Viper, key string) []string {
	items := []string{}
	for _, raw := range v.GetStringSlice(key) {
		for _, item := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}

// Location resolves Timezone; "" and "Local" mean the server zone.
func (c AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c AppConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c AppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

func (c AppConfig) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLSeconds) * time.Second
}

func (c AppConfig) ListSignedURLTTL() time.Duration {
	return time.Duration(c.ListSignedURLTTLSeconds) * time.Second
}

func (c AppConfig) SignupCooldown() time.Duration {
	return time.Duration(c.SignupCooldownSeconds) * time.Second
}

// SessionIdle is how long an unused session cache stays in memory.
func (c AppConfig) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMins) * time.Minute
}

func (c AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}
