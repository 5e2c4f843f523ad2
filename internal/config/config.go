package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"whiteboardAPI/internal/types/policy"
)

type Config struct {
	AppEnv   string `validate:"oneof=development production test"`
	LogLevel string `validate:"oneof=debug info warn error"`
	Port     string `validate:"required,numeric"`

	ClerkSecretKey string
	DatabaseURL    string
	RedisURL       string
	InstanceID     string `validate:"required"`
	PublicBaseURL  string `validate:"required,url"`

	// base64 service account JSON; takes precedence over FCMCredentialsFile
	FCMServiceAccountJSON string
	FCMCredentialsFile    string
	MetricsUser           string
	MetricsPass           string
	PprofSecret           string

	// user ids that moderate every session in addition to the session host
	ModeratorIDs []string

	Moderation        policy.Config
	ModerationWorkers int           `validate:"min=1,max=64"`
	ModerationQueue   int           `validate:"min=1"`
	ModerationTimeout time.Duration `validate:"gt=0"`
	SweepInterval     time.Duration `validate:"gt=0"`

	VoteThreshold float64 `validate:"gt=0,lte=1"`

	// per websocket client inbound message rate
	ClientMessagesPerSecond float64 `validate:"gt=0"`
	ClientMessageBurst      int     `validate:"min=1"`
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var errs []string
	cfg := Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Port:               getEnv("PORT", "3333"),
		ClerkSecretKey:     os.Getenv("CLERK_SECRET_KEY"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		InstanceID:         getEnv("INSTANCE_ID", uuid.NewString()),
		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		MetricsUser:        os.Getenv("METRICS_USER"),
		MetricsPass:        os.Getenv("METRICS_PASS"),
		PprofSecret:        os.Getenv("PPROF_SECRET"),
		ModeratorIDs:       splitList(os.Getenv("MODERATOR_IDS")),
	}
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", "http://localhost:"+cfg.Port)
	cfg.FCMServiceAccountJSON = os.Getenv("FCM_SERVICE_ACCOUNT_JSON")

	cfg.Moderation = policy.Config{
		Enabled:         parseBool("MODERATION_ENABLED", true, &errs),
		AutoModerate:    parseBool("MODERATION_AUTO", true, &errs),
		Sensitivity:     parseInt("MODERATION_SENSITIVITY", policy.DefaultSensitivity, &errs),
		CustomBlocklist: splitList(os.Getenv("MODERATION_BLOCKLIST")),
		CustomAllowlist: splitList(os.Getenv("MODERATION_ALLOWLIST")),
	}
	cfg.ModerationWorkers = parseInt("MODERATION_WORKERS", 4, &errs)
	cfg.ModerationQueue = parseInt("MODERATION_QUEUE_SIZE", 256, &errs)
	cfg.ModerationTimeout = parseDuration("MODERATION_TIMEOUT", 2*time.Second, &errs)
	cfg.SweepInterval = parseDuration("MODERATION_SWEEP_INTERVAL", 30*time.Second, &errs)
	cfg.VoteThreshold = parseFloat("VOTE_THRESHOLD", 0.5, &errs)
	cfg.ClientMessagesPerSecond = parseFloat("WS_MESSAGES_PER_SECOND", 60, &errs)
	cfg.ClientMessageBurst = parseInt("WS_MESSAGE_BURST", 120, &errs)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) IsProduction() bool { return c.AppEnv == "production" }

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(key string, fallback bool, errs *[]string) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return v
}

func parseInt(key string, fallback int, errs *[]string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return v
}

func parseFloat(key string, fallback float64, errs *[]string) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return v
}

func parseDuration(key string, fallback time.Duration, errs *[]string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return v
}
