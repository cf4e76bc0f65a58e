// Package config handles the loading, parsing, and validation of application
// configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// OBSConfig addresses and authenticates against the scene compositor.
type OBSConfig struct {
	Host       string `validate:"required"`
	Port       int    `validate:"required,gt=0"`
	Password   string
	SceneName  string `validate:"required"`
	SourceName string `validate:"required"`
	Width      int    `validate:"required,gt=0"`
	Height     int    `validate:"required,gt=0"`
}

// PlayerConfig points at the browser-source page the compositor renders.
type PlayerConfig struct {
	URL string `validate:"required,url"`
}

// TwitchConfig holds the platform client identity.
type TwitchConfig struct {
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	RedirectURL  string `validate:"required,url"`
}

// ShoutoutConfig controls the `!so`/`!shoutout` command.
type ShoutoutConfig struct {
	MessageTemplate    string `validate:"required"`
	FeaturedFirst      bool
	MaxMessageLen      int           `validate:"required,gt=0"`
	MaxClipAge         time.Duration `validate:"required,gt=0"`
	MaxClipLength      time.Duration `validate:"required,gt=0"`
	Enabled            bool
	SendChatMessage    bool
	SendNativeShoutout bool
}

// ClipSearchConfig controls clip lookup and the moderator-approval gate.
type ClipSearchConfig struct {
	SearchWindowDays       int      `validate:"required,gt=0"`
	FuzzyMatchThreshold    float64  `validate:"gte=0,lte=1"`
	RequireApproval        bool
	ApprovalTimeoutSeconds int      `validate:"required,gt=0"`
	ExemptRoles            []string
}

// ChatFeedbackConfig controls outgoing status messages to chat.
type ChatFeedbackConfig struct {
	Enabled           bool
	RateLimit         time.Duration `validate:"gte=0"`
	ShowApprovalState bool
}

// UpdateConfig is parsed but currently inert: the update checker itself is
// out of scope for the core.
type UpdateConfig struct {
	CheckerRepo string
	Interval    time.Duration
}

// AppConfig holds all configuration settings for the application.
type AppConfig struct {
	// --- Core Settings ---
	ServerAddr       string `validate:"required"` // diagnostics HTTP listen address.
	APIEncryptionKey string `validate:"required"`  // passphrase feeding the token store's key derivation.

	OBS          OBSConfig          `validate:"required"`
	Player       PlayerConfig       `validate:"required"`
	Twitch       TwitchConfig       `validate:"required"`
	Shoutout     ShoutoutConfig     `validate:"required"`
	ClipSearch   ClipSearchConfig   `validate:"required"`
	ChatFeedback ChatFeedbackConfig
	Update       UpdateConfig

	// --- Timeouts and Intervals ---
	HTTPClientTimeout  time.Duration `validate:"required,gt=0"`
	ShutdownTimeout    time.Duration `validate:"required,gt=0"`
	ReconnectMaxDelay  time.Duration `validate:"required,gt=0"`
	HealthCheckPeriod  time.Duration `validate:"required,gt=0"`
	TokenLookaheadLead time.Duration `validate:"required,gt=0"`
}

var validate = validator.New()

// Load reads environment variables (optionally from a local .env file) and
// populates the AppConfig struct, then validates it.
func Load() (*AppConfig, error) {
	// godotenv is best-effort: absence of a .env file is not an error.
	_ = godotenv.Load()

	exemptRoles := strings.Split(getEnv("CLIPSEARCH_EXEMPT_ROLES", "broadcaster,moderator"), ",")
	for i := range exemptRoles {
		exemptRoles[i] = strings.TrimSpace(exemptRoles[i])
	}

	cfg := &AppConfig{
		ServerAddr:       getEnv("SERVER_ADDR", "127.0.0.1:8080"),
		APIEncryptionKey: getEnv("API_ENCRYPTION_KEY", ""),

		OBS: OBSConfig{
			Host:       getEnv("OBS_HOST", "localhost"),
			Port:       getEnvAsInt("OBS_PORT", 4455),
			Password:   getEnv("OBS_PASSWORD", ""),
			SceneName:  getEnv("OBS_SCENE_NAME", "ClipPlayback"),
			SourceName: getEnv("OBS_SOURCE_NAME", "ClipPlayer"),
			Width:      getEnvAsInt("OBS_WIDTH", 1920),
			Height:     getEnvAsInt("OBS_HEIGHT", 1080),
		},
		Player: PlayerConfig{
			URL: getEnv("PLAYER_URL", ""),
		},
		Twitch: TwitchConfig{
			ClientID:     getEnv("TWITCH_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITCH_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("TWITCH_REDIRECT_URL", "http://localhost:8080/oauth/callback"),
		},
		Shoutout: ShoutoutConfig{
			MessageTemplate:    getEnv("SHOUTOUT_MESSAGE_TEMPLATE", "Go check out @{channel}, {broadcaster} was last seen playing {game}!"),
			FeaturedFirst:      getEnvAsBool("SHOUTOUT_FEATURED_FIRST", true),
			MaxMessageLen:      getEnvAsInt("SHOUTOUT_MAX_MESSAGE_LEN", 500),
			MaxClipAge:         getEnvAsDuration("SHOUTOUT_MAX_CLIP_AGE", 90*24*time.Hour),
			MaxClipLength:      getEnvAsDuration("SHOUTOUT_MAX_CLIP_LENGTH", 60*time.Second),
			Enabled:            getEnvAsBool("SHOUTOUT_ENABLED", true),
			SendChatMessage:    getEnvAsBool("SHOUTOUT_SEND_CHAT_MESSAGE", true),
			SendNativeShoutout: getEnvAsBool("SHOUTOUT_SEND_NATIVE", true),
		},
		ClipSearch: ClipSearchConfig{
			SearchWindowDays:       getEnvAsInt("CLIPSEARCH_WINDOW_DAYS", 30),
			FuzzyMatchThreshold:    getEnvAsFloat("CLIPSEARCH_FUZZY_THRESHOLD", 0.6),
			RequireApproval:        getEnvAsBool("CLIPSEARCH_REQUIRE_APPROVAL", true),
			ApprovalTimeoutSeconds: getEnvAsInt("CLIPSEARCH_APPROVAL_TIMEOUT_SECONDS", 60),
			ExemptRoles:            exemptRoles,
		},
		ChatFeedback: ChatFeedbackConfig{
			Enabled:           getEnvAsBool("CHATFEEDBACK_ENABLED", true),
			RateLimit:         getEnvAsDuration("CHATFEEDBACK_RATE_LIMIT", 3*time.Second),
			ShowApprovalState: getEnvAsBool("CHATFEEDBACK_SHOW_APPROVAL_STATE", true),
		},
		Update: UpdateConfig{
			CheckerRepo: getEnv("UPDATE_CHECKER_REPO", ""),
			Interval:    getEnvAsDuration("UPDATE_CHECK_INTERVAL", 24*time.Hour),
		},

		HTTPClientTimeout:  getEnvAsDuration("HTTP_CLIENT_TIMEOUT", 15*time.Second),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ReconnectMaxDelay:  getEnvAsDuration("RECONNECT_MAX_DELAY", 60*time.Second),
		HealthCheckPeriod:  getEnvAsDuration("HEALTH_CHECK_PERIOD", time.Minute),
		TokenLookaheadLead: getEnvAsDuration("TOKEN_LOOKAHEAD_LEAD", 10*time.Minute),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// --- Helper functions for robust environment variable loading ---

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return duration
	}
	return defaultValue
}
