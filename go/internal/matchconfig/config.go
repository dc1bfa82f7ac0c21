package matchconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/m-maciver/split-the-g/go/internal/match/coordinator"
	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/outbox"
	"github.com/m-maciver/split-the-g/go/internal/match/ratelimit"
	"github.com/m-maciver/split-the-g/go/internal/match/session"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the matchmaking server settings.
type Config struct {
	Port     string
	LogLevel string

	Preroll           time.Duration
	ActivityDuration  time.Duration
	ResultDeadline    time.Duration
	GracePeriod       time.Duration
	MaxSessionAge     time.Duration
	ReapInterval      time.Duration
	RatePurgeInterval time.Duration

	MaxArtifactBytes int
	MaxMessageBytes  int64

	RateRules map[ratelimit.Category]ratelimit.Rule

	NATSURL           string
	NATSStream        string
	NATSSubjectPrefix string

	ICEServers     []events.ICEServer
	ICEServersFile string
}

// NewConfigFromEnv reads the environment (with defaults).
func NewConfigFromEnv() Config {
	rules := session.DefaultRules()
	defaults := coordinator.DefaultConfig()
	js := outbox.DefaultJetStreamConfig()

	cfg := Config{
		Port:     getEnv("MATCH_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Preroll:           getEnvAsDuration("PREROLL", rules.Preroll),
		ActivityDuration:  getEnvAsDuration("ACTIVITY_DURATION", rules.ActivityDuration),
		ResultDeadline:    getEnvAsDuration("RESULT_DEADLINE", rules.ResultDeadline),
		GracePeriod:       getEnvAsDuration("GRACE_PERIOD", defaults.GracePeriod),
		MaxSessionAge:     getEnvAsDuration("MAX_SESSION_AGE", defaults.MaxSessionAge),
		ReapInterval:      getEnvAsDuration("REAP_INTERVAL", defaults.ReapInterval),
		RatePurgeInterval: getEnvAsDuration("RATE_PURGE_INTERVAL", defaults.RatePurgeInterval),

		MaxArtifactBytes: getEnvAsInt("MAX_ARTIFACT_BYTES", rules.MaxArtifactBytes),
		MaxMessageBytes:  int64(getEnvAsInt("MAX_MESSAGE_BYTES", 3<<20)),

		RateRules: make(map[ratelimit.Category]ratelimit.Rule),

		NATSURL:           getEnv("NATS_URL", ""),
		NATSStream:        getEnv("NATS_STREAM", js.StreamName),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", js.SubjectPrefix),

		ICEServers:     iceServersFromEnv(),
		ICEServersFile: getEnv("ICE_SERVERS_FILE", ""),
	}

	for cat, rule := range ratelimit.DefaultRules() {
		prefix := "RATE_" + envName(cat)
		cfg.RateRules[cat] = ratelimit.Rule{
			Max:    getEnvAsInt(prefix+"_MAX", rule.Max),
			Window: getEnvAsDuration(prefix+"_WINDOW", rule.Window),
		}
	}

	return cfg
}

// Validate rejects non-positive durations and limits
func (c Config) Validate() error {
	durations := map[string]time.Duration{
		"PREROLL":             c.Preroll,
		"ACTIVITY_DURATION":   c.ActivityDuration,
		"RESULT_DEADLINE":     c.ResultDeadline,
		"GRACE_PERIOD":        c.GracePeriod,
		"MAX_SESSION_AGE":     c.MaxSessionAge,
		"REAP_INTERVAL":       c.ReapInterval,
		"RATE_PURGE_INTERVAL": c.RatePurgeInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, name, d)
		}
	}
	if c.MaxArtifactBytes <= 0 {
		return fmt.Errorf("%w: MAX_ARTIFACT_BYTES must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageBytes < int64(c.MaxArtifactBytes) {
		return fmt.Errorf("%w: MAX_MESSAGE_BYTES must be at least MAX_ARTIFACT_BYTES", ErrInvalidConfig)
	}
	for cat, rule := range c.RateRules {
		if rule.Max <= 0 || rule.Window <= 0 {
			return fmt.Errorf("%w: rate limit for %s must have a positive max and window", ErrInvalidConfig, cat)
		}
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("%w: MATCH_PORT %q is not a number", ErrInvalidConfig, c.Port)
	}
	return nil
}

// Addr is the listen address
func (c Config) Addr() string {
	return ":" + c.Port
}

// Coordinator converts the settings into coordinator configuration
func (c Config) Coordinator() coordinator.Config {
	rules := session.DefaultRules()
	rules.Preroll = c.Preroll
	rules.ActivityDuration = c.ActivityDuration
	rules.ResultDeadline = c.ResultDeadline
	rules.MaxArtifactBytes = c.MaxArtifactBytes

	cfg := coordinator.DefaultConfig()
	cfg.Rules = rules
	cfg.GracePeriod = c.GracePeriod
	cfg.MaxSessionAge = c.MaxSessionAge
	cfg.ReapInterval = c.ReapInterval
	cfg.RatePurgeInterval = c.RatePurgeInterval
	cfg.RateRules = c.RateRules
	cfg.ICEServers = c.ICEServers
	return cfg
}

// JetStream returns the outbox publisher settings
func (c Config) JetStream() outbox.JetStreamConfig {
	js := outbox.DefaultJetStreamConfig()
	js.URL = c.NATSURL
	js.StreamName = c.NATSStream
	js.SubjectPrefix = c.NATSSubjectPrefix
	return js
}

// envName turns "queue-join" into "QUEUE_JOIN"
func envName(cat ratelimit.Category) string {
	return strings.ToUpper(strings.ReplaceAll(string(cat), "-", "_"))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
