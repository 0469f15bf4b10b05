package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultOfferedTimes = "09:00,09:30,10:00,10:30,11:00,11:30,12:00,12:30," +
	"14:00,14:30,15:00,15:30,16:00,16:30,17:00,17:30,18:00"

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	AuthMode            string        `mapstructure:"AUTH_MODE"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	AppointmentStore    string        `mapstructure:"APPOINTMENT_STORE"`
	ClinicTimezone      string        `mapstructure:"CLINIC_TIMEZONE"`
	ClinicOfferedTimes  string        `mapstructure:"CLINIC_OFFERED_TIMES"`
	ClinicName          string        `mapstructure:"CLINIC_NAME"`
	ClinicAddress       string        `mapstructure:"CLINIC_ADDRESS"`
	ClinicPhone         string        `mapstructure:"CLINIC_PHONE"`
	BookingStrictSlots  bool          `mapstructure:"BOOKING_STRICT_SLOTS"`
	BookingMaxDaysAhead int           `mapstructure:"BOOKING_MAX_DAYS_AHEAD"`
	ClockAPIURL         string        `mapstructure:"CLOCK_API_URL"`
	ClockTimeout        time.Duration `mapstructure:"CLOCK_TIMEOUT"`
	ClockSyncTTL        time.Duration `mapstructure:"CLOCK_SYNC_TTL"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	FirebaseProjectID   string        `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseCredentials string        `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	KafkaBrokers        string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTopicPrefix    string        `mapstructure:"KAFKA_TOPIC_PREFIX"`
	ReminderInterval    time.Duration `mapstructure:"REMINDER_INTERVAL"`
	OTelEnabled         bool          `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint        string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSamplingRatio   float64       `mapstructure:"OTEL_SAMPLING_RATIO"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV when empty
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("APPOINTMENT_STORE", "postgres")
	v.SetDefault("CLINIC_TIMEZONE", "America/Mexico_City")
	v.SetDefault("CLINIC_OFFERED_TIMES", DefaultOfferedTimes)
	v.SetDefault("CLINIC_NAME", "Clínica Dental Infantil")
	v.SetDefault("BOOKING_STRICT_SLOTS", false)
	v.SetDefault("BOOKING_MAX_DAYS_AHEAD", 60)
	v.SetDefault("CLOCK_API_URL", "https://worldtimeapi.org/api/timezone")
	v.SetDefault("CLOCK_TIMEOUT", "3s")
	v.SetDefault("CLOCK_SYNC_TTL", "5m")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("KAFKA_TOPIC_PREFIX", "clinic")
	v.SetDefault("REMINDER_INTERVAL", "1h")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)
	v.SetDefault("CORS_ORIGINS", "http://localhost:4200")
	v.SetDefault("REQUEST_TIMEOUT", "15s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"APPOINTMENT_STORE", "CLINIC_TIMEZONE", "CLINIC_OFFERED_TIMES",
		"CLINIC_NAME", "CLINIC_ADDRESS", "CLINIC_PHONE",
		"BOOKING_STRICT_SLOTS", "BOOKING_MAX_DAYS_AHEAD",
		"CLOCK_API_URL", "CLOCK_TIMEOUT", "CLOCK_SYNC_TTL",
		"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
		"FIREBASE_PROJECT_ID", "FIREBASE_CREDENTIALS_FILE",
		"REDIS_URL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"KAFKA_BROKERS", "KAFKA_TOPIC_PREFIX", "REMINDER_INTERVAL",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO",
		"CORS_ORIGINS", "REQUEST_TIMEOUT",
	} {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.ResolvedAuthMode() == "development" {
		log.Println("WARNING: DevAuthMiddleware is active: identities come from X-Dev-User / X-Dev-Role headers.")
		log.Println("WARNING: Set ENV=production and AUTH_MODE=jwt or AUTH_MODE=firebase outside local development.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise:
//   - ENV=development       → "development"
//   - FIREBASE_PROJECT_ID   → "firebase"
//   - otherwise             → "jwt"
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	if c.FirebaseProjectID != "" {
		return "firebase"
	}
	return "jwt"
}

// OfferedTimes splits CLINIC_OFFERED_TIMES into trimmed HH:MM entries,
// preserving the configured order.
func (c *Config) OfferedTimes() []string {
	var out []string
	for _, s := range strings.Split(c.ClinicOfferedTimes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// KafkaBrokerList splits KAFKA_BROKERS on commas. Empty means publishing is off.
func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks that the configuration is consistent enough to start.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed when ENV=production")
		}
	case "jwt":
		if c.AuthIssuer == "" && c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when AUTH_MODE is \"jwt\"")
		}
	case "firebase":
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID must be set when AUTH_MODE is \"firebase\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\", \"jwt\", or \"firebase\", got %q", mode)
	}

	switch c.AppointmentStore {
	case "postgres", "memory":
	case "firestore":
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID must be set when APPOINTMENT_STORE is \"firestore\"")
		}
	default:
		return fmt.Errorf("APPOINTMENT_STORE must be \"postgres\", \"firestore\", or \"memory\", got %q", c.AppointmentStore)
	}

	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}

	offered := c.OfferedTimes()
	if len(offered) == 0 {
		return fmt.Errorf("CLINIC_OFFERED_TIMES must list at least one HH:MM time")
	}
	for _, t := range offered {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("CLINIC_OFFERED_TIMES contains invalid time %q", t)
		}
	}

	if c.BookingMaxDaysAhead <= 0 {
		return fmt.Errorf("BOOKING_MAX_DAYS_AHEAD must be positive, got %d", c.BookingMaxDaysAhead)
	}
	if c.OTelSamplingRatio < 0 || c.OTelSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0,1], got %v", c.OTelSamplingRatio)
	}

	return nil
}
