package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Server struct {
		Port            string
		ShutdownTimeout time.Duration
	}
	Mongo struct {
		URI      string
		Database string
	}
	JWT struct {
		Secret string
		Expiry time.Duration
	}
	MQTT struct {
		Broker      string
		ClientID    string
		TopicPrefix string
	}
	Ledger struct {
		IdleDwell     time.Duration
		DecayInterval time.Duration
	}
	Logger struct {
		Level  string
		Format string
	}
	RateLimit struct {
		Requests       int
		Window         time.Duration
		TrustedProxies []string
	}
}

// Load reads an optional .env file and then the environment. A missing file
// is not an error.
func Load(path string) *Config {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("Could not read env file")
		}
	}
	return fromEnv()
}

func fromEnv() *Config {
	cfg := &Config{}

	cfg.Server.Port = GetEnv("PORT", "8080")
	cfg.Server.ShutdownTimeout = GetEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second)

	cfg.Mongo.URI = GetEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.Mongo.Database = GetEnv("MONGO_DB", "fleet_ledger")

	cfg.JWT.Secret = GetEnv("JWT_SECRET", "")
	cfg.JWT.Expiry = GetEnvAsDuration("JWT_EXPIRY", 24*time.Hour)

	cfg.MQTT.Broker = GetEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = GetEnv("MQTT_CLIENT_ID", "fleet-ledger")
	cfg.MQTT.TopicPrefix = GetEnv("MQTT_TOPIC_PREFIX", "fleet/ledger")

	cfg.Ledger.IdleDwell = GetEnvAsDuration("IDLE_DWELL", 15*24*time.Hour)
	cfg.Ledger.DecayInterval = GetEnvAsDuration("DECAY_INTERVAL", 24*time.Hour)

	cfg.Logger.Level = GetEnv("LOG_LEVEL", "info")
	cfg.Logger.Format = GetEnv("LOG_FORMAT", "text")

	cfg.RateLimit.Requests = GetEnvAsInt("RATE_LIMIT_REQUESTS", 100)
	cfg.RateLimit.Window = time.Duration(GetEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	cfg.RateLimit.TrustedProxies = GetEnvAsList("TRUSTED_PROXIES")

	return cfg
}

// SetupLogger applies the configured level and formatter to the standard
// logrus logger.
func (c *Config) SetupLogger() {
	level, err := log.ParseLevel(c.Logger.Level)
	if err != nil {
		log.WithField("level", c.Logger.Level).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvAsList splits a comma-separated variable, dropping empty items.
func GetEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(GetEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warnf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Warnf("Invalid boolean value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}
	return value
}

// GetEnvAsDuration parses values such as "90s" or "360h".
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		log.Warnf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}
