package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// APNs configuration
	APNsCertPath     string
	APNsCertPassword string
	APNsTopic        string
	APNsProduction   bool

	// Geofence configuration
	GeofenceBufferMeters float64

	// Queue configuration
	PositionCacheTTL       time.Duration
	SummaryRefreshInterval time.Duration
	RecentsLimit           int
	NotifyPositionCutoff   int

	// Cleanup configuration
	CleanupInterval  time.Duration
	InactiveQueueTTL time.Duration

	// Rate limiting
	JoinRateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// APNs
		APNsCertPath:     getEnv("APNS_CERT_PATH", ""),
		APNsCertPassword: getEnv("APNS_CERT_PASSWORD", ""),
		APNsTopic:        getEnv("APNS_TOPIC", "com.radius.app"),
		APNsProduction:   getEnvAsBool("APNS_PRODUCTION", false),

		// Geofence
		GeofenceBufferMeters: getEnvAsFloat("GEOFENCE_BUFFER_METERS", 10),

		// Queue
		PositionCacheTTL:       getEnvAsDuration("POSITION_CACHE_TTL", "15s"),
		SummaryRefreshInterval: getEnvAsDuration("SUMMARY_REFRESH_INTERVAL", "30s"),
		RecentsLimit:           getEnvAsInt("RECENTS_LIMIT", 10),
		NotifyPositionCutoff:   getEnvAsInt("NOTIFY_POSITION_CUTOFF", 5),

		// Cleanup
		CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", "1h"),
		InactiveQueueTTL: getEnvAsDuration("INACTIVE_QUEUE_TTL", "1h"),

		// Rate limiting
		JoinRateLimitPerMinute: getEnvAsInt("JOIN_RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
