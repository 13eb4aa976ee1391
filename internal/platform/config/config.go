package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the registry service.
type Server struct {
	Addr         string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string
	AuditTopic   string

	// SequenceWidth is the fixed zero-padded width of the sequence segment.
	// Changing it in an existing deployment changes every code the service
	// mints, so it is configuration, not a request parameter.
	SequenceWidth int

	// ReservationTTL is the default hold duration when a caller does not
	// supply one.
	ReservationTTL time.Duration

	// SweepInterval is how often overdue reservations are expired.
	SweepInterval time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:           getEnv("SERIAL_REGISTRY_ADDR", ":8080"),
		PostgresDSN:    os.Getenv("SERIAL_REGISTRY_POSTGRES_DSN"),
		RedisAddr:      os.Getenv("SERIAL_REGISTRY_REDIS_ADDR"),
		KafkaBrokers:   os.Getenv("SERIAL_REGISTRY_KAFKA_BROKERS"),
		AuditTopic:     getEnv("SERIAL_REGISTRY_AUDIT_TOPIC", "serial-registry.audit"),
		SequenceWidth:  getEnvInt("SERIAL_REGISTRY_SEQUENCE_WIDTH", 6),
		ReservationTTL: getEnvDuration("SERIAL_REGISTRY_RESERVATION_TTL", 15*time.Minute),
		SweepInterval:  getEnvDuration("SERIAL_REGISTRY_SWEEP_INTERVAL", time.Minute),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
