// Package config wires the gate process: environment variables for
// deployment concerns, a YAML policy profile for everything an operator
// tunes. A missing profile falls back to compiled defaults so the gate
// always starts fail-closed rather than not at all.
package config

import "os"

// Config holds process configuration.
type Config struct {
	LogLevel      string
	QueueDBPath   string
	AuditDBPath   string
	ProfilePath   string
	JWTSecret     string
	OTLPEndpoint  string
	Observability bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	queueDB := os.Getenv("OPSGATE_QUEUE_DB")
	if queueDB == "" {
		queueDB = "opsgate_queue.db"
	}

	auditDB := os.Getenv("OPSGATE_AUDIT_DB")
	if auditDB == "" {
		auditDB = "opsgate_audit.db"
	}

	return &Config{
		LogLevel:      logLevel,
		QueueDBPath:   queueDB,
		AuditDBPath:   auditDB,
		ProfilePath:   os.Getenv("OPSGATE_PROFILE"),
		JWTSecret:     os.Getenv("OPSGATE_JWT_SECRET"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Observability: os.Getenv("OPSGATE_OBSERVABILITY") == "true",
	}
}
