// Package config provides 12-factor configuration management for the engine.
//
// Configuration is loaded from environment variables with sensible defaults;
// metered-provider credentials load separately from a YAML seed file.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Circuit: failure threshold and open-state cooldown
//   - Retry: provider-level retry/backoff for metered strategy clients
//   - Tracker: rolling attempt-log retention
//   - Cost: ledger retention window and entry cap
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting configuration
//   - Providers: credential seed file location
//
// Environment Variables:
//   - PORT, HOST
//   - CIRCUIT_FAILURE_THRESHOLD, CIRCUIT_TIMEOUT_MS
//   - RETRY_MAX_ATTEMPTS, RETRY_BACKOFF_MS, RETRY_MAX_BACKOFF_MS
//   - TRACKER_MAX_RETENTION
//   - COST_RETENTION_DAYS, COST_MAX_ENTRIES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - CREDENTIALS_FILE
package config
