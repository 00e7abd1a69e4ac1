// Package config provides runner configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/command-runner/pkg/messaging"
)

const logPrefix = "config:LoadConfig"

// Config holds command-runner configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"command-runner"`

	// Peer identity overrides (empty = take from the deployment manifest)
	PeerID    string   `envconfig:"PEER_ID"`
	PeerHosts []string `envconfig:"PEER_HOSTS"`

	// Deployment manifest
	DeploymentFile string `envconfig:"RUNNER_DEPLOYMENT_FILE"`

	// Timeouts. Zero RequestTimeout waits for replies indefinitely.
	RequestTimeout time.Duration `envconfig:"RUNNER_REQUEST_TIMEOUT" default:"0s"`

	// Wire
	WireCodec   string  `envconfig:"WIRE_CODEC" default:"json"`
	IntakeRate  float64 `envconfig:"INTAKE_RATE" default:"0"`
	IntakeBurst int     `envconfig:"INTAKE_BURST" default:"32"`

	// Peers
	PeerDirectorySize     int    `envconfig:"PEER_DIRECTORY_SIZE" default:"1024"`
	PeerVersionConstraint string `envconfig:"PEER_VERSION_CONSTRAINT"`

	// Database. Empty DatabaseURL keeps error records in the log only.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// HTTP introspection endpoint (RUNNER_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"RUNNER_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running a peer.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%s - RUNNER_REQUEST_TIMEOUT must not be negative", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if _, err := messaging.CodecByName(strings.ToLower(c.WireCodec)); err != nil {
		return fmt.Errorf("%s - WIRE_CODEC: %w", logPrefix, err)
	}
	if c.IntakeRate < 0 {
		return fmt.Errorf("%s - INTAKE_RATE must not be negative", logPrefix)
	}
	if c.PeerDirectorySize <= 0 {
		return fmt.Errorf("%s - PEER_DIRECTORY_SIZE must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// Codec returns the configured wire codec.
func (c *Config) Codec() (messaging.Codec, error) {
	return messaging.CodecByName(strings.ToLower(c.WireCodec))
}
