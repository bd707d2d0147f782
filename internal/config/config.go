// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// ServiceConfig holds process-level configuration for the workload launcher.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	// DataplaneID identifies this launcher when claiming workloads and
	// names its queue processing list. Defaults to the hostname.
	DataplaneID string

	RedisAddr         string
	RedisPassword     string
	QueueName         string
	QueueHeartbeatTTL time.Duration // lapsed consumers' deliveries are reclaimed
	Workers           int

	ControlAPIURL   string
	ControlAPIToken string

	FlagFile           string // YAML feature-flag file, empty disables overrides
	FlagReloadInterval time.Duration
	SecretsDir         string // mounted secret volume used to resolve secret references
	Kubeconfig         string // empty uses in-cluster config, then ~/.kube/config

	RetryStateDSN string // optional Postgres DSN; the control API is used when empty
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:               GetEnv("PORT", "8080"),
		MetricsPort:        GetEnv("METRICS_PORT", "9090"),
		APIKey:             GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait:  GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		DataplaneID:        GetEnv("DATAPLANE_ID", defaultDataplaneID()),
		RedisAddr:          GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      GetSecretFile(GetEnv("REDIS_PASSWORD_FILE", "")),
		QueueName:          GetEnv("LAUNCHER_QUEUE", "launch"),
		QueueHeartbeatTTL:  GetDurationEnv("QUEUE_HEARTBEAT_TTL", 30*time.Second),
		Workers:            GetIntEnv("LAUNCHER_WORKERS", 4),
		ControlAPIURL:      GetEnv("CONTROL_API_URL", "http://localhost:8001"),
		ControlAPIToken:    GetSecretFile(GetEnv("CONTROL_API_TOKEN_FILE", "")),
		FlagFile:           GetEnv("FEATURE_FLAG_FILE", ""),
		FlagReloadInterval: GetDurationEnv("FEATURE_FLAG_RELOAD_INTERVAL", 30*time.Second),
		SecretsDir:         GetEnv("SECRETS_DIR", "/var/run/secrets/launcher"),
		Kubeconfig:         GetEnv("KUBECONFIG", ""),
		RetryStateDSN:      GetEnv("RETRY_STATE_DSN", ""),
	}
}

// defaultDataplaneID is the hostname, which survives restarts of the same
// pod or host. A random ID is used only when the hostname is unavailable.
func defaultDataplaneID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}
