package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "guildhost.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "GUILDHOST_PORT")
	setString(&cfg.Server.CORSOrigin, "GUILDHOST_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "GUILDHOST_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "GUILDHOST_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "GUILDHOST_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "GUILDHOST_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "GUILDHOST_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "GUILDHOST_LOG_LEVEL")
	setString(&cfg.Logging.Service, "GUILDHOST_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "GUILDHOST_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "GUILDHOST_BREAKER_TIMEOUT")

	// Control plane
	setString(&cfg.ControlPlane.Dialect, "GUILDHOST_PANEL_DIALECT")
	setString(&cfg.ControlPlane.BaseURL, "GUILDHOST_PANEL_URL")
	setString(&cfg.ControlPlane.APIKey, "GUILDHOST_PANEL_API_KEY")
	setDuration(&cfg.ControlPlane.Timeout, "GUILDHOST_PANEL_TIMEOUT")
	setDuration(&cfg.ControlPlane.ReadyWait, "GUILDHOST_PANEL_READY_WAIT")
	setString(&cfg.ControlPlane.ParentIdentifier, "GUILDHOST_PANEL_PARENT")
	setInt(&cfg.ControlPlane.NodeID, "GUILDHOST_PANEL_NODE_ID")
	setInt(&cfg.ControlPlane.BlueprintID, "GUILDHOST_PANEL_BLUEPRINT_ID")
	setInt(&cfg.ControlPlane.AccountID, "GUILDHOST_PANEL_ACCOUNT_ID")
	setString(&cfg.ControlPlane.DockerImage, "GUILDHOST_PANEL_DOCKER_IMAGE")

	// Discord
	setString(&cfg.Discord.WebhookURL, "GUILDHOST_DISCORD_WEBHOOK")

	// Scaling
	setDuration(&cfg.Scaling.Interval, "GUILDHOST_SCALING_INTERVAL")
	setInt64(&cfg.Scaling.MaxConcurrent, "GUILDHOST_SCALING_MAX_CONCURRENT")
	setInt(&cfg.Scaling.ScaleUpWindow, "GUILDHOST_SCALING_UP_WINDOW")
	setInt(&cfg.Scaling.ScaleDownWindow, "GUILDHOST_SCALING_DOWN_WINDOW")
	setFloat64(&cfg.Scaling.HighMemory, "GUILDHOST_SCALING_HIGH_MEMORY")
	setFloat64(&cfg.Scaling.HighCPU, "GUILDHOST_SCALING_HIGH_CPU")
	setFloat64(&cfg.Scaling.HighDisk, "GUILDHOST_SCALING_HIGH_DISK")
	setFloat64(&cfg.Scaling.LowThreshold, "GUILDHOST_SCALING_LOW_THRESHOLD")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.ControlPlane.BaseURL == "" {
		return errors.New("control_plane.base_url is required")
	}
	switch cfg.ControlPlane.Dialect {
	case "subserver":
		if cfg.ControlPlane.ParentIdentifier == "" {
			return errors.New("control_plane.parent_identifier is required for the subserver dialect")
		}
	case "standalone":
		if cfg.ControlPlane.NodeID == 0 || cfg.ControlPlane.BlueprintID == 0 {
			return errors.New("control_plane.node_id and control_plane.blueprint_id are required for the standalone dialect")
		}
	default:
		return fmt.Errorf("control_plane.dialect must be \"subserver\" or \"standalone\", got %q", cfg.ControlPlane.Dialect)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Scaling.ScaleUpWindow < 1 || cfg.Scaling.ScaleDownWindow < cfg.Scaling.ScaleUpWindow {
		return errors.New("scaling windows must satisfy 1 <= scale_up_window <= scale_down_window")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
