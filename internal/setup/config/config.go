package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidRetention      = errors.New("retention stable size must be below its max size")
)

// Current version of the config files.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the API and the workers.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	Retry      Retry      `koanf:"retry"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	API        API        `koanf:"api"`
	Scoring    Scoring    `koanf:"scoring"`
}

// WorkerConfig contains worker specific configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Retention limits of the bounded logs.
	Retention Retention `koanf:"retention"`
	// Batch sizes for pruning jobs.
	BatchSizes BatchSizes `koanf:"batch_sizes"`
	// Intervals between pruning runs.
	Intervals Intervals `koanf:"intervals"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines kept in each log file.
	MaxLogLines int `koanf:"max_log_lines"`
}

// Retry contains retry configuration for database operations.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
	// Maximum optimistic transaction attempts against the realtime store.
	MaxTransactionAttempts int `koanf:"max_transaction_attempts"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Disable TLS.
	Insecure bool `koanf:"insecure"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// API contains configuration of the callable HTTP surface.
type API struct {
	// Listen host.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Expose Prometheus metrics at /metrics.
	EnableMetrics bool `koanf:"enable_metrics"`
}

// Scoring contains the tunables of the scoring formulas.
type Scoring struct {
	// Impressions below which a single flag is amplified.
	MinImpressionsForBaseRisk float64 `koanf:"min_impressions_for_base_risk"`
	// Clean impressions after the last flag needed for full healing.
	HealingThresholdImpressions float64 `koanf:"healing_threshold_impressions"`
	// Days after the last flag needed for full healing.
	HealingPeriodDays float64 `koanf:"healing_period_days"`
	// Window of days over which the flag rate is measured.
	MaxFlagRelevancyDays float64 `koanf:"max_flag_relevancy_days"`
	// Decay constant in days of the risk score since the last flag.
	DecayHalfLifeDays float64 `koanf:"decay_half_life_days"`
	// Days without flags after which a low-risk source starts a fresh episode.
	MaxDaysBeforeChurn float64 `koanf:"max_days_before_churn"`
	// Minimum change of a taste score before it is persisted.
	TasteScoreDeltaThreshold float64 `koanf:"taste_score_delta_threshold"`
}

// Retention contains the max/stable sizes of the bounded logs.
type Retention struct {
	MaxRecentActivity       int64 `koanf:"max_recent_activity"`
	StableRecentActivity    int64 `koanf:"stable_recent_activity"`
	MaxTopicCommentCount    int64 `koanf:"max_topic_comment_count"`
	StableTopicCommentCount int64 `koanf:"stable_topic_comment_count"`
	MaxNotificationCount    int64 `koanf:"max_notification_count"`
	// Notifications deleted below the max on each prune, so max minus this many remain.
	StableNotificationCount int64 `koanf:"stable_notification_count"`
}

// BatchSizes configures how many units each pruning pass processes.
type BatchSizes struct {
	// Number of users pruned per recent activity batch.
	PruneActivityUsers int `koanf:"prune_activity_users"`
	// Number of topics pruned per topic comment batch.
	PruneTopics int `koanf:"prune_topics"`
	// Number of users pruned per notification batch.
	PruneNotificationUsers int `koanf:"prune_notification_users"`
	// Maximum units pruned concurrently.
	PruneConcurrency int `koanf:"prune_concurrency"`
}

// Intervals configures the schedule of the pruning jobs in minutes.
type Intervals struct {
	RecentActivity int `koanf:"recent_activity"`
	TopicComments  int `koanf:"topic_comments"`
	Notifications  int `koanf:"notifications"`
}

// LoadConfig loads the configuration from the config search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".marginalia",
		homeDir + "/.marginalia/config",
		"/etc/marginalia/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, configName := range []string{"common", "worker"} {
		loaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				loaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !loaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	config, err := parse(k)
	if err != nil {
		return nil, "", err
	}

	return config, usedConfigPath, nil
}

// LoadFile loads the configuration from explicit common and worker files.
func LoadFile(commonPath, workerPath string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range []string{commonPath, workerPath} {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	return parse(k)
}

func parse(k *koanf.Koanf) (*Config, error) {
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Worker.Retention.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf("%w: %s.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, name, current, expected)
	}

	return nil
}

func (r Retention) validate() error {
	pairs := []struct {
		name        string
		max, stable int64
	}{
		{"recent activity", r.MaxRecentActivity, r.StableRecentActivity},
		{"topic comments", r.MaxTopicCommentCount, r.StableTopicCommentCount},
		{"notifications", r.MaxNotificationCount, r.StableNotificationCount},
	}

	for _, p := range pairs {
		if p.stable <= 0 || p.stable >= p.max {
			return fmt.Errorf("%w: %s (max %d, stable %d)", ErrInvalidRetention, p.name, p.max, p.stable)
		}
	}

	return nil
}
