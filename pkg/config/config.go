// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Postgres, Kafka, Redis, Analysis, Parties, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Parties  PartyConfig    `yaml:"parties"`
	Access   AccessConfig   `yaml:"access"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StoreConfig selects the database that holds both the vote tables and the
// published analytics artifacts.
type StoreConfig struct {
	Driver            string `yaml:"driver"`
	SQLitePath        string `yaml:"sqlitePath"`
	SnapshotRetention int    `yaml:"snapshotRetention"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RecomputeRequests string `yaml:"recomputeRequests"`
	SnapshotPublished string `yaml:"snapshotPublished"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalysisConfig controls matrix filtering, the decomposition and the size of
// the derived issue rankings.
type AnalysisConfig struct {
	MinVotesPerLegislator int           `yaml:"minVotesPerLegislator"`
	MinVotersPerIssue     int           `yaml:"minVotersPerIssue"`
	Components            int           `yaml:"components"`
	Iterations            int           `yaml:"iterations"`
	Tolerance             float64       `yaml:"tolerance"`
	Epsilon               float64       `yaml:"epsilon"`
	TopIssuesPerAxis      int           `yaml:"topIssuesPerAxis"`
	QuestionnaireSize     int           `yaml:"questionnaireSize"`
	RecomputeInterval     time.Duration `yaml:"recomputeInterval"`
	FallbackTimeout       time.Duration `yaml:"fallbackTimeout"`
}

// PartyConfig holds the canonical party table and the voter minimums used by
// the agreement and cohesion tables.
type PartyConfig struct {
	MinMajorityVoters int          `yaml:"minMajorityVoters"`
	MinCohesionVoters int          `yaml:"minCohesionVoters"`
	Groups            []PartyGroup `yaml:"groups"`
}

// PartyGroup is one canonical party. Groups are listed left to right.
type PartyGroup struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// AccessConfig shapes the HTTP API for browsers and shared deployments.
// Routes that compute on demand (projection, live coordinates, recompute) are
// limited to RateLimit requests per client per RateLimitWindow; zero disables
// limiting.
type AccessConfig struct {
	CORSOrigins     []string      `yaml:"corsOrigins"`
	RateLimit       int           `yaml:"rateLimit"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:            DriverPostgres,
			SQLitePath:        "data/analytics.db",
			SnapshotRetention: 5,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "rollcall",
			User:            "rollcall",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "voting-analytics",
			Topics: KafkaTopics{
				RecomputeRequests: "analytics.recompute-requests",
				SnapshotPublished: "analytics.snapshot-published",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Analysis: AnalysisConfig{
			MinVotesPerLegislator: 20,
			MinVotersPerIssue:     10,
			Components:            3,
			Iterations:            100,
			Tolerance:             1e-12,
			Epsilon:               1e-9,
			TopIssuesPerAxis:      5,
			QuestionnaireSize:     20,
		},
		Parties: PartyConfig{
			MinMajorityVoters: 1,
			MinCohesionVoters: 3,
			Groups:            DefaultPartyGroups(),
		},
		Access: AccessConfig{
			CORSOrigins:     []string{"*"},
			RateLimit:       60,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// DefaultPartyGroups returns the European Parliament political groups, left
// to right, with the historical labels they have been published under.
func DefaultPartyGroups() []PartyGroup {
	return []PartyGroup{
		{Code: "LEFT", Name: "The Left", Aliases: []string{"GUE/NGL", "GUE-NGL", "The Left", "European United Left"}},
		{Code: "SD", Name: "Socialists and Democrats", Aliases: []string{"S&D", "S-D", "PSE", "Socialists and Democrats", "Party of European Socialists"}},
		{Code: "GREENS", Name: "Greens/European Free Alliance", Aliases: []string{"Greens/EFA", "Verts/ALE", "Greens", "European Free Alliance"}},
		{Code: "RENEW", Name: "Renew Europe", Aliases: []string{"Renew", "ALDE", "Renew Europe", "Liberals and Democrats"}},
		{Code: "EPP", Name: "European People's Party", Aliases: []string{"EPP", "PPE", "EPP-ED", "European People's Party"}},
		{Code: "ECR", Name: "European Conservatives and Reformists", Aliases: []string{"ECR", "European Conservatives"}},
		{Code: "PFE", Name: "Patriots for Europe", Aliases: []string{"PfE", "Patriots", "ID", "Identity and Democracy", "ENF"}},
		{Code: "ESN", Name: "Europe of Sovereign Nations", Aliases: []string{"ESN", "Sovereign Nations", "EFDD"}},
		{Code: "NI", Name: "Non-attached Members", Aliases: []string{"NI", "Non-attached", "Non-inscrits"}},
	}
}

// Validate rejects settings the analytics engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Store.Driver))
	}
	if c.Store.Driver == DriverSQLite && strings.TrimSpace(c.Store.SQLitePath) == "" {
		errs = append(errs, errors.New("store.sqlitePath is required for the sqlite driver"))
	}
	if c.Store.SnapshotRetention < 1 {
		errs = append(errs, errors.New("store.snapshotRetention must be at least 1"))
	}
	a := c.Analysis
	if a.Components < 1 {
		errs = append(errs, errors.New("analysis.components must be at least 1"))
	}
	if a.Iterations < 1 {
		errs = append(errs, errors.New("analysis.iterations must be at least 1"))
	}
	if a.Tolerance < 0 || a.Epsilon <= 0 {
		errs = append(errs, errors.New("analysis.tolerance must be >= 0 and analysis.epsilon > 0"))
	}
	if a.MinVotesPerLegislator < 0 || a.MinVotersPerIssue < 0 {
		errs = append(errs, errors.New("analysis vote thresholds must not be negative"))
	}
	if a.TopIssuesPerAxis < 0 || a.QuestionnaireSize < 0 {
		errs = append(errs, errors.New("analysis issue list sizes must not be negative"))
	}
	if c.Access.RateLimit < 0 || c.Access.RateLimitWindow < 0 {
		errs = append(errs, errors.New("access rate limit settings must not be negative"))
	}
	if len(c.Parties.Groups) == 0 {
		errs = append(errs, errors.New("parties.groups must list at least one group"))
	}
	seen := make(map[string]bool, len(c.Parties.Groups))
	for _, g := range c.Parties.Groups {
		if strings.TrimSpace(g.Code) == "" {
			errs = append(errs, errors.New("parties.groups entries need a code"))
			continue
		}
		if seen[g.Code] {
			errs = append(errs, fmt.Errorf("parties.groups lists %q twice", g.Code))
		}
		seen[g.Code] = true
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads VPA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VPA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VPA_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("VPA_STORE_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("VPA_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("VPA_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("VPA_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("VPA_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("VPA_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("VPA_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("VPA_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("VPA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VPA_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("VPA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("VPA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("VPA_ANALYSIS_MIN_VOTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MinVotesPerLegislator = n
		}
	}
	if v := os.Getenv("VPA_ANALYSIS_COMPONENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Components = n
		}
	}
	if v := os.Getenv("VPA_ACCESS_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Access.RateLimit = n
		}
	}
	if v := os.Getenv("VPA_ACCESS_CORS_ORIGINS"); v != "" {
		cfg.Access.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("VPA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VPA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
