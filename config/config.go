package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the askdb system.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Databases DatabasesConfig `mapstructure:"databases"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Server    ServerConfig    `mapstructure:"server"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig describes the chat-completions provider used for planning,
// query generation and summarization.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CostPer1K      float64       `mapstructure:"cost_per_1k_input"`
	CostPer1KOut   float64       `mapstructure:"cost_per_1k_output"`
	DefaultOperand string        `mapstructure:"default_operand"` // operand for bare accumulators like "$sum"
}

// DatabasesConfig holds connection settings for the analyzed datasources
// and the internal run store.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"db_name"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// MCPConfig points the agent at the SQL and Mongo tool servers. Each entry
// is either an SSE URL ("http://...") or a command line to spawn a stdio
// server ("askdb-sqlmcp --stdio").
type MCPConfig struct {
	SQLServer   string `mapstructure:"sql_server"`
	MongoServer string `mapstructure:"mongo_server"`
}

// AgentConfig bounds the orchestrator.
type AgentConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
	SubTaskTimeout     time.Duration `mapstructure:"subtask_timeout"`
	SchemaSampleSize   int           `mapstructure:"schema_sample_size"`
	MaxResultRows      int           `mapstructure:"max_result_rows"`
}

// ReportsConfig controls where HTML reports and chart images land.
type ReportsConfig struct {
	Dir       string `mapstructure:"dir"`
	ExportPDF bool   `mapstructure:"export_pdf"`
	IndexPath string `mapstructure:"index_path"` // bleve index directory
}

// ServerConfig contains the ops HTTP API settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ScheduleConfig controls the recurring-analysis scheduler.
type ScheduleConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// LoadConfig reads configuration from a file (yaml) plus ASKDB_* env
// overrides. An empty path searches the working directory and ./config.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "120s")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("databases.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("databases.redis.ttl", "10m")
	v.SetDefault("mcp.sql_server", "http://localhost:8000")
	v.SetDefault("mcp.mongo_server", "http://localhost:8001")
	v.SetDefault("agent.max_concurrent_tasks", 5)
	v.SetDefault("agent.subtask_timeout", "90s")
	v.SetDefault("agent.schema_sample_size", 100)
	v.SetDefault("agent.max_result_rows", 100)
	v.SetDefault("reports.dir", "reports")
	v.SetDefault("reports.index_path", "reports/.index")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("schedule.tick_interval", "1m")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ASKDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults are enough for
		// the common single-machine setup.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
