package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	RACC RACCConfig `yaml:"racc"`
}

// RACCConfig is the project configuration.
type RACCConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Generator GeneratorConfig `yaml:"generator"`
	Sigma     SigmaConfig     `yaml:"sigma"`
	SigMap    SigMapConfig    `yaml:"sigmap"`
	Output    OutputConfig    `yaml:"output"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig controls the backing SQL store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres|mysql
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// CacheConfig controls the Redis layout/report cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PipelineConfig controls the bulk import pipeline.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// AnalysisConfig controls relationship detection and coverage.
type AnalysisConfig struct {
	MediumQualityFields int `yaml:"medium_quality_fields"`
	HighQualityFields   int `yaml:"high_quality_fields"`
}

// GeneratorConfig controls alarm synthesis defaults.
type GeneratorConfig struct {
	MinSeverity        int    `yaml:"min_severity"`
	MaxSeverity        int    `yaml:"max_severity"`
	DefaultSeverity    int    `yaml:"default_severity"`
	AssigneeID         int    `yaml:"assignee_id"`
	EscAssigneeID      int    `yaml:"esc_assignee_id"`
	MinVersion         string `yaml:"min_version"`
	ConditionType      int    `yaml:"condition_type"`
	MatchField         string `yaml:"match_field"`
	MaxAlarmNameLength int    `yaml:"max_alarm_name_length"`
	SummaryTemplate    string `yaml:"summary_template"`
}

// SigmaConfig controls the Sigma rule importer.
type SigmaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SigMapConfig controls the signature to event-ID mapping source.
type SigMapConfig struct {
	Path string `yaml:"path"`
}

// OutputConfig controls analysis report sinks.
type OutputConfig struct {
	Mode string           `yaml:"mode"` // file|http
	File FileOutputConfig `yaml:"file"`
	HTTP HTTPOutputConfig `yaml:"http"`
}

// AuditConfig controls the ClickHouse audit trail sink.
type AuditConfig struct {
	Enabled    bool                   `yaml:"enabled"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote report delivery.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
