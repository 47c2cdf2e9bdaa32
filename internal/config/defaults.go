package config

import common "github.com/bobmcallan/elida-portal/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "prod",
		Server: ServerConfig{
			Port: 4251,
			Host: "localhost",
		},
		API: APIConfig{
			URL:            "http://localhost:8000",
			Timeout:        "30s",
			AnalyzeTimeout: "300s",
			QuoteTTL:       "15m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/elida",
			},
		},
		Scan: ScanConfig{
			PollInterval: "2s",
			MaxBackoff:   "30s",
			MaxAttempts:  5,
		},
		Logging: common.LoggingConfig{
			Level:      "info",
			Outputs:    []string{"console", "file"},
			FilePath:   "logs/elida.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}
