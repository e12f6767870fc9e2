// Package config loads the pipeline's JSON configuration file. Values may
// reference environment variables with $NAME / ${NAME}, expanded before
// parsing, so DSNs and API keys stay out of the file itself.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the full runtime configuration for one deployment.
type Config struct {
	Warehouse Warehouse `json:"warehouse"`
	Sources   Sources   `json:"sources"`
	Runtime   Runtime   `json:"runtime"`
	Metrics   Metrics   `json:"metrics"`
}

// Warehouse selects the target store backend.
type Warehouse struct {
	// Kind is a registered backend: "postgres", "sqlite" or "mssql".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Sources configure the extractors. Empty paths/URLs disable that source; the
// primary sales CSV is the only required one.
type Sources struct {
	SalesCSV        string `json:"sales_csv"`
	CustomersCSV    string `json:"customers_csv"`
	ProductsCSV     string `json:"products_csv"`
	OrderDetailsCSV string `json:"order_details_csv"`

	// Windows1252 marks the CSV exports as legacy windows-1252 encoded.
	Windows1252 bool `json:"windows_1252"`

	SalesAPIURL string `json:"sales_api_url"`

	SourceDBDriver string `json:"source_db_driver"`
	SourceDBDSN    string `json:"source_db_dsn"`

	HTMLReport string `json:"html_report"`
}

// Runtime tunes the engine.
type Runtime struct {
	// BatchSize caps rows per insert statement. Defaults to 1000.
	BatchSize int `json:"batch_size"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is "" (disabled) or "datadog".
	Backend      string `json:"backend"`
	JobName      string `json:"job_name"`
	Tags         string `json:"tags"`
	FlushSeconds int    `json:"flush_seconds"`
}

// Load reads, env-expands and parses the file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the engine cannot run without.
func (c Config) Validate() error {
	if c.Warehouse.Kind == "" {
		return fmt.Errorf("warehouse.kind is required")
	}
	if c.Warehouse.DSN == "" {
		return fmt.Errorf("warehouse.dsn is required")
	}
	if c.Sources.SalesCSV == "" {
		return fmt.Errorf("sources.sales_csv is required")
	}
	if (c.Sources.SourceDBDriver == "") != (c.Sources.SourceDBDSN == "") {
		return fmt.Errorf("sources.source_db_driver and source_db_dsn must be set together")
	}
	switch c.Metrics.Backend {
	case "", "datadog":
	default:
		return fmt.Errorf("metrics.backend %q is not supported", c.Metrics.Backend)
	}
	if c.Runtime.BatchSize < 0 {
		return fmt.Errorf("runtime.batch_size must not be negative")
	}
	return nil
}
