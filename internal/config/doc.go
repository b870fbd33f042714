// Package config provides centralized configuration management for the
// research toolkit. It handles loading configuration from multiple sources,
// validation, and the workspace path layout shared by every binary.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration file (config.yaml)
//	3. Built-in defaults (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern RESEARCH_* for namespacing:
//
//	RESEARCH_SERVER_PORT=8080
//	RESEARCH_DATA_BASE_DIR=/srv/research
//	RESEARCH_ENRICHMENT_SYMBOL_PREFIX=LE
//	RESEARCH_COT_MIN_DTE=25
//	RESEARCH_LOGGING_LEVEL=info
//
// # Path Management
//
// The package provides centralized path management through the Paths type,
// which lays out the workspace under a single base directory (the executable
// directory unless data.base_dir is configured):
//
//	paths, err := cfg.ResolvePaths()
//	barsDir := paths.FuturesDir
//	enriched := paths.EnrichedCSV("true_open")
//
// # Validation
//
// Configuration is validated at load time with struct tags
// (go-playground/validator) plus explicit checks; the logging section is
// normalized to structured JSON output.
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
