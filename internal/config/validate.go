package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.GlobalCap < 1 {
		return fmt.Errorf("engine.global_cap must be >= 1, got %d", cfg.Engine.GlobalCap)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.BrowserTimeout <= 0 {
		return fmt.Errorf("engine.browser_timeout must be > 0")
	}
	if err := validateRange("engine.request_delay", cfg.Engine.RequestDelayMin, cfg.Engine.RequestDelayMax); err != nil {
		return err
	}
	if err := validateRange("engine.item_delay", cfg.Engine.ItemDelayMin, cfg.Engine.ItemDelayMax); err != nil {
		return err
	}
	if err := validateRange("engine.source_delay", cfg.Engine.SourceDelayMin, cfg.Engine.SourceDelayMax); err != nil {
		return err
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Browser.MaxElements < 1 {
		return fmt.Errorf("browser.max_elements must be >= 1, got %d", cfg.Browser.MaxElements)
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.APISource.BatchSize < 1 {
		return fmt.Errorf("api_source.batch_size must be >= 1, got %d", cfg.APISource.BatchSize)
	}
	if cfg.APISource.RatePerSecond <= 0 {
		return fmt.Errorf("api_source.rate_per_second must be > 0")
	}

	sources, err := cfg.ResolvedSources()
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	for i, src := range sources {
		if err := validateSource(src); err != nil {
			return fmt.Errorf("sources[%d] (%s): %w", i, src.DisplayName, err)
		}
	}

	validStorageTypes := map[string]bool{
		"sqlite": true, "postgres": true, "mongodb": true, "json": true, "csv": true, "multi": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: sqlite, postgres, mongodb, json, csv, multi)", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "multi" {
		if len(cfg.Storage.Backends) == 0 {
			return fmt.Errorf("storage.backends must list at least one backend for type multi")
		}
		for _, b := range cfg.Storage.Backends {
			if b == "multi" || !validStorageTypes[b] {
				return fmt.Errorf("storage.backends: unsupported backend %q", b)
			}
		}
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

func validateRange(key string, min, max time.Duration) error {
	if min < 0 || max < 0 {
		return fmt.Errorf("%s_min/%s_max must be >= 0", key, key)
	}
	if min > max {
		return fmt.Errorf("%s_min (%s) must not exceed %s_max (%s)", key, min, key, max)
	}
	return nil
}

func validateSource(src types.SourceSpec) error {
	if _, err := types.ParseAcquisitionKind(string(src.AcquisitionKind)); err != nil {
		return err
	}
	if _, err := types.ParseDocumentShape(string(src.Shape)); err != nil {
		return err
	}
	if src.PerSourceCap < 1 {
		return fmt.Errorf("per_source_cap must be >= 1, got %d", src.PerSourceCap)
	}
	if src.Category == "" {
		return fmt.Errorf("category must be set")
	}
	return ValidateURL(src.EntryURL)
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
