package source

import (
	"fmt"

	"MedMonitor/internal/collector"
	"MedMonitor/internal/config"
	"MedMonitor/internal/domain"
)

// BuildStrategy resolves a source config into a concrete primary/fallback
// adapter pair. The collector type tag is resolved exactly once here;
// nothing in the pagination loop inspects types at runtime.
func BuildStrategy(cfg config.SourceConfig) (collector.Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return collector.Strategy{}, err
	}

	sourceType := defaultSourceType(cfg)

	primary, err := buildAdapter(cfg, sourceType, cfg.Primary)
	if err != nil {
		return collector.Strategy{}, fmt.Errorf("source %s: primary: %w", cfg.ID, err)
	}

	strategy := collector.Strategy{Primary: primary}
	if cfg.Fallback != nil {
		fallback, err := buildAdapter(cfg, sourceType, *cfg.Fallback)
		if err != nil {
			return collector.Strategy{}, fmt.Errorf("source %s: fallback: %w", cfg.ID, err)
		}
		strategy.Fallback = fallback
	}
	return strategy, nil
}

func buildAdapter(cfg config.SourceConfig, sourceType domain.SourceType, endpoint config.EndpointConfig) (collector.Adapter, error) {
	switch endpoint.Mode {
	case config.ModeJSON:
		return NewJSONAPIAdapter(cfg.ID, sourceType, cfg.Region, cfg.PageSize, endpoint)
	case config.ModeHTML:
		return NewHTMLListAdapter(cfg.ID, sourceType, cfg.Region, cfg.PageSize, endpoint)
	case config.ModeRSS:
		return NewRSSAdapter(cfg.ID, sourceType, cfg.Region, endpoint), nil
	}
	return nil, fmt.Errorf("unknown endpoint mode %q", endpoint.Mode)
}

func defaultSourceType(cfg config.SourceConfig) domain.SourceType {
	if cfg.SourceType != "" {
		return domain.SourceType(cfg.SourceType)
	}
	switch cfg.Type {
	case config.TypeProcurementJSON, config.TypeProcurementHTML:
		return domain.SourceProcurement
	case config.TypeRSS:
		return domain.SourceIndustryMedia
	}
	return domain.SourceIndustryMedia
}
