package source

import (
	"testing"

	"MedMonitor/internal/config"
)

func TestBuildStrategyJSONWithHTMLFallback(t *testing.T) {
	t.Parallel()

	cfg := config.SourceConfig{
		ID:       "proc-gd",
		Type:     config.TypeProcurementJSON,
		Enabled:  true,
		PageSize: 20,
		Primary:  jsonEndpoint("https://api.example.cn/list"),
		Fallback: func() *config.EndpointConfig {
			e := htmlEndpoint()
			return &e
		}(),
	}

	strategy, err := BuildStrategy(cfg)
	if err != nil {
		t.Fatalf("BuildStrategy: %v", err)
	}
	if _, ok := strategy.Primary.(*JSONAPIAdapter); !ok {
		t.Fatalf("unexpected primary adapter: %T", strategy.Primary)
	}
	if _, ok := strategy.Fallback.(*HTMLListAdapter); !ok {
		t.Fatalf("unexpected fallback adapter: %T", strategy.Fallback)
	}
}

func TestBuildStrategyRejectsUnknownType(t *testing.T) {
	t.Parallel()

	cfg := config.SourceConfig{
		ID:      "bad",
		Type:    "carrier-pigeon",
		Primary: jsonEndpoint("https://api.example.cn/list"),
	}
	if _, err := BuildStrategy(cfg); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestBuildStrategyRejectsInvalidEndpoint(t *testing.T) {
	t.Parallel()

	endpoint := htmlEndpoint()
	endpoint.ItemSelector = ""

	cfg := config.SourceConfig{
		ID:      "broken-html",
		Type:    config.TypeGenericHTML,
		Primary: endpoint,
	}
	if _, err := BuildStrategy(cfg); err == nil {
		t.Fatal("expected an endpoint validation error")
	}
}
