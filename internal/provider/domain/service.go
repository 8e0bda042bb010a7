package domain

import (
	"context"
)

type ConfigureRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	IsActive *bool  `json:"is_active"`
}

type ConfigSummary struct {
	Provider   string `json:"provider"`
	IsActive   bool   `json:"is_active"`
	Configured bool   `json:"configured"`
}

// Service manages provider credentials and hands out ready adapters.
type Service interface {
	Configure(ctx context.Context, req ConfigureRequest) (*ConfigSummary, error)
	ListConfigs(ctx context.Context) ([]ConfigSummary, error)

	// Adapter returns the named provider's adapter with decrypted
	// credentials applied.
	Adapter(ctx context.Context, provider string) (Adapter, error)

	// FetchSchema resolves through the default provider.
	FetchSchema(ctx context.Context, providerModel, version string) ([]byte, string, error)
}
