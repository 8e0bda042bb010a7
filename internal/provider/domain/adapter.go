package domain

import (
	"context"
	"net/http"
)

// Status is the provider-neutral prediction state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// MapStatus folds a provider's raw status vocabulary onto the neutral one.
// Unknown values map to queued so a new upstream state never finalizes a job.
func MapStatus(raw string) Status {
	switch raw {
	case "starting", "processing", "running":
		return StatusRunning
	case "succeeded":
		return StatusSucceeded
	case "failed", "canceled", "cancelled":
		return StatusFailed
	default:
		return StatusQueued
	}
}

type SubmitRequest struct {
	// ProviderModel is the upstream reference in owner/name form.
	ProviderModel string
	Version       string
	Input         map[string]any

	// WebhookURL receives the terminal result. When empty the adapter asks
	// the provider to answer synchronously.
	WebhookURL string
}

type Submission struct {
	ProviderJobID string
	Status        Status

	// Output carries the result URLs for synchronous submissions.
	Output []string
	Error  string
}

type AdapterConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Adapter is one provider integration.
type Adapter interface {
	Provider() string
	FetchSchema(ctx context.Context, providerModel, version string) (schema []byte, resolvedVersion string, err error)
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)
	Cancel(ctx context.Context, providerJobID string) error
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}
