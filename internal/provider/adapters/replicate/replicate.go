package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/artline/internal/provider/domain"
)

const defaultBaseURL = "https://api.replicate.com"

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Provider() string { return domain.Replicate }

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &Adapter{apiKey: cfg.APIKey, baseURL: baseURL, client: client}, nil
}

// Adapter talks to the Replicate HTTP API.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func (a *Adapter) Provider() string { return domain.Replicate }

type versionPayload struct {
	ID            string          `json:"id"`
	OpenAPISchema json.RawMessage `json:"openapi_schema"`
}

type modelPayload struct {
	LatestVersion *versionPayload `json:"latest_version"`
}

// FetchSchema loads the OpenAPI schema for a model. With an empty version
// the model's latest version is used and its id returned.
func (a *Adapter) FetchSchema(ctx context.Context, providerModel, version string) ([]byte, string, error) {
	owner, name, refVersion, err := splitModelRef(providerModel)
	if err != nil {
		return nil, "", err
	}
	if version == "" {
		version = refVersion
	}

	if version != "" {
		var payload versionPayload
		url := fmt.Sprintf("%s/v1/models/%s/%s/versions/%s", a.baseURL, owner, name, version)
		if err := a.getJSON(ctx, url, &payload); err != nil {
			return nil, "", err
		}
		if len(payload.OpenAPISchema) == 0 {
			return nil, "", domain.ErrSchemaFetch
		}
		return payload.OpenAPISchema, payload.ID, nil
	}

	var payload modelPayload
	url := fmt.Sprintf("%s/v1/models/%s/%s", a.baseURL, owner, name)
	if err := a.getJSON(ctx, url, &payload); err != nil {
		return nil, "", err
	}
	if payload.LatestVersion == nil || len(payload.LatestVersion.OpenAPISchema) == 0 {
		return nil, "", domain.ErrSchemaFetch
	}
	return payload.LatestVersion.OpenAPISchema, payload.LatestVersion.ID, nil
}

type predictionRequest struct {
	Version             string         `json:"version,omitempty"`
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Submit creates a prediction. With a webhook URL the provider calls back on
// completion; without one the request asks Replicate to wait for the result.
func (a *Adapter) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Submission, error) {
	owner, name, refVersion, err := splitModelRef(req.ProviderModel)
	if err != nil {
		return nil, err
	}

	version := req.Version
	if version == "" {
		version = refVersion
	}

	body := predictionRequest{Input: req.Input}
	var url string
	if version != "" {
		body.Version = version
		url = a.baseURL + "/v1/predictions"
	} else {
		url = fmt.Sprintf("%s/v1/models/%s/%s/predictions", a.baseURL, owner, name)
	}
	if req.WebhookURL != "" {
		body.Webhook = req.WebhookURL
		body.WebhookEventsFilter = []string{"completed"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	a.setHeaders(httpReq)
	if req.WebhookURL == "" {
		httpReq.Header.Set("Prefer", "wait")
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrSubmitFailed, resp.StatusCode, snippet)
	}

	var pred predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrSubmitFailed, err)
	}
	if pred.ID == "" {
		return nil, fmt.Errorf("%w: missing prediction id", domain.ErrSubmitFailed)
	}

	return &domain.Submission{
		ProviderJobID: pred.ID,
		Status:        domain.MapStatus(pred.Status),
		Output:        ParseOutput(pred.Output),
		Error:         pred.Error,
	}, nil
}

func (a *Adapter) Cancel(ctx context.Context, providerJobID string) error {
	url := fmt.Sprintf("%s/v1/predictions/%s/cancel", a.baseURL, providerJobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	a.setHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("cancel prediction %s: status %d", providerJobID, resp.StatusCode)
	}
	return nil
}

func (a *Adapter) getJSON(ctx context.Context, url string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	a.setHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSchemaFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", domain.ErrSchemaFetch, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Token "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// ParseOutput normalizes a prediction output, which Replicate returns either
// as a single URL string or as a list of URL strings.
func ParseOutput(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		out := make([]string, 0, len(many))
		for _, u := range many {
			if u != "" {
				out = append(out, u)
			}
		}
		return out
	}
	return nil
}

// splitModelRef parses "owner/name" with an optional ":version" suffix.
func splitModelRef(providerModel string) (owner, name, version string, err error) {
	ref := strings.TrimSpace(providerModel)
	if at := strings.IndexByte(ref, ':'); at >= 0 {
		version = ref[at+1:]
		ref = ref[:at]
	}
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid provider model ref %q", providerModel)
	}
	return parts[0], parts[1], version, nil
}
