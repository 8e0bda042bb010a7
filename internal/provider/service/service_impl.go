package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/artline/internal/clock"
	"github.com/smallbiznis/artline/internal/config"
	"github.com/smallbiznis/artline/internal/provider/adapters"
	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Repo     providerdomain.Repository
	Registry *adapters.Registry
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     providerdomain.Repository
	registry *adapters.Registry
	encKey   []byte
}

type encryptedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type providerSecrets struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
}

func New(p Params) providerdomain.Service {
	secret := strings.TrimSpace(p.Cfg.ProviderKeySecret)
	var key []byte
	if secret != "" {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}

	return &Service{
		db:       p.DB,
		log:      p.Log.Named("provider.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		registry: p.Registry,
		encKey:   key,
	}
}

func (s *Service) Configure(ctx context.Context, req providerdomain.ConfigureRequest) (*providerdomain.ConfigSummary, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if !s.registry.ProviderExists(provider) {
		return nil, providerdomain.ErrProviderNotFound
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, providerdomain.ErrInvalidConfig
	}

	encrypted, err := s.encryptSecrets(providerSecrets{
		APIKey:  strings.TrimSpace(req.APIKey),
		BaseURL: strings.TrimSpace(req.BaseURL),
	})
	if err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	now := s.clock.Now()
	cfg := &providerdomain.ProviderConfig{
		ID:        s.genID.Generate(),
		Provider:  provider,
		Config:    encrypted,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, s.db, cfg); err != nil {
		return nil, err
	}

	s.log.Info("provider configured", zap.String("provider", provider), zap.Bool("is_active", active))
	return &providerdomain.ConfigSummary{Provider: provider, IsActive: active, Configured: true}, nil
}

func (s *Service) ListConfigs(ctx context.Context) ([]providerdomain.ConfigSummary, error) {
	configs, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	out := make([]providerdomain.ConfigSummary, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, providerdomain.ConfigSummary{
			Provider:   cfg.Provider,
			IsActive:   cfg.IsActive,
			Configured: len(cfg.Config) > 0,
		})
	}
	return out, nil
}

func (s *Service) Adapter(ctx context.Context, provider string) (providerdomain.Adapter, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	cfg, err := s.repo.FindByProvider(ctx, s.db, provider)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, providerdomain.ErrProviderNotFound
	}
	if !cfg.IsActive {
		return nil, providerdomain.ErrProviderNotActive
	}

	secrets, err := s.decryptSecrets(cfg.Config)
	if err != nil {
		return nil, err
	}

	return s.registry.NewAdapter(provider, providerdomain.AdapterConfig{
		APIKey:  secrets.APIKey,
		BaseURL: secrets.BaseURL,
	})
}

func (s *Service) FetchSchema(ctx context.Context, providerModel, version string) ([]byte, string, error) {
	adapter, err := s.Adapter(ctx, providerdomain.Replicate)
	if err != nil {
		return nil, "", err
	}
	return adapter.FetchSchema(ctx, providerModel, version)
}

func (s *Service) encryptSecrets(secrets providerSecrets) (datatypes.JSON, error) {
	if len(s.encKey) == 0 {
		return nil, providerdomain.ErrEncryptionKeyMissing
	}

	payload, err := json.Marshal(secrets)
	if err != nil {
		return nil, providerdomain.ErrInvalidConfig
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, payload, nil)
	encoded := encryptedPayload{
		Version:    1,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	}
	out, err := json.Marshal(encoded)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

func (s *Service) decryptSecrets(raw datatypes.JSON) (*providerSecrets, error) {
	if len(s.encKey) == 0 {
		return nil, providerdomain.ErrEncryptionKeyMissing
	}

	var encoded encryptedPayload
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, providerdomain.ErrInvalidConfig
	}
	nonce, err := base64.RawStdEncoding.DecodeString(encoded.Nonce)
	if err != nil {
		return nil, providerdomain.ErrInvalidConfig
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(encoded.Ciphertext)
	if err != nil {
		return nil, providerdomain.ErrInvalidConfig
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	payload, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, providerdomain.ErrInvalidConfig
	}

	var secrets providerSecrets
	if err := json.Unmarshal(payload, &secrets); err != nil {
		return nil, providerdomain.ErrInvalidConfig
	}
	return &secrets, nil
}
