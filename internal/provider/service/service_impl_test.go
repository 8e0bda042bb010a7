package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/smallbiznis/artline/internal/clock"
	"github.com/smallbiznis/artline/internal/config"
	"github.com/smallbiznis/artline/internal/provider/adapters"
	"github.com/smallbiznis/artline/internal/provider/adapters/replicate"
	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
	providerrepo "github.com/smallbiznis/artline/internal/provider/repository"
	providerservice "github.com/smallbiznis/artline/internal/provider/service"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&providerdomain.ProviderConfig{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newService(t *testing.T, db *gorm.DB, secret string) providerdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	return providerservice.New(providerservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)),
		Cfg:      config.Config{ProviderKeySecret: secret},
		Repo:     providerrepo.Provide(),
		Registry: adapters.NewRegistry(replicate.NewFactory()),
	})
}

func TestConfigureStoresCiphertext(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db, "config_secret")

	summary, err := svc.Configure(ctx, providerdomain.ConfigureRequest{
		Provider: "replicate",
		APIKey:   "r8_live_key",
	})
	require.NoError(t, err)
	assert.True(t, summary.IsActive)
	assert.True(t, summary.Configured)

	var stored string
	require.NoError(t, db.Raw(`SELECT config FROM provider_configs WHERE provider = ?`, "replicate").Scan(&stored).Error)
	assert.NotContains(t, stored, "r8_live_key")
	assert.Contains(t, stored, "ciphertext")

	adapter, err := svc.Adapter(ctx, "replicate")
	require.NoError(t, err)
	assert.Equal(t, "replicate", adapter.Provider())
}

func TestConfigureValidation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	t.Run("unknown provider", func(t *testing.T) {
		svc := newService(t, db, "config_secret")
		_, err := svc.Configure(ctx, providerdomain.ConfigureRequest{Provider: "dalle", APIKey: "k"})
		assert.ErrorIs(t, err, providerdomain.ErrProviderNotFound)
	})

	t.Run("missing api key", func(t *testing.T) {
		svc := newService(t, db, "config_secret")
		_, err := svc.Configure(ctx, providerdomain.ConfigureRequest{Provider: "replicate", APIKey: "  "})
		assert.ErrorIs(t, err, providerdomain.ErrInvalidConfig)
	})

	t.Run("missing encryption secret", func(t *testing.T) {
		svc := newService(t, db, "")
		_, err := svc.Configure(ctx, providerdomain.ConfigureRequest{Provider: "replicate", APIKey: "k"})
		assert.ErrorIs(t, err, providerdomain.ErrEncryptionKeyMissing)
	})
}

func TestConfigureUpsertAndDeactivate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db, "config_secret")

	_, err := svc.Configure(ctx, providerdomain.ConfigureRequest{Provider: "replicate", APIKey: "first"})
	require.NoError(t, err)

	inactive := false
	_, err = svc.Configure(ctx, providerdomain.ConfigureRequest{
		Provider: "replicate",
		APIKey:   "second",
		IsActive: &inactive,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM provider_configs`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = svc.Adapter(ctx, "replicate")
	assert.ErrorIs(t, err, providerdomain.ErrProviderNotActive)

	configs, err := svc.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.False(t, configs[0].IsActive)
}

func TestAdapterNotConfigured(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t), "config_secret")

	_, err := svc.Adapter(ctx, "replicate")
	assert.ErrorIs(t, err, providerdomain.ErrProviderNotFound)
}
