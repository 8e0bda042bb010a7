package asset

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/artline/internal/config"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	"github.com/smallbiznis/artline/internal/webhook"
)

func provideStore(cfg config.Config, log *zap.Logger) (ObjectStore, error) {
	if cfg.S3Bucket == "" {
		log.Warn("no asset bucket configured, storing assets in memory")
		return NewMemoryStore(), nil
	}
	return NewS3Store(context.Background(), cfg)
}

var Module = fx.Module("asset",
	fx.Provide(provideStore),
	fx.Provide(NewPersister),
	fx.Provide(func(p *Persister) webhook.AssetPersister { return p }),
	// The persister depends on the job service, so the archiver side is
	// attached after both exist instead of through the constructor.
	fx.Invoke(func(svc jobdomain.Service, p *Persister) {
		if s, ok := svc.(interface{ SetArchiver(jobdomain.AssetArchiver) }); ok {
			s.SetArchiver(p)
		}
	}),
)
