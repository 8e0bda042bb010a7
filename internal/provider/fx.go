package provider

import (
	"go.uber.org/fx"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/provider/adapters"
	"github.com/smallbiznis/artline/internal/provider/adapters/replicate"
	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
	"github.com/smallbiznis/artline/internal/provider/repository"
	"github.com/smallbiznis/artline/internal/provider/service"
)

func provideRegistry() *adapters.Registry {
	return adapters.NewRegistry(replicate.NewFactory())
}

var Module = fx.Module("provider.service",
	fx.Provide(provideRegistry),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc providerdomain.Service) catalogdomain.SchemaFetcher { return svc }),
)
