package catalog

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/artline/internal/catalog/repository"
	"github.com/smallbiznis/artline/internal/catalog/service"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
