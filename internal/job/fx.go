package job

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/artline/internal/job/repository"
	"github.com/smallbiznis/artline/internal/job/service"
)

var Module = fx.Module("job.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
