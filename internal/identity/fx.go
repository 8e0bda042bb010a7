package identity

import (
	"github.com/smallbiznis/artline/internal/identity/repository"
	"github.com/smallbiznis/artline/internal/identity/service"
	"github.com/smallbiznis/artline/internal/identity/session"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(session.NewManager),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
