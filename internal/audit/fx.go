package audit

import (
	"github.com/carebase/planmart/internal/audit/repository"
	"github.com/carebase/planmart/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
