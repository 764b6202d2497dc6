package warehouse

import (
	"github.com/carebase/planmart/internal/cache"
	"github.com/carebase/planmart/internal/warehouse/repository"
	"github.com/carebase/planmart/internal/warehouse/service"
	"go.uber.org/fx"
)

var Module = fx.Module("warehouse",
	fx.Provide(
		cache.NewDimensionKeyCache,
		repository.ProvideDimensions,
		repository.ProvideFacts,
		service.NewResolver,
	),
)
