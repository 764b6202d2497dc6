package etl

import (
	"go.uber.org/fx"

	"github.com/carebase/planmart/internal/etl/service"
	"github.com/carebase/planmart/internal/quality"
	"github.com/carebase/planmart/internal/rollup"
)

var Module = fx.Module("etl",
	fx.Provide(quality.New),
	fx.Provide(rollup.New),
	fx.Provide(service.New),
)
