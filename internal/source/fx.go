package source

import (
	"github.com/carebase/planmart/internal/source/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("source",
	fx.Provide(
		repository.Provide,
	),
)
