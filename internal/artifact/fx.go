package artifact

import (
	"github.com/spf13/afero"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("artifact",
	fx.Provide(func(log *zap.Logger) Store {
		return NewFSStore(afero.NewOsFs(), log)
	}),
)
