package music

import "go.uber.org/fx"

var Module = fx.Module("music.provider",
	fx.Provide(Provide),
)
