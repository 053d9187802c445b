package tracking

import "go.uber.org/fx"

// Module provides the tracking token repository to Fx.
var Module = fx.Provide(NewRepository)
