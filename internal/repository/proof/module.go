package proof

import "go.uber.org/fx"

// Module provides the deposit proof repository to Fx.
var Module = fx.Provide(NewRepository)
