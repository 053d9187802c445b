package payment

import "go.uber.org/fx"

// Module provides the payment ledger repository to Fx.
var Module = fx.Provide(NewRepository)
