package lifecycle

import (
	"go.uber.org/fx"

	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
)

// Module provides the order state machine to Fx.
var Module = fx.Options(
	fx.Provide(func(r *orderrepo.Repository) Store { return r }),
	fx.Provide(NewMachine),
)
