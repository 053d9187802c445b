package deposit

import (
	"go.uber.org/fx"

	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	proofrepo "github.com/Additional-Code/atelier/internal/repository/proof"
	trackingrepo "github.com/Additional-Code/atelier/internal/repository/tracking"
)

// Module provides the deposit reservation manager to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *orderrepo.Repository) Orders { return r },
		func(r *proofrepo.Repository) Proofs { return r },
		func(r *trackingrepo.Repository) Tokens { return r },
		NewManager,
	),
)
