package checkout

import (
	"go.uber.org/fx"

	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	productrepo "github.com/Additional-Code/atelier/internal/repository/product"
	trackingrepo "github.com/Additional-Code/atelier/internal/repository/tracking"
)

// Module provides the checkout orchestrator to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *productrepo.Repository) Catalog { return r },
		func(r *orderrepo.Repository) OrderWriter { return r },
		func(r *trackingrepo.Repository) TokenIssuer { return r },
		NewOrchestrator,
	),
)
