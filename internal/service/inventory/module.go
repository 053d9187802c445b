package inventory

import (
	"go.uber.org/fx"

	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	productrepo "github.com/Additional-Code/atelier/internal/repository/product"
)

// Module provides the inventory ledger to Fx.
var Module = fx.Options(
	fx.Provide(func(r *productrepo.Repository) Store { return r }),
	fx.Provide(func(r *orderrepo.Repository) Claims { return r }),
	fx.Provide(NewLedger),
)
