package order

import (
	"go.uber.org/fx"

	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	trackingrepo "github.com/Additional-Code/atelier/internal/repository/tracking"
	"github.com/Additional-Code/atelier/internal/service/deposit"
)

// Module provides the order service to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *orderrepo.Repository) Repository { return r },
		func(r *trackingrepo.Repository) Tokens { return r },
		func(m *deposit.Manager) Deposits { return m },
		NewService,
	),
)
