package payment

import (
	"go.uber.org/fx"

	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	paymentrepo "github.com/Additional-Code/atelier/internal/repository/payment"
)

// Module provides the webhook reconciler and refund service to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *orderrepo.Repository) Orders { return r },
		func(r *paymentrepo.Repository) Journal { return r },
		NewReconciler,
		NewRefunds,
	),
)
