package webhook

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/atelier/internal/service/payment"
)

// Module wires the payment webhook endpoint.
var Module = fx.Options(
	fx.Provide(
		func(r *payment.Reconciler) Reconciler { return r },
		NewHandler,
	),
	fx.Invoke(func(e *echo.Echo, h *Handler) {
		Register(e, h)
	}),
)
