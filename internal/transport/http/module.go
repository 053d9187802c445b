package http

import (
	"go.uber.org/fx"

	admintransport "github.com/Additional-Code/atelier/internal/transport/http/admin"
	ordertransport "github.com/Additional-Code/atelier/internal/transport/http/order"
	webhooktransport "github.com/Additional-Code/atelier/internal/transport/http/webhook"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	webhooktransport.Module,
	admintransport.Module,
)
