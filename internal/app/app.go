package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/atelier/internal/cache"
	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/database"
	"github.com/Additional-Code/atelier/internal/logger"
	"github.com/Additional-Code/atelier/internal/messaging"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/observability"
	"github.com/Additional-Code/atelier/internal/provider"
	repositoryorder "github.com/Additional-Code/atelier/internal/repository/order"
	repositorypayment "github.com/Additional-Code/atelier/internal/repository/payment"
	repositoryproduct "github.com/Additional-Code/atelier/internal/repository/product"
	repositoryproof "github.com/Additional-Code/atelier/internal/repository/proof"
	repositorytracking "github.com/Additional-Code/atelier/internal/repository/tracking"
	grpcserver "github.com/Additional-Code/atelier/internal/server/grpc"
	httpserver "github.com/Additional-Code/atelier/internal/server/http"
	servicecheckout "github.com/Additional-Code/atelier/internal/service/checkout"
	servicedeposit "github.com/Additional-Code/atelier/internal/service/deposit"
	serviceinventory "github.com/Additional-Code/atelier/internal/service/inventory"
	servicelifecycle "github.com/Additional-Code/atelier/internal/service/lifecycle"
	serviceorder "github.com/Additional-Code/atelier/internal/service/order"
	servicepayment "github.com/Additional-Code/atelier/internal/service/payment"
	transporthttp "github.com/Additional-Code/atelier/internal/transport/http"
	"github.com/Additional-Code/atelier/internal/validation"
	"github.com/Additional-Code/atelier/internal/worker"
	workernotification "github.com/Additional-Code/atelier/internal/worker/notification"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	repositoryproduct.Module,
	repositorypayment.Module,
	repositoryproof.Module,
	repositorytracking.Module,
)

// Services adds the order engine on top of Core.
var Services = fx.Options(
	Core,
	validation.Module,
	provider.Module,
	notification.Module,
	servicelifecycle.Module,
	serviceinventory.Module,
	servicecheckout.Module,
	servicepayment.Module,
	servicedeposit.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP transport and the gRPC health endpoint on top of the
// services.
var HTTP = fx.Options(
	Services,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background notification delivery.
var Worker = fx.Options(
	Core,
	notification.MailerModule,
	worker.Module,
	workernotification.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
