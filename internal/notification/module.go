package notification

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MailerModule provides the default mailer on its own, for processes that
// only deliver.
var MailerModule = fx.Provide(func(logger *zap.Logger) Mailer { return NewLogMailer(logger) })

// Module wires the dispatcher, exposed as Notifier, and the default mailer.
var Module = fx.Options(
	MailerModule,
	fx.Provide(
		NewDispatcher,
		func(d *Dispatcher) Notifier { return d },
	),
	fx.Invoke(func(lc fx.Lifecycle, d *Dispatcher) {
		lc.Append(fx.Hook{OnStart: d.Start, OnStop: d.Stop})
	}),
)
