package kv

import "go.uber.org/fx"

var Module = fx.Module("kv",
	fx.Provide(
		NewPresence,
		NewHistory,
		NewOffline,
		NewMembership,
		NewVerification,
	),
)
