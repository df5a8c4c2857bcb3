package jobs

import (
	"go.uber.org/fx"
)

// Module provides the jobs domain
var Module = fx.Module("jobs",
	fx.Provide(NewRepository),
	fx.Provide(func(r *Repository) Store { return r }),
	fx.Provide(NewServiceFromConfig),
	fx.Provide(newSubmitRateLimiterFromConfig),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
