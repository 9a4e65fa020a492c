package modules

import (
	"time"

	"changegate.io/changegate/internal/api/handlers"
	"changegate.io/changegate/internal/api/middleware"
	"changegate.io/changegate/internal/config"
)

const tokenLifetime = 24 * time.Hour

// NewServerDeps assembles handler dependencies from the infrastructure and
// lets each module contribute the pieces it owns.
func NewServerDeps(cfg *config.Config, infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Pool: infra.Pool,
		JWTCfg: middleware.JWTConfig{
			SigningKey: []byte(cfg.Security.JWTSecret),
			Issuer:     "changegate",
			ExpiresIn:  tokenLifetime,
		},
	}

	for _, mod := range mods {
		if contributor, ok := mod.(ServerDepsContributor); ok {
			contributor.ContributeServerDeps(&deps)
		}
	}

	return deps
}
