package sqlite

import (
	"context"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/codemurf/auth-gateway/internal/config"
	"go.uber.org/fx"
)

// NewStore opens the configured store and ties its lifetime to the fx app.
func NewStore(cfg *config.Config, lc fx.Lifecycle) (*Store, error) {
	store, err := Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})

	return store, nil
}

// Module provides the account store dependencies
var Module = fx.Module("account",
	fx.Provide(
		fx.Annotate(
			NewStore,
			fx.As(new(account.Store)),
		),
	),
)
