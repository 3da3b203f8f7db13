package repository

import (
	"context"
	"fmt"

	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/db"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/repository/postgres"
	"github.com/omni/tokenbridge-client/repository/redis"
)

type Repo struct {
	// BridgeTransactions is nil when no storage backend is configured.
	BridgeTransactions entity.BridgeTransactionsRepo

	close func() error
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		BridgeTransactions: postgres.NewBridgeTransactionsRepo("bridge_transactions", db),
		close:              db.Close,
	}
}

// Open connects to the configured storage backend.
func Open(ctx context.Context, cfg *config.Config) (*Repo, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		conn, err := db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
		if err != nil {
			return nil, err
		}
		return NewRepo(conn), nil
	case config.StorageRedis:
		client := redis.NewClient(cfg.RedisConfig)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("can't connect to redis: %w", err)
		}
		return &Repo{
			BridgeTransactions: redis.NewBridgeTransactionsRepo(client),
			close:              client.Close,
		}, nil
	default:
		return &Repo{close: func() error { return nil }}, nil
	}
}

func (r *Repo) Close() error {
	return r.close()
}
