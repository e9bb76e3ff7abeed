package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jgivc/netfshare/internal/config"
	"github.com/jgivc/netfshare/internal/repository"
	"github.com/jgivc/netfshare/internal/repository/badgerstore"
	"github.com/jgivc/netfshare/internal/repository/redisstore"
	"github.com/mitchellh/mapstructure"
)

// newStore opens the registry store selected by cfg.Type, decoding its own section.
func newStore(ctx context.Context, cfg *config.StoreConfig, log *slog.Logger) (repository.Store, error) {
	switch cfg.Type {
	case config.StoreTypeBadger:
		var bc badgerstore.Config
		if err := decodeSection(cfg.Badger, &bc); err != nil {
			return nil, fmt.Errorf("cannot decode store.badger: %w", err)
		}

		return badgerstore.NewBadgerStore(bc, log)
	case config.StoreTypeRedis:
		var rc redisstore.Config
		if err := decodeSection(cfg.Redis, &rc); err != nil {
			return nil, fmt.Errorf("cannot decode store.redis: %w", err)
		}

		return redisstore.NewRedisStore(ctx, rc, log)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func decodeSection(section map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}

	return dec.Decode(section)
}
