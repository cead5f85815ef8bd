package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/civic-gis/gis-cli/internal/db"
	"github.com/civic-gis/gis-cli/internal/store"
	"github.com/civic-gis/gis-cli/pkg/geocode"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "gis-cli.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// postgresPool returns the raw connection pool behind the store. Bulk layer
// loads COPY straight into PostGIS, which the sqlite backend cannot serve.
func postgresPool(st store.Store) (db.Pool, error) {
	pg, ok := st.(*store.PostgresStore)
	if !ok {
		return nil, eris.New("this command requires the postgres store driver")
	}
	return pg.Pool(), nil
}

func initGeocoder(st store.Store) geocode.Client {
	opts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RateRPS),
	}
	if cfg.Geocode.GoogleAPIKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleAPIKey))
	}
	if cfg.Geocode.CacheEnabled {
		ttl := time.Duration(cfg.Geocode.CacheTTLDays) * 24 * time.Hour
		opts = append(opts, geocode.WithCache(st, ttl))
	}
	return geocode.NewClient(opts...)
}
