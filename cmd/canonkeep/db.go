package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"canonkeep/internal/canon"
	"canonkeep/internal/canonizer"
	"canonkeep/internal/config"
	"canonkeep/internal/graph"
	"canonkeep/internal/staging"
	"canonkeep/internal/store/postgres"
	"canonkeep/internal/store/sqlite"
)

// stores bundles the two persistence layers a command needs. Canon and
// staging may live in the same database or in different ones; Close
// shuts both down.
type stores struct {
	canon   canon.Store
	staging staging.Store
	closers []func(context.Context) error
}

func (s *stores) Close(ctx context.Context) {
	for _, closeFn := range s.closers {
		_ = closeFn(ctx)
	}
}

// openStores wires the configured backends. The sqlite and postgres
// drivers serve both layers from one database; the neo4j driver holds
// canon in the graph with staging in the relational store named by the
// dsn.
func openStores(ctx context.Context, cfg *config.ProjectConfig) (*stores, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		client, err := sqlite.New(ctx, cfg.Storage.DSN, nil)
		if err != nil {
			return nil, err
		}
		return &stores{canon: client, staging: client, closers: []func(context.Context) error{client.Close}}, nil
	case "postgres":
		client, err := postgres.New(ctx, cfg.Storage.DSN, nil)
		if err != nil {
			return nil, err
		}
		return &stores{canon: client, staging: client, closers: []func(context.Context) error{client.Close}}, nil
	case "neo4j":
		graphClient, err := graph.NewClient(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			return nil, err
		}
		stagingStore, closeStaging, err := openStagingStore(ctx, cfg.Storage.DSN)
		if err != nil {
			_ = graphClient.Close(ctx)
			return nil, err
		}
		return &stores{
			canon:   graphClient,
			staging: stagingStore,
			closers: []func(context.Context) error{graphClient.Close, closeStaging},
		}, nil
	}
	return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
}

func openStagingStore(ctx context.Context, dsn string) (staging.Store, func(context.Context) error, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		client, err := postgres.New(ctx, dsn, nil)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	client, err := sqlite.New(ctx, dsn, nil)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func newEngine(cfg *config.ProjectConfig, db *stores) (*canonizer.Engine, error) {
	policy, err := cfg.EvalPolicy()
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.Lease.TTLSeconds) * time.Second
	return canonizer.New(db.canon, db.staging, policy, "", ttl, nil, nil)
}
