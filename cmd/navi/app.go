package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jask/navi/internal/config"
	"github.com/jask/navi/internal/database"
	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/offline"
	"github.com/jask/navi/internal/remote"
	"github.com/jask/navi/internal/replay"
	"github.com/jask/navi/internal/secrets"
	"github.com/jask/navi/internal/service"
	"github.com/jask/navi/internal/tools"
)

// app is the wired object graph behind the commands.
type app struct {
	cfg         config.Config
	logger      *zap.Logger
	db          *sql.DB
	cache       *offline.Cache
	store       remote.Store
	ledger      *service.Ledger
	engine      *replay.Engine
	pipeline    *tools.Pipeline
	maintenance *service.MaintenanceService
}

func (c *cli) open(ctx context.Context) (*app, error) {
	db, err := database.OpenAndMigrate(c.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a := &app{
		cfg:         c.cfg,
		logger:      c.logger,
		db:          db,
		cache:       offline.New(db),
		maintenance: &service.MaintenanceService{DB: db},
	}
	if a.store, err = a.newStore(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.ledger = service.NewLedger(a.store, a.cache, c.logger.Named("ledger"))
	if _, err := a.ledger.Load(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load cached snapshot: %w", err)
	}
	a.engine = replay.New(a.store, a.cache, a.ledger, c.logger.Named("replay"))
	a.pipeline = tools.NewPipeline(a.ledger, tools.Options{
		LivingCategory: finance.AllocationCategory(c.cfg.Assistant.LivingCategory),
		BillsCategory:  finance.AllocationCategory(c.cfg.Assistant.BillsCategory),
		ForecastDays:   c.cfg.Assistant.DefaultCycleDays,
		Location:       c.cfg.Assistant.Location(),
	}, c.logger.Named("tools"))
	return a, nil
}

func (a *app) Close() error { return a.db.Close() }

func (a *app) newStore(ctx context.Context) (remote.Store, error) {
	switch a.cfg.Remote.Driver {
	case config.DriverMemory:
		// a process-local store seeded from the last cached fetch
		mem := remote.NewMemory()
		dash, ok, err := a.cache.GetDashboard(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			for collection, recs := range dash.Collections {
				for _, r := range recs {
					mem.Put(collection, r)
				}
			}
		}
		return mem, nil
	default:
		return remote.NewPocketBase(a.cfg.Remote.URL, resolveToken(a.cfg, a.logger), a.cfg.Remote.Timeout, a.logger.Named("pocketbase")), nil
	}
}

// refresh pulls the remote state and drains the queue. Failing to reach the
// store is not fatal: the cached snapshot stays in place.
func (a *app) refresh(ctx context.Context) {
	if _, err := a.engine.Resync(ctx); err != nil {
		a.logger.Warn("working from cached data", zap.Error(err))
	}
}

// secretName keys the remote token in the secrets store by host.
func secretName(cfg config.Config) string {
	u, err := url.Parse(cfg.Remote.URL)
	if err != nil || u.Host == "" {
		return "remote"
	}
	return "remote:" + u.Host
}

// resolveToken prefers the env var, then the secrets store, then the config file.
func resolveToken(cfg config.Config, logger *zap.Logger) string {
	if env := strings.TrimSpace(cfg.Remote.TokenEnv); env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	if store, err := secrets.Default(); err == nil {
		tok, err := store.Get(secretName(cfg))
		switch {
		case err == nil:
			return tok
		case !errors.Is(err, secrets.ErrNotFound):
			logger.Warn("read stored token", zap.Error(err))
		}
	}
	return strings.TrimSpace(cfg.Remote.Token)
}

// settle writes the session's changes back to the cache. A resync refreshes
// both cached domains; when the remote is unreachable the local snapshot is
// persisted instead.
func (a *app) settle(ctx context.Context) {
	if _, err := a.engine.Resync(ctx); err == nil {
		return
	}
	if err := a.ledger.Persist(ctx); err != nil {
		a.logger.Warn("persist snapshot", zap.Error(err))
	}
}
