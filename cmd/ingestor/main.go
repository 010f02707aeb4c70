package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"placemap/internal/adapters/cms"
	"placemap/internal/adapters/foursquare"
	"placemap/internal/adapters/observability"
	redisad "placemap/internal/adapters/redis"
	"placemap/internal/app"
	"placemap/internal/domain"
	"placemap/internal/shared"
	mysqlrepo "placemap/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	runID := uuid.NewString()
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("run", runID).Logger()

	log.Info().
		Str("places", cfg.FoursquareBase).
		Str("cms", cfg.CMSBase).
		Int("seeds", len(cfg.Seeds)).
		Int("workers", cfg.Workers).
		Msg("ingestor starting")

	reg := observability.InitRegistry()
	if srv := observability.Serve(cfg.MetricsAddr, reg); srv != nil {
		defer srv.Close()
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	var places domain.PlacesClient
	if fsq, err := foursquare.New(cfg.FoursquareBase, cfg.FoursquareKey, cfg.ImportRPS); err != nil {
		log.Warn().Err(err).Msg("places import disabled")
	} else {
		places = fsq
	}
	var cmsClient domain.CMSClient
	if cfg.CMSBase != "" {
		cmsClient = cms.New(cfg.CMSBase, cfg.CMSKey, cfg.ImportRPS)
	}

	ing := app.NewImportService(places, cmsClient, repo, cache, observability.Component(log.Logger, "import"))

	var (
		mu    sync.Mutex
		total app.ImportResult
	)
	record := func(r app.ImportResult) {
		mu.Lock()
		total.Seen += r.Seen
		total.Imported += r.Imported
		total.Invalid += r.Invalid
		mu.Unlock()
	}

	if places != nil {
		sem := semaphore.NewWeighted(int64(max(cfg.Workers, 1)))
		var wg sync.WaitGroup

		for _, seed := range cfg.Seeds {
			// acquire before launching the goroutine; release inside it
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Warn().Err(err).Msg("import interrupted")
				break
			}

			wg.Add(1)
			go func(s domain.Seed) {
				defer wg.Done()
				defer sem.Release(1)

				res, err := ing.ImportNearby(ctx, s)
				record(res)
				if err != nil {
					log.Warn().Float64("lat", s.Lat).Float64("lng", s.Lng).
						Str("kind", observability.LabelErr(err)).Err(err).Msg("seed import failed")
				}
			}(seed)
		}
		wg.Wait()
	}

	if cmsClient != nil && ctx.Err() == nil {
		res, err := ing.SyncCMS(ctx, cfg.CMSPageSize)
		record(res)
		if err != nil {
			log.Warn().Str("kind", observability.LabelErr(err)).Err(err).Msg("cms sync failed")
		}
	}

	log.Info().
		Int("seen", total.Seen).
		Int("imported", total.Imported).
		Int("invalid", total.Invalid).
		Msg("ingestion completed")
}
