package fx

import (
	"context"

	"valorant-rolesync/internal/api"
	"valorant-rolesync/internal/config"
	"valorant-rolesync/internal/database"
	"valorant-rolesync/internal/directory"
	"valorant-rolesync/internal/gateway"
	"valorant-rolesync/internal/logger"
	"valorant-rolesync/internal/metrics"
	"valorant-rolesync/internal/onboarding"
	"valorant-rolesync/internal/partition"
	"valorant-rolesync/internal/reconcile"
	"valorant-rolesync/internal/repository"
	"valorant-rolesync/internal/server"
	"valorant-rolesync/internal/worker"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// Fleet holds both workers, their loops and the primary's gateway.
type Fleet struct {
	Workers        []*worker.Worker
	Loops          []*worker.Loop
	PrimaryID      int
	PrimaryGateway *gateway.Gateway
}

// ProvideStore opens the configured directory backend and closes it on stop.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config, log zerolog.Logger) (directory.Store, error) {
	if cfg.DirectoryBackend == config.BackendMongo {
		store, err := repository.NewMongoPlayerStore(context.Background(), cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: store.Close})
		return store, nil
	}

	sqlDB, err := database.New(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		return sqlDB.Close()
	}})
	return repository.NewPlayerRepository(sqlDB, log), nil
}

func ProvidePartitioner(cfg *config.Config) (partition.Partitioner, error) {
	return partition.New(cfg.PartitionStrategy)
}

func ProvideReconciler(cfg *config.Config) (*reconcile.Reconciler, error) {
	policy, err := reconcile.ParseManualPolicy(cfg.ManualRolePolicy)
	if err != nil {
		return nil, err
	}
	return reconcile.NewReconciler(policy), nil
}

func ProvideFleet(
	cfg *config.Config,
	store directory.Store,
	partitioner partition.Partitioner,
	reconciler *reconcile.Reconciler,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Fleet {
	clock := clockwork.NewRealClock()
	fleet := &Fleet{PrimaryID: cfg.PrimaryWorker}

	for _, wc := range cfg.Workers() {
		workerLog := log.With().Int("worker_id", wc.ID).Logger()
		client := api.NewDiscordClient(cfg.DiscordAPIURL, wc.Token, cfg.GuildID)
		gw := gateway.New(client, cfg.RateLimitDelay, cfg.RateLimitFallback, m, workerLog)

		var syncer *directory.Syncer
		if wc.Primary {
			syncer = directory.NewSyncer(store, directory.ProximityMatcher{Tolerance: cfg.MatchTolerance}, workerLog)
			fleet.PrimaryGateway = gw
		}

		w := worker.New(wc.ID, gw, store, partitioner, reconciler, syncer, clock, m, log)
		fleet.Workers = append(fleet.Workers, w)
		fleet.Loops = append(fleet.Loops, worker.NewLoop(w, clock, cfg.UpdateInterval, m, log))
	}
	return fleet
}

// ProvideSession builds the join-event session on the primary worker's token.
func ProvideSession(cfg *config.Config) (*discordgo.Session, error) {
	return api.NewSession(cfg.Primary().Token)
}

func ProvideJoinHandler(cfg *config.Config, fleet *Fleet, reconciler *reconcile.Reconciler, m *metrics.Metrics, log zerolog.Logger) *onboarding.Handler {
	return onboarding.NewHandler(cfg.GuildID, fleet.PrimaryID, fleet.PrimaryGateway, reconciler, m, log)
}

func ProvideStatusServer(fleet *Fleet, m *metrics.Metrics, log zerolog.Logger) *server.StatusServer {
	sources := make([]server.SnapshotSource, len(fleet.Loops))
	for i, l := range fleet.Loops {
		sources[i] = l
	}
	return server.NewStatusServer(sources, m, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(metrics.New),
	// directory
	fx.Provide(ProvideStore),
	// engine
	fx.Provide(ProvidePartitioner),
	fx.Provide(ProvideReconciler),
	fx.Provide(ProvideFleet),
	// discord gateway events
	fx.Provide(ProvideSession),
	fx.Provide(ProvideJoinHandler),
	// status
	fx.Provide(ProvideStatusServer),
)
