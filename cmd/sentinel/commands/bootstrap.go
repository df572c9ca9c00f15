package commands

import (
	"context"
	"database/sql"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/db"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/feed"
	"github.com/teranos/sentinel/health"
	"github.com/teranos/sentinel/knowledge"
	"github.com/teranos/sentinel/ledger"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/manager"
	"github.com/teranos/sentinel/metrics"
	"github.com/teranos/sentinel/monitor"
	"github.com/teranos/sentinel/pulse"
	"github.com/teranos/sentinel/qpu"
	"github.com/teranos/sentinel/synth"
)

// loop is a fully wired decision loop and the resources it owns.
type loop struct {
	pipeline   *pulse.Pipeline
	recorder   *metrics.Recorder
	guard      *health.Guard
	ledger     *ledger.Ledger
	dispatcher *qpu.Dispatcher
	database   *sql.DB
	logger     *zap.SugaredLogger
}

// loadKnowledge loads the configured graph. A failure is logged and yields
// nil, which the manager treats as "use conservative defaults".
func loadKnowledge(path string, log *zap.SugaredLogger) *knowledge.Base {
	if path == "" {
		log.Warnw("No knowledge source configured, using conservative defaults")
		return nil
	}
	kb, err := knowledge.Load(path, log)
	if err != nil {
		log.Warnw("Knowledge base unavailable, using conservative defaults",
			logger.FieldPath, path,
			logger.FieldError, err)
		return nil
	}
	return kb
}

// newGenerator seeds the signal from seed, or randomly when seed is 0.
func newGenerator(params feed.Params, seed uint64) *feed.Generator {
	if seed != 0 {
		return feed.NewSeeded(params, seed)
	}
	return feed.New(params, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// buildLoop wires every component named in cfg.
func buildLoop(cfg *am.Config, pulseCfg pulse.Config, seed uint64, log *zap.SugaredLogger) (*loop, error) {
	l := &loop{logger: log}

	kb := loadKnowledge(cfg.Knowledge.Path, log.Named("knowledge"))

	l.recorder = metrics.NewRecorder()
	l.guard = health.NewGuard(cfg.Health, l.recorder, log.Named("health"))
	mon := monitor.New(cfg.Monitor.Tolerance, cfg.Monitor.Threshold, log.Named("monitor"))

	svc, err := synth.New(cfg.Synth, log.Named("synth"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure synthesizer")
	}

	var clientOpts []qpu.Option
	if cfg.Database.Path != "" {
		l.database, err = db.OpenWithMigrations(cfg.Database.Path, log.Named("db"))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open job database %s", cfg.Database.Path)
		}
		clientOpts = append(clientOpts, qpu.WithStore(qpu.NewStore(l.database)))
	}

	managerOpts := []manager.Option{
		manager.WithTarget(cfg.Manager.Target),
		manager.WithCalibrator(svc),
		manager.WithCycleRecorder(l.recorder),
		manager.WithLogger(log.Named("manager")),
	}
	if cfg.Manager.Dispatch {
		client := qpu.NewClient(cfg.Backend, log.Named("qpu"), clientOpts...)
		l.dispatcher = qpu.NewDispatcher(client, cfg.Manager.ProgramID, log.Named("qpu"))
		managerOpts = append(managerOpts, manager.WithDispatcher(l.dispatcher))
	}
	mgr := manager.New(kb, l.guard, svc, managerOpts...)

	pipelineOpts := []pulse.Option{
		pulse.WithRecorder(l.recorder),
		pulse.WithLogger(log.Named("pulse")),
	}
	if cfg.Pricing.Enabled {
		pipelineOpts = append(pipelineOpts, pulse.WithPricing(svc, cfg.Pricing))
	}
	if cfg.Ledger.Path != "" {
		signer, created, err := ledger.LoadOrCreateSigner(cfg.Ledger.KeyPath)
		if err != nil {
			l.close(context.Background())
			return nil, errors.Wrap(err, "failed to load ledger key")
		}
		if created && cfg.Ledger.KeyPath != "" {
			log.Infow("Generated new ledger key", logger.FieldPath, cfg.Ledger.KeyPath)
		}
		l.ledger = ledger.New(cfg.Ledger.Path, signer, log.Named("ledger"))
		pipelineOpts = append(pipelineOpts, pulse.WithLedger(l.ledger))
	}

	gen := newGenerator(cfg.Feed, seed)
	l.pipeline = pulse.New(pulseCfg, gen, mon, l.guard, mgr, pipelineOpts...)
	return l, nil
}

// close releases the backend session and the database.
func (l *loop) close(ctx context.Context) {
	if l.dispatcher != nil {
		if err := l.dispatcher.Close(ctx); err != nil {
			l.logger.Warnw("Failed to close backend session", logger.FieldError, err)
		}
	}
	if l.database != nil {
		if err := l.database.Close(); err != nil {
			l.logger.Warnw("Failed to close database", logger.FieldError, err)
		}
	}
}
