package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calweaver/whalebot/internal/categorize"
	"github.com/calweaver/whalebot/internal/dedup"
	"github.com/calweaver/whalebot/internal/dispatch"
	"github.com/calweaver/whalebot/internal/domain"
	"github.com/calweaver/whalebot/internal/notify"
	"github.com/calweaver/whalebot/internal/pipeline"
	"github.com/calweaver/whalebot/internal/server"
	"github.com/calweaver/whalebot/internal/server/handler"
	"github.com/calweaver/whalebot/internal/server/ws"
)

// workerLockKey names the distributed lock that keeps the poll loop and
// dispatcher single-instance across replicas.
const workerLockKey = "worker"

// worker bundles the long-running components of the poll-and-dispatch loop.
type worker struct {
	poller      *pipeline.Poller
	dispatcher  *dispatch.Dispatcher
	housekeeper *pipeline.Housekeeper
}

// WorkerMode runs the poll loop, dispatcher, and housekeeper under the
// distributed worker lock. A replica that loses the lock race stands down
// cleanly so deployments can run hot spares.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	release, err := deps.LockManager.Acquire(ctx, workerLockKey, a.cfg.Redis.LockTTL.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.WarnContext(ctx, "another instance holds the worker lock, standing down")
			return nil
		}
		return fmt.Errorf("worker mode: acquire lock: %w", err)
	}
	defer release()

	w := a.buildWorker(deps)
	g, ctx := errgroup.WithContext(ctx)
	a.startWorker(ctx, g, w)

	a.notifyStartup(ctx, deps)
	err = g.Wait()
	a.notifyShutdown(deps)
	return err
}

// ServerMode runs only the read-only ops surface: REST handlers over the alert
// log plus the WebSocket alert stream.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("server mode: server.enabled is false")
	}
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startOpsServer(ctx, g, deps, nil, nil)
	return g.Wait()
}

// AllMode runs the worker and the ops server in one process. If another
// instance already holds the worker lock, the ops server still runs so the
// deployment keeps its read surface.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting all mode")

	g, ctx := errgroup.WithContext(ctx)

	var w *worker
	release, err := deps.LockManager.Acquire(ctx, workerLockKey, a.cfg.Redis.LockTTL.Duration)
	switch {
	case err == nil:
		defer release()
		w = a.buildWorker(deps)
		a.startWorker(ctx, g, w)
	case errors.Is(err, domain.ErrLockHeld):
		a.logger.WarnContext(ctx, "another instance holds the worker lock, running ops server only")
	default:
		return fmt.Errorf("all mode: acquire lock: %w", err)
	}

	if a.cfg.Server.Enabled {
		var pollerStats func() pipeline.PollerStats
		var dispatchStats func() dispatch.Stats
		if w != nil {
			pollerStats = w.poller.Stats
			dispatchStats = w.dispatcher.Stats
		}
		a.startOpsServer(ctx, g, deps, pollerStats, dispatchStats)
	}

	if w != nil {
		a.notifyStartup(ctx, deps)
	}
	err = g.Wait()
	if w != nil {
		a.notifyShutdown(deps)
	}
	return err
}

// buildWorker assembles the poll-and-dispatch pipeline from wired
// dependencies.
func (a *App) buildWorker(deps *Dependencies) *worker {
	classifier := categorize.NewClassifier(deps.TagCategories, deps.TagCache, a.logger)
	enricher := pipeline.NewEnricher(deps.Gamma, deps.MarketCache, deps.TagCache, classifier, a.logger)
	dd := dedup.New(deps.Dedup, a.cfg.Dedup.TTL.Duration)

	dispatcher := dispatch.New(dispatch.Config{
		GlobalInterval:  a.cfg.Dispatch.GlobalInterval.Duration,
		PerChatInterval: a.cfg.Dispatch.PerChatInterval.Duration,
		MaxAttempts:     a.cfg.Dispatch.MaxAttempts,
		TransientDelay:  a.cfg.Dispatch.TransientDelay.Duration,
	}, deps.Sink, deps.Filters, deps.Alerts, deps.SignalBus, deps.Notifier, a.logger)

	poller := pipeline.NewPoller(pipeline.PollerConfig{
		Interval:        a.cfg.Poll.Interval.Duration,
		MaxTrades:       a.cfg.Poll.MaxTrades,
		MinNotionalHint: a.cfg.Poll.MinNotionalHint,
		ReloadInterval:  a.cfg.Poll.ReloadInterval.Duration,
	}, deps.Data, enricher, dd, deps.Markers, deps.Filters, deps.SignalBus, dispatcher, a.logger)

	housekeeper := pipeline.NewHousekeeper(
		deps.Archiver, deps.Dedup, dd, deps.Notifier, a.cfg.Archive.RetentionDays, a.logger,
	)

	return &worker{
		poller:      poller,
		dispatcher:  dispatcher,
		housekeeper: housekeeper,
	}
}

// startWorker launches the worker goroutines on the errgroup: the poll loop,
// the housekeeper cron, and a drain goroutine that stops the dispatcher with a
// bounded deadline once the context ends.
func (a *App) startWorker(ctx context.Context, g *errgroup.Group, w *worker) {
	w.dispatcher.Start(ctx)

	g.Go(func() error {
		return w.poller.Run(ctx)
	})

	g.Go(func() error {
		return w.housekeeper.RunCron(ctx, a.cfg.Archive.Cron)
	})

	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.dispatcher.Stop(stopCtx); err != nil {
			a.logger.Warn("dispatcher drain timed out, backlog discarded")
		}
		return nil
	})
}

// startOpsServer adds the HTTP server and WebSocket hub goroutines to the
// errgroup. The stats funcs are nil in server-only mode.
func (a *App) startOpsServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	pollerStats func() pipeline.PollerStats,
	dispatchStats func() dispatch.Stats,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), pollerStats, dispatchStats),
		Alerts: handler.NewAlertsHandler(deps.Alerts, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) notifyStartup(ctx context.Context, deps *Dependencies) {
	if deps.Notifier == nil {
		return
	}
	_ = deps.Notifier.Notify(ctx, notify.EventStartup, "Whalebot started",
		fmt.Sprintf("mode %s, poll interval %s", a.cfg.Mode, a.cfg.Poll.Interval.Duration))
}

func (a *App) notifyShutdown(deps *Dependencies) {
	if deps.Notifier == nil {
		return
	}
	// The run context is already cancelled here; give the goodbye message its
	// own short deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = deps.Notifier.Notify(ctx, notify.EventShutdown, "Whalebot stopped",
		fmt.Sprintf("mode %s", a.cfg.Mode))
}
