package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/domainetf/domainperp/internal/scanner"
	"github.com/domainetf/domainperp/internal/server"
	"github.com/domainetf/domainperp/internal/server/handler"
	"github.com/domainetf/domainperp/internal/server/ws"
)

// OracleMode runs only the price aggregation loop. The aggregate is written
// to the cache and published on the signal bus for other instances to
// consume; when the server is enabled the price endpoints are served too.
func (a *App) OracleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting oracle mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Oracle.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, nil)
	}

	return g.Wait()
}

// MonitorMode runs the oracle and the liquidation scanner in report-only
// mode. Underwater positions are flagged and published but never settled
// automatically; the execute endpoint settles through the dry-run settler.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runEngine(ctx, deps, false)
}

// LiquidateMode runs the oracle and the liquidation scanner with settlement
// wired. Automatic execution of detected liquidations follows the scanner
// configuration.
func (a *App) LiquidateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting liquidate mode",
		slog.Bool("auto_liquidate", a.cfg.Scanner.AutoLiquidate),
		slog.Bool("dry_run", a.cfg.Settlement.DryRun),
	)
	return a.runEngine(ctx, deps, a.cfg.Scanner.AutoLiquidate)
}

// runEngine starts the goroutines shared by monitor and liquidate modes:
// price aggregation, the scan loop, optional history archival, and the API
// server.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, autoLiquidate bool) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Oracle.Run(ctx)
	})

	sc := scanner.New(
		deps.Positions,
		deps.Oracle,
		deps.Settler,
		a.cfg.Scanner.Interval.Duration,
		autoLiquidate,
		a.logger,
	)
	sc.SetHistory(deps.Liquidations)
	sc.SetSignalBus(deps.SignalBus)
	sc.SetNotifier(deps.Notifier)

	g.Go(func() error {
		return sc.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchival(ctx, deps)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, sc)
	}

	return g.Wait()
}

// runArchival periodically moves liquidation history older than the retention
// window to object storage and then deletes the archived rows.
func (a *App) runArchival(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	logger := a.logger.With(slog.String("component", "archival"))
	logger.InfoContext(ctx, "archival loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

			archived, err := deps.Archiver.ArchiveLiquidations(ctx, cutoff)
			if err != nil {
				logger.ErrorContext(ctx, "archive liquidations failed",
					slog.String("error", err.Error()),
				)
				if deps.Notifier != nil {
					_ = deps.Notifier.Notify(ctx, "error", "Archival failed", err.Error())
				}
				continue
			}
			if archived == 0 {
				continue
			}

			deleted, err := deps.Liquidations.DeleteBefore(ctx, cutoff)
			if err != nil {
				// The archive upload succeeded, so rows are retried (and
				// re-uploaded to the same keys) on the next cycle.
				logger.ErrorContext(ctx, "prune archived liquidations failed",
					slog.String("error", err.Error()),
				)
				continue
			}

			logger.InfoContext(ctx, "liquidation history archived",
				slog.Int64("archived", archived),
				slog.Int64("deleted", deleted),
				slog.Time("cutoff", cutoff),
			)
		}
	}
}

// startHTTPServer adds the API server goroutines to the given errgroup,
// wiring the WebSocket hub plus the handlers available in the current mode.
// sc may be nil (oracle mode); the liquidation and position endpoints are
// omitted then. The server shuts down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	sc *scanner.Scanner,
) {
	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Price:  handler.NewPriceHandler(deps.Oracle, a.logger),
	}
	if sc != nil {
		handlers.Liquidations = handler.NewLiquidationHandler(sc, deps.Liquidations, a.logger)
	}
	if deps.Positions != nil {
		handlers.Positions = handler.NewPositionHandler(deps.Positions, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIToken:    a.cfg.Server.APIToken,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
