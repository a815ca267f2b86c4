package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mtzanidakis/hive/internal/accessor"
	"github.com/mtzanidakis/hive/internal/config"
	"github.com/mtzanidakis/hive/internal/natsbus"
	"github.com/mtzanidakis/hive/internal/navigator"
	"github.com/mtzanidakis/hive/internal/policy"
	"github.com/mtzanidakis/hive/internal/store"
	"github.com/mtzanidakis/hive/internal/swarm"
	"github.com/mtzanidakis/hive/internal/timeouts"
	"github.com/mtzanidakis/hive/internal/tracing"
	"github.com/mtzanidakis/hive/internal/vault"
	"github.com/mtzanidakis/hive/internal/web"
	"github.com/nats-io/nats.go"
)

const shutdownTimeout = 30 * time.Second

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := setupLogger(os.Stderr, cfg.Log)

	slog.Info("starting hive gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		if err := tracing.Init("hive", version, cfg.Tracing.Output); err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = tracing.Shutdown(sctx)
		}()
		slog.Info("tracing enabled", "output", cfg.Tracing.Output)
	}

	// SQLite context store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	client, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer client.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	// Approval responder for sensitive reads
	approver := natsbus.NewApprover(client, cfg.Swarm.DenySensitivity)
	if err := approver.Start(); err != nil {
		return err
	}
	defer approver.Stop()
	approvals := natsbus.NewApprovals(client, cfg.Swarm.ApprovalTimeout)

	accOpts := []accessor.Option{}
	if cfg.Vault.Passphrase != "" {
		accOpts = append(accOpts, accessor.WithSanitizer(vault.New(cfg.Vault.Passphrase)))
	} else {
		slog.Warn("vault passphrase not set, sensitive values are returned unsealed")
	}
	acc := accessor.New(approvals, accOpts...)

	// Swarm manager
	mgr := swarm.NewManager(db,
		natsbus.NewOrchestrator(client, 0),
		natsbus.NewEventBus(client),
		swarm.WithAccessor(acc),
		swarm.WithDefaultVisibility(policy.Visibility(cfg.Swarm.DefaultVisibility)))

	feed := natsbus.NewInputFeed(client, mgr)
	if err := feed.Start(ctx); err != nil {
		return err
	}
	defer feed.Stop()

	// Routine navigation and location timeouts
	navigators := navigator.NewDefaultRegistry(slog.Default())
	var tracker *timeouts.Tracker
	sched := timeouts.New(cfg.Scheduler, func(ctx context.Context, e timeouts.Entry) {
		err := mgr.Dispatch(ctx, e.Event(time.Now().UTC()))
		switch {
		case err == nil:
		case errors.Is(err, swarm.ErrSwarmNotFound):
			tracker.Forget(e.SwarmID)
		default:
			slog.Warn("dispatch timeout", "swarm", e.SwarmID, "location", e.Location.ID, "error", err)
		}
	})
	tracker = timeouts.NewTracker(navigators, sched)
	go sched.Start(ctx)
	locSub, err := client.Subscribe(natsbus.TopicSwarmLocations, func(msg *nats.Msg) {
		var rep timeouts.LocationReport
		if err := json.Unmarshal(msg.Data, &rep); err != nil {
			slog.Warn("invalid location report", "subject", msg.Subject, "error", err)
			return
		}
		swarmID := subjectSwarmID(msg.Subject)
		if _, err := tracker.Report(ctx, swarmID, rep); err != nil {
			slog.Warn("location report failed", "swarm", swarmID, "location", rep.Location.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe locations: %w", err)
	}
	defer locSub.Unsubscribe()

	// Web API and event stream
	if cfg.Web.Enabled {
		srv := web.NewServer(mgr, db, navigators, client, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Config hot reload
	current := cfg
	go func() {
		err := config.Watch(ctx, config.Path(), func(next *config.Config) {
			d := config.Diff(current, next)
			if d.SchedulerChanged {
				sched.UpdateConfig(d.NewPollInterval.PollInterval)
			}
			if d.DenyListChanged {
				approver.SetDenyList(d.NewDenyList)
				slog.Info("approval deny list reloaded", "deny", d.NewDenyList)
			}
			if d.ApprovalTimeoutChanged {
				approvals.SetTimeout(next.Swarm.ApprovalTimeout)
			}
			if d.LogLevelChanged {
				level.Set(parseLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			for _, field := range d.NonReloadable {
				slog.Warn("config change requires restart", "field", field)
			}
			current = next
		})
		if err != nil {
			slog.Warn("config watcher disabled", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	mgr.StopAll(stopCtx, swarm.StopGraceful, "gateway shutdown")
	cancel()
	return nil
}

// subjectSwarmID extracts <id> from swarm.<id>.location.
func subjectSwarmID(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
