package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/brokerfleet/pkg/api"
	"github.com/cuemby/brokerfleet/pkg/cluster"
	"github.com/cuemby/brokerfleet/pkg/config"
	"github.com/cuemby/brokerfleet/pkg/deploy"
	"github.com/cuemby/brokerfleet/pkg/events"
	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/cuemby/brokerfleet/pkg/offer"
	"github.com/cuemby/brokerfleet/pkg/plan"
	"github.com/cuemby/brokerfleet/pkg/reconciler"
	"github.com/cuemby/brokerfleet/pkg/scheduler"
	"github.com/cuemby/brokerfleet/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rollout scheduler and the plan API",
	Long: `Run the rollout scheduler against a simulated cluster and serve the
plan API.

Settings come from the optional --config YAML file, BROKERFLEET_*
environment variables and the flags below, flags winning. Rewriting
target_config_name in the config file while running adopts a new rollout.

Examples:
  brokerfleet serve --target v1 --brokers 3
  brokerfleet serve -c brokerfleet.yaml`,
	RunE: runServe,
}

// flag name -> config key
var serveFlagKeys = map[string]string{
	"target":    "target_config_name",
	"brokers":   "broker_count",
	"strategy":  "strategy",
	"api-addr":  "api_addr",
	"data-dir":  "data_dir",
	"log-level": "log.level",
	"log-json":  "log.json",
	"agents":    "simulator.agents",
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "YAML config file")
	serveCmd.Flags().String("target", "", "Target broker configuration name")
	serveCmd.Flags().Int("brokers", 0, "Number of brokers in the fleet")
	serveCmd.Flags().String("strategy", "", "Rollout strategy: auto or stage")
	serveCmd.Flags().String("api-addr", "", "Address for the plan API")
	serveCmd.Flags().String("data-dir", "", "Data directory for rollout state")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().Bool("log-json", false, "Log as JSON")
	serveCmd.Flags().Int("agents", 0, "Number of simulated agents")
	serveCmd.Flags().Bool("read-only", false, "Reject mutating plan API requests")
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range serveFlagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

// planFunc adapts a function to scheduler.PlanSource
type planFunc func() *plan.Plan

func (f planFunc) Plan() *plan.Plan { return f() }

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	readOnly, _ := cmd.Flags().GetBool("read-only")

	loader := config.NewLoader(path)
	if err := bindFlags(loader.Viper(), cmd); err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	logger := log.WithComponent("serve")
	metrics.SetVersion(Version)

	strategy, err := plan.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()
	metrics.RegisterComponent("store", true, "open at "+cfg.DataDir)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sim := cluster.NewSimulator(
		cluster.UniformAgents(cfg.Simulator.Agents, cfg.AgentResources()),
		cluster.WithStartupDelay(cfg.Simulator.StartupDelay),
	)

	var deployer *deploy.Deployer
	sched := scheduler.NewScheduler(scheduler.Config{
		Backend:   sim,
		Store:     store,
		Plans:     planFunc(func() *plan.Plan { return deployer.Plan() }),
		Publisher: broker,
		Interval:  cfg.Scheduler.Interval,
	})
	deployer = deploy.NewDeployer(plan.Deps{
		State:     store,
		Provider:  offer.NewProvider(cfg.Broker.Resources()),
		Driver:    sched,
		Publisher: broker,
	}, store, cfg.BrokerCount, strategy)

	if p, ok, err := deployer.Resume(); err != nil {
		return fmt.Errorf("failed to resume rollout: %w", err)
	} else if ok {
		logger.Info().Str("plan_id", p.ID()).Str("status", string(p.Status())).Msg("Resumed recorded rollout")
	}
	if _, err := deployer.Adopt(cfg.TargetConfigName); err != nil {
		return err
	}

	loader.Watch(func(next *config.Config) {
		if next.BrokerCount != cfg.BrokerCount {
			logger.Warn().Int("broker_count", next.BrokerCount).Msg("broker_count changes take effect on restart")
		}
		if _, err := deployer.Adopt(next.TargetConfigName); err != nil {
			logger.Error().Err(err).Msg("Failed to adopt new target")
		}
	})

	recon := reconciler.NewReconciler(store, sim, cfg.Reconciler.Interval)
	collector := metrics.NewCollector(deployer.Snapshot)
	server := api.NewServer(deployer, store, apiOptions(readOnly)...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sim.Run(ctx) })
	g.Go(func() error { return recon.Run(ctx) })
	g.Go(func() error {
		if err := server.Start(cfg.APIAddr); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logEvents(ctx, broker, logger)
		return nil
	})

	sched.Start()
	collector.Start()

	fmt.Printf("✓ Rolling %d brokers to %s (strategy %s)\n", cfg.BrokerCount, cfg.TargetConfigName, strategy.Name())
	fmt.Printf("✓ Plan API on %s\n", cfg.APIAddr)
	fmt.Println("Press Ctrl+C to stop.")

	g.Go(func() error {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		sched.Stop()
		collector.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("✓ Shutdown complete")
	return nil
}

func apiOptions(readOnly bool) []api.Option {
	opts := []api.Option{api.WithVersion(Version)}
	if readOnly {
		opts = append(opts, api.WithReadOnly())
	}
	return opts
}

// logEvents writes rollout events to the log until ctx is done
func logEvents(ctx context.Context, broker *events.Broker, logger zerolog.Logger) {
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			e := logger.Info().Str("event", string(ev.Type)).Str("event_id", ev.ID)
			for k, v := range ev.Metadata {
				e = e.Str(k, v)
			}
			e.Msg(ev.Message)
		case <-ctx.Done():
			return
		}
	}
}
