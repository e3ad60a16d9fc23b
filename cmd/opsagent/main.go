// opsagent is an unattended host monitoring agent: it collects system
// metrics, evaluates alert rules, and remediates alerts with AI
// assistance.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goshops-com/opsagent/internal/agent"
	"github.com/goshops-com/opsagent/internal/agent/providers"
	"github.com/goshops-com/opsagent/internal/alerts"
	"github.com/goshops-com/opsagent/internal/config"
	"github.com/goshops-com/opsagent/internal/logging"
	"github.com/goshops-com/opsagent/internal/metrics"
	"github.com/goshops-com/opsagent/internal/monitor"
	"github.com/goshops-com/opsagent/internal/notifications"
	"github.com/goshops-com/opsagent/internal/rules"
	"github.com/goshops-com/opsagent/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "opsagent",
		Short:         "Host monitoring agent with AI-assisted remediation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("agent exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "opsagent",
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().
		Str("version", Version).
		Dur("interval", cfg.Interval).
		Bool("agentEnabled", cfg.Agent.Enabled).
		Bool("autoRemediate", cfg.Agent.AutoRemediate).
		Msg("starting opsagent")

	ruleSet, err := config.LoadRulesFile(cfg.RulesPath)
	if err != nil {
		return err
	}

	store, err := storage.Open(storage.Config{
		DataDir:  cfg.DataDir,
		APIURL:   cfg.APIURL,
		APIToken: cfg.APIToken,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	collector := metrics.NewCollector()
	engine := rules.NewEngine(ruleSet)
	manager := alerts.NewManager(alerts.Config{
		MaxHistory: cfg.MaxHistory,
		Cooldown:   cfg.Cooldown,
	})
	notifier := notifications.NewNotifier(cfg.WebhookURL)

	var remediator monitor.Remediator
	if cfg.Agent.Enabled {
		provider, err := providers.New(cfg.Agent.Provider, providers.Config{
			APIKey:  cfg.AIAPIKey(),
			Model:   cfg.Agent.Model,
			BaseURL: cfg.AIBaseURL(),
		})
		if err != nil {
			return err
		}
		remediator = agent.New(cfg.Agent, provider, nil, manager, store, notifier)
	} else {
		log.Info().Msg("remediation agent disabled")
	}

	mon := monitor.New(collector, engine, manager, remediator, store, notifier, cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mon.Run(ctx)
	})

	g.Go(func() error {
		return config.WatchRules(ctx, cfg.RulesPath, engine)
	})

	if cfg.MetricsListenAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsListenAddr)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("opsagent stopped")
	return nil
}

// serveMetrics exposes the Prometheus endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
