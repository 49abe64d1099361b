// Command nhm is the node health monitor process: it loads
// configuration, wires the observer/tracker/restart/prober/facade stack
// together behind the lifecycle participant, starts the ambient
// metrics/alerting/API layers, and blocks until shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wemix/nhm/internal/alerting"
	"github.com/wemix/nhm/internal/api"
	"github.com/wemix/nhm/internal/cli"
	"github.com/wemix/nhm/internal/config"
	"github.com/wemix/nhm/internal/lifecycle"
	"github.com/wemix/nhm/internal/metrics"
	"github.com/wemix/nhm/internal/nsm"
	"github.com/wemix/nhm/internal/observer"
	"github.com/wemix/nhm/internal/persistence"
	"github.com/wemix/nhm/internal/prober"
	"github.com/wemix/nhm/internal/servicemgr"
	"github.com/wemix/nhm/pkg/logger"
)

func main() {
	cfg := config.Default()
	if path := os.Getenv("NHM_CONFIG"); path != "" {
		cfg = config.NewManager(path, nil).Config()
	}

	log, err := logger.New(cfg.Logging.Debug, cfg.Logging.Color, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	root := cli.NewRootCommand(cfg, log, run)
	if err := root.Execute(); err != nil {
		log.Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}

// run wires and starts every component, then blocks until the lifecycle
// participant's Quit channel closes.
func run(cfg *config.Config, log *logger.Logger) error {
	gateway := persistence.NewGateway(cfg.Persistence.BaseDir, cfg.Persistence.HistoryFileName)

	supervisorClient := observer.NewHTTPSupervisorClient(cfg.Observer.SupervisorURL, cfg.Observer.Timeout)
	nsmTransport := nsm.NewHTTPTransport(cfg.NSM.TransportURL, cfg.NSM.Timeout)
	notifier := servicemgr.NewNotifier()

	opts := lifecycle.Options{
		BusName:           cfg.NSM.BusName,
		ObjName:           cfg.NSM.ObjName,
		ShutdownTimeoutMS: cfg.NSM.ShutdownTimeoutMS,
		HistoryVersion:    cfg.Persistence.HistoryVersion,
		Config:            cfg.ToConfiguration(),
	}
	participant := lifecycle.New(opts, gateway, supervisorClient, nsmTransport, notifier, log)
	participant.SetProber(buildProber(cfg, log))

	var collector *metrics.Collector
	var exporter *metrics.Exporter
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(log)
		collector.SetMaxFailedApps(cfg.Node.MaxFailedApps)
		exporter = metrics.NewExporter(collector, cfg.Metrics.Port, cfg.Metrics.Path, log)
		if err := exporter.Start(); err != nil {
			log.Error("metrics: failed to start exporter", "error", err.Error())
		}
	}

	ctx := context.Background()
	if err := participant.Start(ctx); err != nil {
		return fmt.Errorf("lifecycle start failed: %w", err)
	}

	var alertMgr *alerting.Manager
	if cfg.Alerting.Enabled && collector != nil {
		channels := []alerting.NotificationChannel{alerting.NewConsoleChannel(log)}
		if cfg.Alerting.WebhookURL != "" {
			channels = append(channels, alerting.NewWebhookChannel(cfg.Alerting.WebhookURL, 5*time.Second, log))
		}
		alertMgr = alerting.NewManager(collector, alerting.DefaultRules(), channels, cfg.Alerting.EvaluationInterval, log)
		alertMgr.Start()
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, participant.Facade(), collector, log)
		if err := apiServer.Start(); err != nil {
			log.Error("api: failed to start server", "error", err.Error())
		}
	}

	<-participant.Quit()

	if apiServer != nil {
		apiServer.Stop()
	}
	if alertMgr != nil {
		alertMgr.Stop()
	}
	if exporter != nil {
		exporter.Stop()
	}

	return nil
}

// buildProber assembles the prober's four ordered check classes from the
// userland configuration group, converting each space-separated
// monitored_procs entry into an argv.
func buildProber(cfg *config.Config, log *logger.Logger) *prober.Prober {
	classes := []prober.CheckClass{
		&prober.FilesCheck{Paths: cfg.Userland.MonitoredFiles},
		prober.NewProgramsCheck(cfg.Userland.MonitoredProgs, log),
		&prober.ProcessesCheck{Commands: splitCommands(cfg.Userland.MonitoredProcs)},
		prober.NewEndpointsCheck(cfg.Userland.MonitoredDbus, nil),
	}
	return prober.New(classes, cfg.Userland.UlChkInterval(), cfg.Observer.Timeout, log)
}

func splitCommands(procs []string) [][]string {
	commands := make([][]string, 0, len(procs))
	for _, p := range procs {
		if fields := strings.Fields(p); len(fields) > 0 {
			commands = append(commands, fields)
		}
	}
	return commands
}
