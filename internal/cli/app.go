package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"

	"sessionrotor/internal/api"
	"sessionrotor/internal/automation"
	"sessionrotor/internal/config"
	"sessionrotor/internal/container"
	"sessionrotor/internal/credential"
	"sessionrotor/internal/downstream"
	"sessionrotor/internal/history"
	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/logging"
	"sessionrotor/internal/metrics"
	"sessionrotor/internal/output"
	"sessionrotor/internal/prune"
	"sessionrotor/internal/scheduler"
	"sessionrotor/internal/settings"
	"sessionrotor/internal/workflow"
)

// NewApp wires the production services described by cfg.
func NewApp(cfg *config.Config) (*App, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Log:      log,
		Printer:  output.NewPrinter(),
		Settings: store,
	}

	clock := clockwork.NewRealClock()
	restarter, err := container.NewDockerRestarter(clock, cfg.Docker.StopTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	app.closers = append(app.closers, restarter.Close)

	reg := metrics.NewRegistry()
	ledger := history.NewLedger()
	handle := automation.NewHandle(automation.HTTPFactory(cfg.Automation.RequestTimeout), log)
	detector := ipdetect.NewDetector(
		&http.Client{Timeout: cfg.IPDetect.Timeout},
		cfg.IPDetect.ExternalURL,
		cfg.IPDetect.FallbackURL,
		log,
	)

	catalog, err := workflow.DefaultCatalog(workflow.Dependencies{
		Cache:          credential.NewCache(clock),
		Handle:         handle,
		Restarter:      restarter,
		Sender:         downstream.NewHTTPSender(&http.Client{Timeout: cfg.Automation.RequestTimeout}),
		Pruner:         prune.NewPruner(clock, cfg.Pruner.SettleDelay, log),
		Detector:       detector,
		RestartTimeout: cfg.Docker.RestartTimeout,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	engine := workflow.NewEngine(store, cfg.Engine.StepTimeout, clock, log)
	runner := workflow.NewRunner(engine, catalog, ledger, handle, log)
	runner.SetMetrics(metrics.NewWorkflowMetrics(reg))

	sched := scheduler.New(clock, cfg.Scheduler.PollInterval, scheduledRun(runner), ledger, log)
	app.closers = append(app.closers, func() error {
		sched.Close()
		return nil
	})

	app.Engine = engine
	app.Runner = runner
	app.Detector = detector
	app.Scheduler = sched
	app.Server = api.NewServer(api.Deps{
		Scheduler: sched,
		Runner:    runner,
		Settings:  store,
		Detector:  detector,
		Registry:  reg,
	}, log)
	return app, nil
}

// scheduledRun is the scheduler trigger: one rotate-all run.
func scheduledRun(r *workflow.Runner) scheduler.Trigger {
	return func(ctx context.Context) error {
		_, err := r.Run(ctx, workflow.RotateAll)
		return err
	}
}
