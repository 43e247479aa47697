package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/robfig/cron/v3"

	"github.com/imrishuroy/leadflow/internal/app"
	"github.com/imrishuroy/leadflow/internal/config"
	"github.com/imrishuroy/leadflow/internal/logging"
)

func main() {
	logging.InitLogger("leadflow-sweeper")

	cfg := config.Load()
	deps, err := app.Build(context.Background(), cfg)
	if err != nil {
		logging.Logger.WithError(err).Fatal("failed to init dependencies")
	}

	var sweeper *Sweeper
	if deps.Metrics != nil {
		sweeper = NewSweeper(deps.Orders, deps.Metrics)
	} else {
		sweeper = NewSweeper(deps.Orders, nil)
	}

	// If RUN_LOCAL=true, sweep on SWEEP_SCHEDULE instead of waiting for EventBridge.
	if cfg.RunLocal {
		c := cron.New()
		if _, err := c.AddFunc(cfg.SweepSpec, func() {
			if _, err := sweeper.Run(context.Background()); err != nil {
				logging.Logger.WithError(err).Error("sweep failed")
			}
		}); err != nil {
			logging.Logger.WithError(err).Fatalf("invalid SWEEP_SCHEDULE %q", cfg.SweepSpec)
		}
		c.Start()
		logging.Logger.Infof("sweeper running locally on schedule %q", cfg.SweepSpec)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		<-c.Stop().Done()
		return
	}

	lambda.Start(sweeper.Handle)
}
