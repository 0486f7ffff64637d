package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	tft "github.com/trafficflow/tft"
	"github.com/trafficflow/tft/flags"
	"github.com/trafficflow/tft/logging"
	"github.com/trafficflow/tft/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "tft"
	app.Usage = "Kubernetes Traffic Flow Tests"
	app.Description = "tft measures traffic performance between pods, services and external hosts"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if tft.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if tft.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "application failed: %v\n", err)
		os.Exit(2)
	}
}

func run(ctx *cli.Context) error {
	log, err := logging.New(logging.Config{
		Level: ctx.String(flags.LogLevel.Name),
		File:  ctx.String(flags.LogFile.Name),
	})
	if err != nil {
		return tft.NewRuntimeError(fmt.Errorf("failed to create logger: %w", err))
	}
	defer func() { _ = log.Sync() }()

	cfg, err := tft.NewConfig(ctx, log)
	if err != nil {
		return tft.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	log.Debugw("Config created", "plan", cfg.PlanFile, "cluster_mode", cfg.ClusterMode)

	svc := service.New(log)
	svc.Start(ctx.Context)
	defer svc.Shutdown()

	runner, err := tft.New(ctx.Context, cfg, Version)
	if err != nil {
		return tft.NewRuntimeError(fmt.Errorf("failed to create test runner: %w", err))
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runner.Run(runCtx)
}
