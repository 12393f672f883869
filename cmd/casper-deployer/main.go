package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/flare-foundation/casper-deployer/internal/cli"
	"github.com/flare-foundation/casper-deployer/pkg/config"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
)

func main() {
	var args cli.Args
	p := arg.MustParse(&args)

	if p.Subcommand() == nil {
		p.Fail("missing command")
	}

	if err := run(args); err != nil {
		logger.Fatal(err)
	}
}

func run(args cli.Args) error {
	cfg, err := config.Load(args.ConfigFile)
	if err != nil {
		return err
	}

	logger.Set(cfg.Logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return cli.NewApp(cfg, os.Stdout).Run(ctx, &args)
}
