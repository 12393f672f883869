package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/flare-foundation/casper-deployer/pkg/config"
	"github.com/flare-foundation/casper-deployer/pkg/rpc"
	"github.com/flare-foundation/casper-deployer/pkg/scanner"
	"github.com/flare-foundation/casper-deployer/pkg/store"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

type CLIArgs struct {
	ConfigFile string `arg:"--config,env:CONFIG_FILE" help:"TOML config file"`
	Output     string `arg:"--output" help:"CSV file to resume from and write to (default from config)"`
	RPC        string `arg:"--rpc" help:"node RPC URL (default from config)"`
}

func (CLIArgs) Version() string {
	return "undelegations " + config.ReadBuildVersion().String()
}

func (CLIArgs) Description() string {
	return "Scans the chain for undelegate deploys and records them."
}

func main() {
	var args CLIArgs
	arg.MustParse(&args)

	if err := run(args); err != nil {
		logger.Fatal(err)
	}
}

func run(args CLIArgs) error {
	cfg, err := config.Load(args.ConfigFile)
	if err != nil {
		return err
	}

	logger.Set(cfg.Logger)

	if args.Output != "" {
		cfg.Scanner.OutputFile = args.Output
	}

	url := args.RPC
	if url == "" {
		n, err := cfg.Network(cfg.Scanner.Network)
		if err != nil {
			return err
		}
		url = n.RPC
	}

	s, err := newStore(cfg)
	if err != nil {
		return err
	}

	// Saving must outlive the scan context, which is cancelled by signals.
	save := func(records []store.Undelegation) error {
		return s.Save(context.Background(), records)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	records, err := s.Load(ctx)
	if err != nil {
		return err
	}

	client := rpc.NewClient(url, cfg.Timeout.RequestTimeout())
	node := rpc.NewRetrying(client, cfg.Timeout.BackoffMaxElapsedTime(), cfg.Timeout.RequestTimeout())

	records, err = scanner.New(node, cfg.Scanner, save).Run(ctx, records, save)
	return exitError(err, len(records))
}

// exitError maps the outcome of a scan to the process result. Completion,
// interruption and a failed scan all exit cleanly once the records are
// flushed; only a failed flush is fatal.
func exitError(err error, saved int) error {
	var flushErr *scanner.FlushError
	switch {
	case errors.As(err, &flushErr):
		return err
	case errors.Is(err, context.Canceled):
		logger.Infof("interrupted, saved %d records", saved)
	case err != nil:
		logger.Errorf("scan stopped: %v", err)
		logger.Infof("saved %d records", saved)
	default:
		logger.Infof("saved %d records", saved)
	}

	return nil
}

func newStore(cfg *config.BaseConfig) (store.Store, error) {
	switch cfg.Scanner.Storage {
	case config.StoragePostgres:
		return store.NewDBStore(&cfg.DB)
	default:
		return store.NewCSVStore(cfg.Scanner.OutputFile), nil
	}
}
