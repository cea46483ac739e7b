package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/receipt-reconciler/internal/cli"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global, args, err := cli.ParseGlobalFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("no command given")
	}
	subcommand, subArgs := args[0], args[1:]
	if subcommand == "help" {
		printUsage()
		return nil
	}

	if err := config.LoadDotEnv(global.EnvFile); err != nil {
		return err
	}
	cfg, err := loadConfig(global.ConfigFile)
	if err != nil {
		return err
	}

	loggingCfg := cfg.Observability.Logging
	if global.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLogger(loggingCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close", slog.Any("error", err))
		}
	}()

	switch subcommand {
	case "serve":
		flags, err := cli.ParseServeFlags(subArgs, os.Stderr)
		if err != nil {
			return err
		}
		return cli.RunServe(ctx, cfg, app, flags)
	case "sweep":
		cli.PrintHeader(os.Stdout, "sweep")
		return cli.RunSweep(ctx, app, subArgs, os.Stdout)
	case "unmatch":
		if len(subArgs) != 1 {
			return fmt.Errorf("usage: reconciler unmatch <record-id>")
		}
		return cli.RunUnmatch(ctx, app, subArgs[0], os.Stdout)
	case "import-csv":
		flags, err := cli.ParseImportFlags(subArgs, os.Stderr)
		if err != nil {
			return err
		}
		cli.PrintHeader(os.Stdout, "import-csv")
		return cli.RunImportCSV(ctx, app, flags, os.Stdout)
	case "stats":
		return cli.RunStats(ctx, app.Store, os.Stdout)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", subcommand)
	}
}

// loadConfig uses an explicit file strictly; otherwise config.yaml if
// present, then environment variables.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadOrEnv(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

func printUsage() {
	fmt.Println("Receipt Reconciler")
	fmt.Println("==================")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  reconciler [global options] <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve [-port N] [-no-scheduler]                 Run the HTTP API and periodic sweeps")
	fmt.Println("  sweep [job...]                                  Sweep unmatched records now (default: all jobs)")
	fmt.Println("  unmatch <record-id>                             Break a link between two records")
	fmt.Println("  import-csv -owner ID [-kind K] [-reconcile] F   Import a CSV export")
	fmt.Println("  stats                                           Print record and match counts")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  -config string      Configuration file path")
	fmt.Println("  -env-file string    Dotenv file (default .env)")
	fmt.Println("  -verbose            Enable debug logging")
}
