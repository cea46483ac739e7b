package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
)

// GlobalFlags are accepted before the subcommand
type GlobalFlags struct {
	ConfigFile string
	EnvFile    string
	Verbose    bool
}

// ParseGlobalFlags parses global flags and returns the remaining arguments
func ParseGlobalFlags(args []string, output io.Writer) (GlobalFlags, []string, error) {
	var flags GlobalFlags
	fs := flag.NewFlagSet("reconciler", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (default: config.yaml, then environment)")
	fs.StringVar(&flags.EnvFile, "env-file", ".env", "Dotenv file loaded before the configuration")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return flags, nil, err
	}
	return flags, fs.Args(), nil
}

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port        int
	NoScheduler bool
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags(args []string, output io.Writer) (ServeFlags, error) {
	var flags ServeFlags
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on (default from config)")
	fs.BoolVar(&flags.NoScheduler, "no-scheduler", false, "Serve the API without periodic sweeps")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if flags.Port < 0 || flags.Port > 65535 {
		return flags, fmt.Errorf("invalid port %d", flags.Port)
	}
	return flags, nil
}

// ImportFlags holds the CLI flags for the import-csv command
type ImportFlags struct {
	OwnerID   string
	Kind      record.Kind
	Reconcile bool
	Path      string
}

// ParseImportFlags parses flags and the file argument for import-csv
func ParseImportFlags(args []string, output io.Writer) (ImportFlags, error) {
	var flags ImportFlags
	var kind string
	fs := flag.NewFlagSet("import-csv", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.OwnerID, "owner", "", "Owner the imported records belong to (required)")
	fs.StringVar(&kind, "kind", string(record.KindTransaction), "Record kind: transaction or receipt")
	fs.BoolVar(&flags.Reconcile, "reconcile", false, "Reconcile imported records right away")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	flags.Kind = record.Kind(kind)
	switch {
	case flags.OwnerID == "":
		return flags, errors.New("-owner is required")
	case !flags.Kind.Valid():
		return flags, fmt.Errorf("invalid kind %q", kind)
	case fs.NArg() != 1:
		return flags, errors.New("expected exactly one CSV file")
	}
	flags.Path = fs.Arg(0)
	return flags, nil
}
