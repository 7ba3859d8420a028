package cli

import (
	"flag"
	"fmt"
)

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Config  string
	Port    int
	Verbose bool
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags(args []string) (*ServeFlags, error) {
	flags := &ServeFlags{}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&flags.Config, "config", "config.yaml", "Configuration file path (falls back to environment)")
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on (0 = from config)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// CommandFlags are the flags shared by the one-shot subcommands.
type CommandFlags struct {
	Config        string
	Verbose       bool
	Days          int
	MinConfidence float64
	Limit         int
	Confirm       bool
}

// ParseCommandFlags parses the flags of subcommand cmd.
func ParseCommandFlags(cmd string, args []string) (*CommandFlags, error) {
	flags := &CommandFlags{}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.StringVar(&flags.Config, "config", "config.yaml", "Configuration file path (falls back to environment)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")

	switch cmd {
	case CommandReconcile:
		fs.IntVar(&flags.Days, "days", 7, "Days of deposits to reconcile (1-90)")
		fs.Float64Var(&flags.MinConfidence, "min-confidence", 0.7, "Minimum match confidence (0.2-1.0)")
	case CommandUnmatched:
		fs.IntVar(&flags.Limit, "limit", 50, "Maximum deposits to list (1-200)")
	case CommandReset:
		fs.BoolVar(&flags.Confirm, "confirm", false, "Confirm clearing the ledger")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, flags.validate(cmd)
}

func (f *CommandFlags) validate(cmd string) error {
	switch cmd {
	case CommandReconcile:
		if f.Days < 1 || f.Days > 90 {
			return fmt.Errorf("days must be between 1 and 90")
		}
		if f.MinConfidence < 0.2 || f.MinConfidence > 1.0 {
			return fmt.Errorf("min-confidence must be between 0.2 and 1.0")
		}
	case CommandUnmatched:
		if f.Limit < 1 || f.Limit > 200 {
			return fmt.Errorf("limit must be between 1 and 200")
		}
	}
	return nil
}
