package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cliconform/internal/config"
	"github.com/roach88/cliconform/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Set by the root command before any subcommand runs. Subcommands built
	// on their own (as in tests) fall back to defaults.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func (o *RootOptions) config() config.Config {
	if o.Config != nil {
		return *o.Config
	}
	return config.Default()
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.Discard()
}

// NewRootCommand creates the root command for the cliconform CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cliconform",
		Short: "cliconform - compiler CLI conformance harness",
		Long: `Drive a command-line compiler as an external process and check the
observable contract: exit status, merged output text and the artifact
files written to an isolated workspace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = &cfg

			opts.Logger = logging.New(cmd.ErrOrStderr(), logging.Options{
				Format:  opts.Format,
				Verbose: opts.Verbose,
			})
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./"+config.DefaultFile+" if present)")

	// Add subcommands
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewOverwriteCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewPlatformCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
