package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cliconform/internal/platform"
)

// PlatformInfo describes the host for scenario selection.
type PlatformInfo struct {
	Platform     platform.Platform     `json:"platform"`
	Capabilities []platform.Capability `json:"capabilities"`
	Missing      []platform.Capability `json:"missing"`
}

// NewPlatformCommand creates the platform command.
func NewPlatformCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "platform",
		Short: "Show platform capabilities used to skip scenarios",
		Long: `Show the current OS/architecture and which capabilities scenarios
may require with "requires:" are available.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := platform.Current()
			info := PlatformInfo{
				Platform:     p,
				Capabilities: p.Capabilities(),
				Missing:      p.Missing(platform.All...),
			}
			if info.Capabilities == nil {
				info.Capabilities = []platform.Capability{}
			}
			if info.Missing == nil {
				info.Missing = []platform.Capability{}
			}

			if rootOpts.Format == "json" {
				formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
				return formatter.Success(info)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Platform: %s\n", p)
			for _, c := range platform.All {
				mark := "✗"
				if p.Supports(c) {
					mark = "✓"
				}
				fmt.Fprintf(w, "  %s %s\n", mark, c)
			}
			return nil
		},
	}
}
