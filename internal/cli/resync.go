package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rebuild the tracking file from local archived chunks",
		Long: "Reconstruct tracking entries from archived chunk artifacts, for\n" +
			"initializing tracking after a download or recovering a lost file.",
		Run: runResync,
	}
	RootCmd.AddCommand(cmd)
}

func runResync(cmd *cobra.Command, args []string) {
	// Resync is local-only; no API key needed.
	p, log := newPipeline(false)
	err := p.Resync(cmd.Context())
	saveReport(log)
	if err != nil {
		os.Exit(1)
	}
}
