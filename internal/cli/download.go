package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download all indexed chunks as a local backup",
		Long: "Fetch every record from the remote namespace and write one archived\n" +
			"artifact per source document, plus an _index.json summary.",
		Run: runDownload,
	}
	RootCmd.AddCommand(cmd)
}

func runDownload(cmd *cobra.Command, args []string) {
	p, log := newPipeline(true)
	err := p.Download(cmd.Context())
	saveReport(log)
	if err != nil {
		os.Exit(1)
	}
}
