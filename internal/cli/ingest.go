package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk pending documents and upload them to the index",
		Long: "Scan the source directory, chunk new and changed documents, delete\n" +
			"orphaned chunks, upload the new ones, and archive what succeeded.",
		Run: runIngest,
	}
	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	p, log := newPipeline(true)
	err := p.Ingest(cmd.Context())
	saveReport(log)
	if err != nil {
		os.Exit(1)
	}
}
