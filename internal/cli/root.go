// Package cli implements the docsync CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/opryshko/docsync/internal/config"
	"github.com/opryshko/docsync/internal/index"
	"github.com/opryshko/docsync/internal/pipeline"
	"github.com/opryshko/docsync/internal/report"
	"github.com/spf13/cobra"
)

var baseDir string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "Chunk documents and keep a vector index in sync",
	Long: "docsync splits source documents into chunks, uploads them to a vector index,\n" +
		"and tracks content hashes so re-running only touches new and changed files.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&baseDir, "dir", "C", "", "Base directory (default: $DOCSYNC_BASE_DIR or current directory)")
}

func getBaseDir() string {
	if baseDir != "" {
		return baseDir
	}
	if env := os.Getenv("DOCSYNC_BASE_DIR"); env != "" {
		return env
	}
	return "."
}

// newPipeline loads configuration and builds the pipeline plus its run
// logger. When requireKey is set, a missing API key is reported through the
// saved run report before exiting, so even aborted runs leave a report.
func newPipeline(requireKey bool) (*pipeline.Pipeline, *report.Logger) {
	cfg, err := config.Load(getBaseDir())
	if err != nil {
		exitErr("load config", err)
	}

	log := report.NewLogger(cfg.LogsDir)
	if requireKey && cfg.APIKey == "" {
		log.Error("PINECONE_API_KEY is not set (checked environment and %s)", config.FileName)
		log.Report.Status = report.StatusFailed
		saveReport(log)
		os.Exit(1)
	}

	client := index.NewPinecone("", cfg.APIKey, cfg.Index, cfg.Namespace)
	return pipeline.New(cfg, client, log), log
}

// saveReport writes the run log and report, printing their locations.
func saveReport(log *report.Logger) {
	logPath, reportPath, err := log.Save()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: save report: %v\n", err)
		return
	}
	log.Info("Log saved: %s", logPath)
	log.Info("Report saved: %s", reportPath)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
