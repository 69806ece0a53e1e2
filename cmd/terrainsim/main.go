package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	passes      int
	editEvery   int
	metricsAddr string
	verbose     bool

	rootCmd = &cobra.Command{
		Use:   "terrainsim",
		Short: "Runs a terrain volume with a camera flying over it",
		Long: `terrainsim creates a terrain volume from a configuration file, moves a camera across it
and carves the terrain with scripted brush edits while a consumer picks up the meshes built.`,
		SilenceUsage: true,
		RunE:         runSimulation,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "terrain.toml", "configuration file, created with defaults if missing")
	rootCmd.Flags().IntVarP(&passes, "passes", "n", 200, "number of update passes to run")
	rootCmd.Flags().IntVar(&editEvery, "edit-every", 20, "number of passes between brush edits, 0 to disable")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics", "", "address to serve Prometheus metrics on")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("terrainsim failed", "err", err)
		os.Exit(1)
	}
}
