package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/hotkv/cmd/bench"
	"github.com/ValentinKolb/hotkv/cmd/snapshot"
	"github.com/ValentinKolb/hotkv/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hotkv",
		Short: "ordered in-memory key-value engine",
		Long: fmt.Sprintf(`hotkv (v%s)

An in-memory, ordered key-value engine written in Go, built on
height-optimized tries. The command line tool benchmarks the
engine and creates, inspects and scans engine snapshots.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hotkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hotkv v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(snapshot.SnapshotCmd)
	RootCmd.AddCommand(snapshot.InspectCmd)
	RootCmd.AddCommand(snapshot.ScanCmd)

	// Add Flags
	util.SetupEngineFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
