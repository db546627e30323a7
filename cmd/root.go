package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	genesisPath string
	nodeIniPath string
)

var rootCmd = &cobra.Command{
	Use:   "mcn",
	Short: "mcn is a microchain ledger validator node",
	Long:  "mcn runs per-account microchains with BFT block certification and asynchronous cross-chain messaging.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&genesisPath, "genesis", "genesis.yml", "path to the genesis config")
	rootCmd.PersistentFlags().StringVar(&nodeIniPath, "config", "node.ini", "path to the node runtime config")
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(initCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
