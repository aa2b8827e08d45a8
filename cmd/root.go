package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tinkershack/drive-revenant/cmd/config"
	"github.com/tinkershack/drive-revenant/cmd/drive"
	"github.com/tinkershack/drive-revenant/cmd/logs"
	"github.com/tinkershack/drive-revenant/cmd/serve"
	"github.com/tinkershack/drive-revenant/cmd/status"
	"github.com/tinkershack/drive-revenant/cmd/version"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "drive-revenant",
		Short: "drive-revenant: periodically probes SSD, HDD and removable drives so they do not sit idle",
	}

	rootCmd.AddCommand(serve.NewServeCmd())
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(status.NewStatusCmd())
	rootCmd.AddCommand(logs.NewLogsCmd())
	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(drive.NewDriveCmd())

	return rootCmd
}
