package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/indielab/kaish/core/config"
)

// initCmd writes the default configuration into the current directory.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the kaish configuration in the current directory.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		path, err := config.Initialize(".")
		if err != nil {
			return err
		}
		log.Printf("Wrote %s", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
