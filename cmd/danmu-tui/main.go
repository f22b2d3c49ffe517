package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wintopic/iDanmu-Speed/internal/config"
	"github.com/wintopic/iDanmu-Speed/internal/logging"
	"github.com/wintopic/iDanmu-Speed/internal/tui"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:          "danmu-tui",
	Short:        "Interactive danmu batch downloader",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		// The alt screen owns stdout; keep log lines off it.
		logging.Discard()

		settings := config.DefaultSettings()
		if configFlag != "" {
			var err error
			if settings, err = config.Load(configFlag); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		}
		return tui.Run(settings)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Path to JSON config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
