package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aqi-service/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "aqi-service",
	Short: "County air quality dashboard backend",
	Long:  "Serves historical county AQI data, proxies forecasts from the model service, renders threshold-banded charts and snapshots predictions on a schedule.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load environment variables from .env file when present
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrap(err, "load .env")
		}

		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
