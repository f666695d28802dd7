package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the store schema",
	Long:  "Creates the AQI history and prediction log tables for the configured sqlite or postgres store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		zap.L().Info("migrations applied", zap.String("driver", st.Driver()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
