package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aqi-service/datasource"
	"aqi-service/metrics"
	"aqi-service/models"
	"aqi-service/store"
)

var (
	importFile      string
	importBatchSize int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an EPA daily AQI CSV export into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Store.Driver == "memory" {
			return eris.New("import needs a persistent store (set AQI_STORE_DRIVER to sqlite or postgres)")
		}
		path := importFile
		if path == "" {
			path = cfg.Store.CSVPath
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		stats, written, err := importSamples(ctx, st, f, importBatchSize)
		metrics.RecordImport(stats.Accepted, stats.Rejected)
		if err != nil {
			return eris.Wrap(err, "import csv")
		}

		zap.L().Info("import complete",
			zap.String("operation", "ingestion"),
			zap.String("csv", path),
			zap.Int("rows", stats.Rows),
			zap.Int("accepted", stats.Accepted),
			zap.Int("rejected", stats.Rejected),
			zap.Int("written", written),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to CSV file (default from config)")
	importCmd.Flags().IntVar(&importBatchSize, "batch", 500, "rows per upsert batch")
	rootCmd.AddCommand(importCmd)
}

// importSamples streams r into st in batches and returns the CSV stats and
// the number of samples written
func importSamples(ctx context.Context, st store.Store, r io.Reader, batchSize int) (datasource.CSVStats, int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	written := 0
	batch := make([]models.AqiSample, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := st.UpsertSamples(ctx, batch)
		if err != nil {
			return err
		}
		written += n
		batch = batch[:0]
		return nil
	}

	stats, err := datasource.ReadAqiCSV(ctx, r, func(s models.AqiSample) error {
		batch = append(batch, s)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return stats, written, err
	}
	if err := flush(); err != nil {
		return stats, written, err
	}
	return stats, written, nil
}
