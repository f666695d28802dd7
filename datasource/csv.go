package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"aqi-service/aqi"
	"aqi-service/models"
)

// epaRow is one line of the EPA daily_aqi_by_county export. Headers are
// matched after lowercasing, so "county Name" and "County Name" both work.
type epaRow struct {
	County            string `csv:"county name"`
	State             string `csv:"state name"`
	Date              string `csv:"date"`
	AQI               string `csv:"aqi"`
	Category          string `csv:"category,omitempty"`
	DefiningParameter string `csv:"defining parameter,omitempty"`
}

var requiredColumns = []string{"county name", "state name", "date", "aqi"}

var dateLayouts = []string{aqi.DateLayout, "1/2/2006"}

// CSVStats summarizes a CSV read.
type CSVStats struct {
	Rows     int `json:"rows"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// ReadAqiCSV streams samples from an EPA daily AQI export, calling fn for each
// valid row. Rows with a missing county, unparseable date or non-numeric AQI
// are counted as rejected and skipped. Category is derived from the AQI value
// when the file leaves it blank.
func ReadAqiCSV(ctx context.Context, r io.Reader, fn func(models.AqiSample) error) (CSVStats, error) {
	var stats CSVStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return stats, eris.New("datasource: csv is empty")
	}
	if err != nil {
		return stats, eris.Wrap(err, "datasource: read csv header")
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return stats, eris.Errorf("datasource: csv missing columns %s", strings.Join(missing, ", "))
	}

	dec, err := csvutil.NewDecoder(reader, header...)
	if err != nil {
		return stats, eris.Wrap(err, "datasource: create csv decoder")
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "datasource: csv read cancelled")
		}

		var row epaRow
		err := dec.Decode(&row)
		if err == io.EOF {
			break
		}
		stats.Rows++
		if errors.Is(err, csvutil.ErrFieldCount) {
			stats.Rejected++
			continue
		}
		if err != nil {
			return stats, eris.Wrapf(err, "datasource: decode csv row %d", stats.Rows+1)
		}

		sample, ok := row.sample()
		if !ok {
			stats.Rejected++
			zap.L().Debug("skipping csv row",
				zap.String("operation", "validation"),
				zap.Int("line", stats.Rows+1),
				zap.String("county", row.County),
				zap.String("date", row.Date),
				zap.String("aqi", row.AQI),
			)
			continue
		}
		if err := fn(sample); err != nil {
			return stats, err
		}
		stats.Accepted++
	}

	return stats, nil
}

// LoadAqiCSV reads every valid sample from the file at path.
func LoadAqiCSV(ctx context.Context, path string) ([]models.AqiSample, CSVStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CSVStats{}, eris.Wrapf(err, "datasource: open csv %s", path)
	}
	defer f.Close()

	var samples []models.AqiSample
	stats, err := ReadAqiCSV(ctx, f, func(s models.AqiSample) error {
		samples = append(samples, s)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	zap.L().Info("loaded csv",
		zap.String("operation", "ingestion"),
		zap.String("path", path),
		zap.Int("rows", stats.Rows),
		zap.Int("accepted", stats.Accepted),
		zap.Int("rejected", stats.Rejected),
	)
	return samples, stats, nil
}

func (r epaRow) sample() (models.AqiSample, bool) {
	county := strings.TrimSpace(r.County)
	state := strings.TrimSpace(r.State)
	if county == "" || state == "" {
		return models.AqiSample{}, false
	}

	date, ok := parseDate(r.Date)
	if !ok {
		return models.AqiSample{}, false
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(r.AQI), 64)
	if err != nil || !aqi.Classify(value).Valid() {
		return models.AqiSample{}, false
	}

	category := strings.TrimSpace(r.Category)
	if category == "" {
		category = string(aqi.Classify(value))
	}
	param := strings.TrimSpace(r.DefiningParameter)
	if param == "" {
		param = "Unknown"
	}

	return models.AqiSample{
		County:            county,
		State:             state,
		Date:              date,
		AQI:               value,
		Category:          category,
		DefiningParameter: param,
	}, true
}

func parseDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(aqi.DateLayout), true
		}
	}
	return "", false
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
