package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"aqi-service/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "import", "migrate", "categories"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "aqi-service", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	flag := importCmd.Flags().Lookup("file")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)

	batch := importCmd.Flags().Lookup("batch")
	require.NotNil(t, batch)
	assert.Equal(t, "500", batch.DefValue)
}

func TestWriteCategories_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCategories(&buf, "table"))

	out := buf.String()
	assert.Contains(t, out, "Good")
	assert.Contains(t, out, "301-500")
	assert.Contains(t, out, "#7E0023")
}

func TestWriteCategories_JSONAndYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCategories(&buf, "json"))
	var rows []categoryRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 6)
	assert.Equal(t, 51, rows[1].Low)
	assert.NotEmpty(t, rows[5].Advisory)

	buf.Reset()
	require.NoError(t, writeCategories(&buf, "yaml"))
	var fromYAML []categoryRow
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, rows, fromYAML)

	assert.Error(t, writeCategories(&buf, "xml"))
}

func TestImportSamples(t *testing.T) {
	csv := strings.Join([]string{
		"State Name,county Name,State Code,County Code,Date,AQI,Category,Defining Parameter,Defining Site,Number of Sites Reporting",
		"Illinois,Cook,17,031,2024-01-01,42,Good,PM2.5,17-031-0001,5",
		"Illinois,Cook,17,031,2024-01-02,not-a-number,Good,PM2.5,17-031-0001,5",
		"Illinois,Cook,17,031,2024-01-03,77,Moderate,Ozone,17-031-0001,5",
		"Texas,Harris,48,201,2024-01-01,55,Moderate,Ozone,48-201-0001,7",
	}, "\n")

	st := store.NewMemoryStore()
	stats, written, err := importSamples(context.Background(), st, strings.NewReader(csv), 2)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 3, stats.Accepted)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 3, written)

	history, err := st.GetHistory(context.Background(), "Cook", "Illinois", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2024-01-03", history[1].Date)
}
