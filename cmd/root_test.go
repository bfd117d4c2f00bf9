//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"trips", "ingest", "resolve", "items", "reconstruct", "runs", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "itinerary-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestTripsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range tripsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"create", "rename", "list", "show", "export"} {
		assert.True(t, names[name], "expected trips subcommand %q not found", name)
	}
}

func TestItemsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range itemsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["confirm"])
	assert.True(t, names["dismiss"])
}

func TestIngestCommand_Flags(t *testing.T) {
	for _, name := range []string{"text", "file", "mode", "timezone", "retries", "json"} {
		require.NotNil(t, ingestCmd.Flags().Lookup(name), "ingest command should have --%s flag", name)
	}
	assert.Equal(t, "", ingestCmd.Flags().Lookup("mode").DefValue)
}

func TestRunsCommand_Flags(t *testing.T) {
	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)

	flag = runsStatsCmd.Flags().Lookup("hours")
	require.NotNil(t, flag)
	assert.Equal(t, "24", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := tripsExportCmd.Flags().Lookup("ics")
	require.NotNil(t, flag, "export command should have --ics flag")
}
