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

	// Verify expected subcommands are registered.
	expected := []string{"resolve", "batch", "serve", "records"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "address-resolver", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestResolveCommand_Flags(t *testing.T) {
	for _, name := range []string{"first", "last", "city", "state", "employment", "education", "export"} {
		flag := resolveCmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "resolve should have --%s flag", name)
	}
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("retry-rejected")
	require.NotNil(t, flag, "batch command should have --retry-rejected flag")
	assert.Equal(t, "false", flag.DefValue)

	limit := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "0", limit.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRecordsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range recordsCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"list", "show", "export", "stats", "health"}
	for _, name := range expected {
		assert.True(t, names[name], "records should have subcommand %q", name)
	}
}

func TestRecordsCommand_Flags(t *testing.T) {
	assert.Equal(t, "50", recordsListCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "0", recordsExportCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "json", recordsExportCmd.Flags().Lookup("format").DefValue)
	assert.Nil(t, recordsListCmd.Flags().Lookup("format"))
}
