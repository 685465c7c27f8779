package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)
	assert.Equal(t, testVersion, rootCmd.Version)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "fleetmgr", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{Use: "test", Version: "1.0.0"}
	testCmd.SetVersionTemplate(`{{printf "fleetmgr version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	require.NoError(t, testCmd.Execute())

	assert.Equal(t, "fleetmgr version 1.0.0\n", buf.String())
}

func TestSubcommandsRegistered(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}

	for _, name := range []string{"version", "start", "stop", "status", "restart", "gen-gateway-config"} {
		assert.True(t, found[name], "expected subcommand %s to be registered", name)
	}
}

func TestGetExitCode_UnwrapsCommandError(t *testing.T) {
	err := CommandError{Code: ExitStartPortConflict, Err: errors.New("port busy")}
	assert.Equal(t, ExitStartPortConflict, getExitCode(err))
}

func TestGetExitCode_DefaultsToGeneralError(t *testing.T) {
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("boom")))
}
