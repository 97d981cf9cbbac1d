package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func executeCommand(cmd *cobra.Command, args ...string) (string, string, error) {
	cmd.SetArgs(args)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// isolateEnv hides the process environment from configuration loading.
func isolateEnv(t *testing.T) {
	t.Helper()
	original := lookupEnv
	lookupEnv = func(string) (string, bool) { return "", false }
	t.Cleanup(func() { lookupEnv = original })
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jumpgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
