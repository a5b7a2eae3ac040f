package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stratus.yaml")
	content := `
integrations:
  azureBlob:
    - accountName: mystore
      accountKey: a2V5
sources:
  - id: primary
    accountName: mystore
    container: catalog
    prefix: teams/
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSourcesCommand_Table(t *testing.T) {
	path := writeTestConfig(t)

	out, err := executeCommand(t, "sources", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "azure-blob-provider:primary")
	assert.Contains(t, out, "catalog")
	assert.Contains(t, out, "teams/")
	assert.Contains(t, out, "10m0s")
}

func TestSourcesCommand_YAML(t *testing.T) {
	path := writeTestConfig(t)

	out, err := executeCommand(t, "sources", "--config", path, "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: azure-blob-provider:primary")
	assert.Contains(t, out, "container: catalog")
}

func TestSourcesCommand_UnsupportedOutput(t *testing.T) {
	path := writeTestConfig(t)

	_, err := executeCommand(t, "sources", "--config", path, "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestSourcesCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
integrations:
  azureBlob:
    - accountName: mystore
      accountKey: a2V5
      sasToken: sv=x
sources:
  - id: primary
    accountName: mystore
    container: catalog
`), 0o644))

	_, err := executeCommand(t, "sources", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid configuration")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stratus")
}
