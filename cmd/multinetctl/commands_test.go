package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFormatsCommand(t *testing.T) {
	out, err := execute(t, "", "formats")
	require.NoError(t, err)

	for _, key := range []string{"csv", "d3_json", "nested_json", "newick"} {
		assert.Contains(t, out, key)
	}
	assert.Contains(t, out, "<table>_nodes")
}

func TestValidateCommand_Plan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,a\n2,b\n"), 0o600))

	out, err := execute(t, "", "validate", "--format", "csv", "--key", "id", path)
	require.NoError(t, err)

	var got struct {
		Format string         `json:"format"`
		Counts map[string]int `json:"counts"`
		Tables []struct {
			Name      string `json:"name"`
			Kind      string `json:"kind"`
			Documents int    `json:"documents"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "csv", got.Format)
	assert.Equal(t, map[string]int{"count": 2}, got.Counts)
	require.Len(t, got.Tables, 1)
	assert.Equal(t, "people", got.Tables[0].Name)
	assert.Equal(t, "node", got.Tables[0].Kind)
	assert.Equal(t, 2, got.Tables[0].Documents)
}

func TestValidateCommand_Rejected(t *testing.T) {
	out, err := execute(t, "(A,A)R;", "validate", "-f", "newick", "-t", "tree", "-")
	assert.ErrorIs(t, err, errRejected)
	assert.JSONEq(t, `{"errors":[{"type":"DuplicateKey","key":"A"}]}`, out)
}

func TestValidateCommand_Errors(t *testing.T) {
	_, err := execute(t, "", "validate", "-f", "xml", "-")
	assert.ErrorContains(t, err, "unknown upload format")

	_, err = execute(t, "", "validate", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = execute(t, "", "validate")
	assert.Error(t, err)
}

func TestTableFromPath(t *testing.T) {
	assert.Equal(t, "people", tableFromPath("data/people.csv"))
	assert.Equal(t, "tree", tableFromPath("tree"))
	assert.Equal(t, "stdin", tableFromPath("-"))
}
