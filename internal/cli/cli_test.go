package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/internal/cli"
)

// run executes the root command against the workspace in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := cli.NewRootCmd()
	cmd.SetArgs(append([]string{"--dir", dir, "--log-level", "error"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.ExecuteContext(t.Context())

	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()

	out, err := run(t, dir, args...)
	require.NoError(t, err, "rulepool %v", args)

	return out
}

func TestWorkflow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	mustRun(t, dir, "config", "init")
	require.FileExists(t, filepath.Join(dir, "rulepool.yaml"))

	mustRun(t, dir, "rules", "create",
		"--id", "sec-1",
		"--title", "No secrets",
		"--content", "Never commit secrets.",
		"--category", "SECURITY_RULES",
		"--urgency", "CRITICAL",
		"--tag", "security",
	)
	mustRun(t, dir, "rules", "create",
		"--id", "task-1",
		"--title", "Track tasks",
		"--content", "Keep the task list current.",
		"--category", "TASK_MANAGEMENT",
		"--urgency", "HIGH",
	)
	require.FileExists(t, filepath.Join(dir, "data", "rule-pool.json"))

	out := mustRun(t, dir, "rules", "search", "--category", "SECURITY_RULES", "-o", "json")

	var found []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "sec-1", found[0].ID)

	_, err := run(t, dir, "rules", "get", "sec")
	require.ErrorContains(t, err, "did you mean: sec-1")

	modePath := filepath.Join(dir, "modes", "ent.json")

	out = mustRun(t, dir, "modes", "create", "enterprise", "--id", "ent", "--name", "Team")
	assert.Equal(t, modePath+"\n", out)

	_, err = run(t, dir, "modes", "create", "enterprise", "--id", "ent", "--name", "Team")
	require.ErrorContains(t, err, "already exists")

	out = mustRun(t, dir, "modes", "validate", modePath)
	assert.Contains(t, out, "ent: 2 rules")

	out = mustRun(t, dir, "generate", modePath, "--dry-run")
	assert.Contains(t, out, "generated 11 files for Team")
	assert.NoDirExists(t, filepath.Join(dir, "generated"))

	mustRun(t, dir, "generate", modePath)
	assert.FileExists(t, filepath.Join(dir, "generated", "copilot-instructions.md"))

	out = mustRun(t, dir, "render", modePath, "--raw")
	assert.Contains(t, out, "No secrets")
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args []string
		want string
	}{
		"unknown mode type": {
			args: []string{"modes", "create", "galaxy"},
			want: "galaxy",
		},
		"bad urgency": {
			args: []string{"rules", "create", "--title", "x", "--urgency", "URGENT"},
			want: "URGENT",
		},
		"missing mode file": {
			args: []string{"generate", "missing.json"},
			want: "missing.json",
		},
		"dry run and watch": {
			args: []string{"generate", "x.json", "--dry-run", "--watch"},
			want: "none of the others can be",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := run(t, t.TempDir(), tc.args...)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out := mustRun(t, t.TempDir(), "version", "-o", "json")

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "goVersion")
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "rulepool.yaml"), []byte(
		"apiVersion: rulepool.jacobcolvin.com/v1beta1\n"+
			"kind: Configuration\n"+
			"pool:\n  driver: memory\n"+
			"output:\n  wrapWidth: 72\n",
	), 0o600))

	out := mustRun(t, dir, "config", "show", "-o", "json")

	var cfg struct {
		Pool struct {
			Driver string `json:"driver"`
		} `json:"pool"`
		Output struct {
			WrapWidth int `json:"wrapWidth"`
		} `json:"output"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "memory", cfg.Pool.Driver)
	assert.Equal(t, 72, cfg.Output.WrapWidth)
}
