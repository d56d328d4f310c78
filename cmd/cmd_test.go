package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sita/sidang/app"
	"github.com/sita/sidang/core/sidang"
	"github.com/sita/sidang/internal/fixture"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := fmt.Sprintf(`store:
  backend: sqlite
  path: %q
journal:
  type: jsonl
  conf:
    path: %q
logging:
  level: error
`, filepath.Join(dir, "sidang.db"), filepath.Join(dir, "runs.jsonl"))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestSeedForecastGenerate(t *testing.T) {
	cfg := writeConfig(t)
	demo := filepath.Join("..", "fixtures", "demo.yaml")

	out, err := execute(t, "--config", cfg, "seed", demo)
	require.NoError(t, err, out)
	var sum fixture.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 8, sum.Lecturers)
	assert.Equal(t, 5, sum.Candidates)

	out, err = execute(t, "--config", cfg, "forecast")
	require.NoError(t, err, out)
	var f sidang.Forecast
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	assert.Equal(t, 4, f.Candidates)
	assert.Equal(t, 2, f.Rooms)

	out, err = execute(t, "--config", cfg, "generate")
	require.NoError(t, err, out)
	var res app.GenerateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Exams, 4)

	_, err = execute(t, "--config", cfg, "generate")
	assert.True(t, errors.Is(err, sidang.ErrNoCandidates), "got %v", err)
}

func TestSeedRejectsMissingFixture(t *testing.T) {
	cfg := writeConfig(t)
	_, err := execute(t, "--config", cfg, "seed", filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
	_, err = execute(t, "--config", cfg, "seed")
	assert.Error(t, err)
}
