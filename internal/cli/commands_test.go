package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crisisInput = `{"vix": 38, "spy_price": 380, "treasury_10y": 3.0, "treasury_2y": 3.6}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AEGIS_DATA_DIR", dir)
	return dir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "aegisctl dev\n", out)
}

func TestWorkflows(t *testing.T) {
	setup(t)
	out, err := execute(t, "workflows")
	require.NoError(t, err)
	assert.Equal(t, "full_cycle\nrebalance_cycle\nregime_detection\ntrade_validation\n", out)
}

func TestRun_WithInputIsAudited(t *testing.T) {
	dir := setup(t)
	input := writeFile(t, dir, "input.json", crisisInput)

	out, err := execute(t, "run", "regime_detection", "--input", input)
	require.NoError(t, err)

	var res struct {
		Success bool `json:"success"`
		Regime  struct {
			Regime string `json:"regime"`
		} `json:"regime_detection"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "crisis", res.Regime.Regime)

	out, err = execute(t, "audit", "workflows")
	require.NoError(t, err)
	var runs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Len(t, runs, 1)

	out, err = execute(t, "audit", "decisions", "--agent", "oracle", "--since", "1h")
	require.NoError(t, err)
	var decisions []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decisions))
	assert.Len(t, decisions, 1)

	out, err = execute(t, "audit", "verdicts")
	require.NoError(t, err)
	assert.Contains(t, out, `"REGIME_DETECTION": 1`)
}

func TestRun_FromSnapshot(t *testing.T) {
	dir := setup(t)
	snapshot := writeFile(t, dir, "snap.json", `{"indicators": `+crisisInput+`}`)

	out, err := execute(t, "--no-audit", "run", "regime_detection", "--snapshot", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, `"regime": "crisis"`)

	_, err = execute(t, "--no-audit", "audit", "workflows")
	assert.ErrorContains(t, err, "audit trail disabled")
}

func TestRun_Failures(t *testing.T) {
	dir := setup(t)

	_, err := execute(t, "run", "regime_detection")
	assert.ErrorContains(t, err, "failed to read snapshot")

	input := writeFile(t, dir, "input.json", crisisInput)
	out, err := execute(t, "run", "teleport", "--input", input)
	assert.ErrorContains(t, err, "unknown workflow")
	assert.Contains(t, out, `"success": false`)
}

func TestAgent(t *testing.T) {
	dir := setup(t)
	good := writeFile(t, dir, "good.json", crisisInput)
	bad := writeFile(t, dir, "bad.json", `{"vix": "high"}`)

	out, err := execute(t, "agent", "oracle", "--input", good)
	require.NoError(t, err)
	assert.Contains(t, out, `"decision_type": "REGIME_DETECTION"`)

	_, err = execute(t, "agent", "oracle", "--input", bad)
	assert.ErrorContains(t, err, "agent oracle failed")

	_, err = execute(t, "agent", "nobody", "--input", good)
	assert.Error(t, err)

	_, err = execute(t, "agent", "oracle")
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	setup(t)
	out, err := execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Equal(t, "configuration OK\n", out)

	t.Setenv("SENTINEL_MAX_LEVERAGE", "-2")
	_, err = execute(t, "config", "validate")
	assert.Error(t, err)
}

func TestBackup_NotConfigured(t *testing.T) {
	setup(t)
	_, err := execute(t, "backup", "list")
	assert.ErrorContains(t, err, "backups not configured")
}

func TestConfigShow_HidesCredentials(t *testing.T) {
	setup(t)
	t.Setenv("AEGIS_BACKUP_BUCKET", "audit-backups")
	t.Setenv("AEGIS_BACKUP_ACCESS_KEY_ID", "key-id")
	t.Setenv("AEGIS_BACKUP_SECRET_ACCESS_KEY", "very-secret")

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "audit-backups")
	assert.NotContains(t, out, "very-secret")
}
