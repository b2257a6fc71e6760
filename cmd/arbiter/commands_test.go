package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"IBM", "aapl"}, splitList(" IBM, ,aapl ,"))
	assert.Equal(t, []string{}, splitList(""))
}

func TestSessionSetOnlyChangedFlags(t *testing.T) {
	cmd := newSessionCmd(&cliEnv{})
	set, _, err := cmd.Find([]string{"set"})
	require.NoError(t, err)
	require.NoError(t, set.Flags().Parse([]string{"--max-trades", "7", "--wishlist", "ibm,msft"}))

	u := sessionFlags{maxTrades: 7, wishlist: "ibm,msft"}.update(set)
	require.NotNil(t, u.MaxTradesPerDay)
	assert.Equal(t, 7, *u.MaxTradesPerDay)
	require.NotNil(t, u.Wishlist)
	assert.Equal(t, []string{"ibm", "msft"}, *u.Wishlist)
	assert.Nil(t, u.Status)
	assert.Nil(t, u.MaxCapital)
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("ARBITER_CONFIG", "")
	assert.Equal(t, "custom.yaml", resolveConfigPath(" custom.yaml "))
	t.Setenv("ARBITER_CONFIG", "/etc/arbiter.yaml")
	assert.Equal(t, "/etc/arbiter.yaml", resolveConfigPath(""))
}

func TestJudgeAndLoopCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARBITER_CONFIG", "")
	t.Setenv("ARBITER_STORE_PATH", filepath.Join(dir, "arbiter.db"))
	t.Setenv("ARBITER_STORE_DECISION_LOG_PATH", filepath.Join(dir, "decisions.db"))
	t.Setenv("ARBITER_APP_LOG_PATH", filepath.Join(dir, "arbiter.log"))

	run := func(args ...string) string {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(args)
		require.NoError(t, root.Execute())
		return out.String()
	}

	assert.Contains(t, run("judge", "IBM"), `"symbol": "IBM"`)
	assert.Contains(t, run("session", "set", "--status", "RUNNING"), `"RUNNING"`)
	assert.Contains(t, run("loop"), `"status": "SUCCESS"`)
	assert.Contains(t, run("config", "show"), "active_source")
}
