package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/navi/internal/database"
	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/offline"
	"github.com/jask/navi/internal/remote"
)

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("NAVI_CONFIG", filepath.Join(home, "config.toml"))
	dbPath := filepath.Join(home, "navi.db")
	t.Setenv("NAVI_DATABASE_PATH", dbPath)
	t.Setenv("NAVI_REMOTE_DRIVER", "memory")
	t.Setenv("NAVI_LOG_LEVEL", "error")

	db, err := database.OpenAndMigrate(dbPath)
	require.NoError(t, err)
	defer db.Close()
	cache := offline.New(db)
	require.NoError(t, cache.SaveDashboard(context.Background(), offline.DashboardSnapshot{
		Collections: map[string][]remote.Record{
			finance.CollectionAllocations: {{
				"id": "a1", "name": "Living Wallet", "category": "living",
				"total_budget": 500.0, "current_balance": 400.0, "cycle_id": "c1",
			}},
		},
	}))
	return home
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	require.NoError(t, root.ExecuteContext(context.Background()))
	return out.String()
}

func decodeLine(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestToolConfirmedWriteSurvivesRestart(t *testing.T) {
	setupHome(t)

	res := decodeLine(t, run(t, "tool", "log_expense", `{"amount":25,"description":"lunch"}`, "--yes"))
	require.Equal(t, true, res["success"])
	require.EqualValues(t, 375, res["newBalance"])

	res = decodeLine(t, run(t, "tool", "search_allocations", `{"query":"living"}`))
	require.EqualValues(t, 1, res["count"])
	wallets := res["wallets"].([]any)
	require.EqualValues(t, 375, wallets[0].(map[string]any)["current_balance"])
}

func TestToolCancelledLeavesBalance(t *testing.T) {
	setupHome(t)

	res := decodeLine(t, run(t, "tool", "log_expense", `{"amount":25,"description":"lunch"}`, "--no"))
	require.Equal(t, true, res["cancelled"])

	res = decodeLine(t, run(t, "tool", "search_allocations", `{}`))
	wallets := res["wallets"].([]any)
	require.EqualValues(t, 400, wallets[0].(map[string]any)["current_balance"])
}

func TestQueueEmpty(t *testing.T) {
	setupHome(t)
	require.Contains(t, run(t, "queue"), "nothing queued")
}

func TestResetNeedsForce(t *testing.T) {
	setupHome(t)
	root := newRootCmd()
	root.SetArgs([]string{"reset"})
	root.SetOut(&bytes.Buffer{})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "--force")
}

func TestSeedThenStats(t *testing.T) {
	setupHome(t)
	require.Contains(t, run(t, "seed"), "seeded 4 wallets")

	out := run(t, "stats")
	require.Contains(t, out, "Living Wallet")
	require.Contains(t, out, "last sync")

	res := decodeLine(t, run(t, "tool", "search_debts", `{"query":"visa"}`))
	require.EqualValues(t, 1, res["count"])
}

func TestInitWritesConfigOnce(t *testing.T) {
	home := setupHome(t)
	require.Contains(t, run(t, "init"), filepath.Join(home, "config.toml"))

	root := newRootCmd()
	root.SetArgs([]string{"init"})
	root.SetOut(&bytes.Buffer{})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "--force")
}
