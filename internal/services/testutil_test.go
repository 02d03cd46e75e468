package services

import (
	"path/filepath"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/db"
	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/eventbus"
	"github.com/stretchr/testify/require"
)

func setupTestRepos(t *testing.T) *repositories.Repositories {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kagan.db")
	database, err := db.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(dbPath))
	t.Cleanup(func() { database.Close() })
	return repositories.New(database)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.General.MaxConcurrentAgents = 3
	cfg.General.MaxIterations = 25
	cfg.General.RequireReviewApproval = true
	cfg.General.SerializeMerges = true
	cfg.General.DefaultBaseBranch = "main"
	cfg.General.DefaultPairTerminalBackend = "tmux"
	return cfg
}

func newTestBus() *eventbus.Bus {
	return eventbus.New()
}
