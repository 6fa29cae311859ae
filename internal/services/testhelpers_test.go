package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/database"
)

func setupHistoryDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(":memory:", false)
	require.NoError(t, err)
	return db
}

// setupConfig returns a Config rooted in a temp dir with the fail2ban
// directories created.
func setupConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.ForDataDir(t.TempDir())
	require.NoError(t, cfg.EnsureDirs())
	require.NoError(t, os.MkdirAll(cfg.JailDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.FilterDir, 0o755))
	return cfg
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
