package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/services"
)

func TestIgnorePreviewAndApply(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.cli.Config.JailLocalPath, []byte("[DEFAULT]\nbantime = 1h\n"), 0o644))
	h.mustRun(t, "whitelist", "add", "192.0.2.10")

	view := runJSON[map[string]any](t, h, "ignore", "preview")
	assert.Equal(t, false, view["up_to_date"])
	assert.Contains(t, view["diff"], "+ignoreip = 192.0.2.10 127.0.0.1 ::1")

	res := runJSON[services.IgnoreDirectiveResult](t, h, "ignore", "apply", "--reload")
	assert.True(t, res.Changed)
	assert.NotEmpty(t, res.Backup)
	assert.Equal(t, 1, h.client.Rereads)

	res = runJSON[services.IgnoreDirectiveResult](t, h, "ignore", "apply", "--reload")
	assert.False(t, res.Changed)
	assert.Equal(t, 1, h.client.Rereads)

	out := h.mustRun(t, "ignore", "preview")
	assert.Contains(t, out, "up to date")

	require.NoError(t, os.WriteFile(filepath.Join(h.cli.Config.JailDir, "sshd.conf"), []byte("[sshd]\nenabled = true\n"), 0o644))
	h.mustRun(t, "whitelist", "add", "198.51.100.1", "--jail", "sshd")
	res = runJSON[services.IgnoreDirectiveResult](t, h, "ignore", "apply", "--jail", "sshd")
	assert.Equal(t, "sshd", res.Section)
	assert.Contains(t, res.Entries, "198.51.100.1")
}

func TestPermanentBans(t *testing.T) {
	h := newHarness(t)

	ban := runJSON[models.PermanentBan](t, h, "permban", "add", "203.0.113.66", "--reason", "scanner")
	assert.Equal(t, models.AllJails(), ban.Scope)
	h.mustRun(t, "permban", "add", "198.51.100.0/24", "--jail", "sshd")

	_, err := h.run(t, "permban", "add", "192.0.2.1", "--jail", "ghost")
	assert.Error(t, err)

	bans := runJSON[[]models.PermanentBan](t, h, "permban", "list")
	require.Len(t, bans, 2)

	res := runJSON[services.ApplyResult](t, h, "permban", "apply")
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 3, res.Commands)
	assert.Contains(t, h.client.Banned["nginx-404"], "203.0.113.66")

	out := h.mustRun(t, "permban", "remove", ban.ID)
	assert.Contains(t, out, "1 declaration(s) removed")
	h.mustRun(t, "permban", "rm", "198.51.100.0/24")
	assert.Empty(t, runJSON[[]models.PermanentBan](t, h, "permban", "list"))
}

func TestBackups(t *testing.T) {
	h := newHarness(t)
	original := "[DEFAULT]\nbantime = 1h\n"
	require.NoError(t, os.WriteFile(h.cli.Config.JailLocalPath, []byte(original), 0o644))
	h.mustRun(t, "whitelist", "add", "192.0.2.10")
	h.mustRun(t, "ignore", "apply")

	backups := runJSON[[]services.BackupFile](t, h, "backup", "list")
	require.Len(t, backups, 1)
	name := backups[0].Filename

	h.mustRun(t, "backup", "restore", name)
	assert.NotEqual(t, original, readString(t, h.cli.Config.JailLocalPath))

	h.answer = true
	h.mustRun(t, "backup", "restore", name)
	assert.Equal(t, original, readString(t, h.cli.Config.JailLocalPath))

	h.mustRun(t, "backup", "delete", name)
	for _, b := range runJSON[[]services.BackupFile](t, h, "backup", "list") {
		assert.NotEqual(t, name, b.Filename)
	}

	_, err := h.run(t, "backup", "delete", "../../etc/passwd")
	assert.Error(t, err)
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
